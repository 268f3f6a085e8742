package segment

import (
	"context"
	"errors"
	"sync"

	"github.com/yusin8/WERO/internal/audio"
)

var (
	// ErrBufferOverflow is returned by Push when the oldest queued frame had
	// to be dropped to make room. The new frame is still queued.
	ErrBufferOverflow = errors.New("frame queue: buffer overflow")
	// ErrQueueClosed is returned by Push after Close, and by Pop once a closed
	// queue has been drained.
	ErrQueueClosed = errors.New("frame queue: closed")
)

// FrameQueue decouples real-time capture from the segmenter. Push never
// blocks: when the queue is full the oldest frame is dropped.
type FrameQueue struct {
	mu      sync.Mutex
	buf     []audio.Frame
	head    int
	size    int
	gap     bool
	dropped uint64
	closed  bool
	notify  chan struct{}
}

// NewFrameQueue returns a queue holding at most capacity frames.
func NewFrameQueue(capacity int) *FrameQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &FrameQueue{
		buf:    make([]audio.Frame, capacity),
		notify: make(chan struct{}, 1),
	}
}

// Push enqueues f without blocking.
func (q *FrameQueue) Push(f audio.Frame) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}

	var err error
	if q.size == len(q.buf) {
		q.buf[q.head] = audio.Frame{}
		q.head = (q.head + 1) % len(q.buf)
		q.size--
		q.dropped++
		q.gap = true
		err = ErrBufferOverflow
	}
	q.buf[(q.head+q.size)%len(q.buf)] = f
	q.size++
	q.mu.Unlock()

	q.signal()
	return err
}

// Pop blocks until a frame is available, the queue is closed and drained,
// or ctx is done. discontinuous is true when frames were dropped between the
// previously popped frame and this one.
func (q *FrameQueue) Pop(ctx context.Context) (f audio.Frame, discontinuous bool, err error) {
	for {
		q.mu.Lock()
		if q.size > 0 {
			f = q.buf[q.head]
			q.buf[q.head] = audio.Frame{}
			q.head = (q.head + 1) % len(q.buf)
			q.size--
			discontinuous = q.gap
			q.gap = false
			q.mu.Unlock()
			return f, discontinuous, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return audio.Frame{}, false, ErrQueueClosed
		}
		select {
		case <-ctx.Done():
			return audio.Frame{}, false, ctx.Err()
		case <-q.notify:
		}
	}
}

// Close stops accepting frames. Frames already queued can still be popped.
func (q *FrameQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

// Len returns the number of queued frames.
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Dropped returns the number of frames dropped on overflow so far.
func (q *FrameQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *FrameQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
