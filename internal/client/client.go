// Package client is the device side of the gateway: it captures audio,
// segments it into utterances, streams them over one WebSocket connection
// and plays back each reply.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/yusin8/WERO/internal/audio"
	"github.com/yusin8/WERO/internal/observability/metrics"
	"github.com/yusin8/WERO/internal/protocol"
	"github.com/yusin8/WERO/internal/service/segment"
)

// ErrReplyTimeout is returned when the server never answers an end_utt.
var ErrReplyTimeout = errors.New("client: timed out waiting for reply")

// Config holds device settings.
type Config struct {
	ServerURL     string
	Segment       segment.Config
	QueueCapacity int
	WriteTimeout  time.Duration
	// ReplyTimeout bounds the wait for the last reply once capture ends.
	ReplyTimeout time.Duration
}

// Turn is one completed request/response cycle as seen by the device.
type Turn struct {
	Utterance int
	STTText   string
	LLMText   string
	// Error is the error or no_speech reason when the server sent no audio.
	Error         string
	ReplyBytes    int
	ReplyRate     int
	ServerMetrics protocol.Metrics
	RoundTrip     time.Duration // end_utt sent → reply received
}

// Client streams one capture source to the server.
type Client struct {
	cfg     Config
	vad     segment.Classifier
	sink    audio.Sink
	metrics *metrics.Metrics

	// OnTurn, when set, is called from the reader goroutine after each reply.
	OnTurn func(Turn)
}

// New creates a client. sink may be nil to discard reply audio.
func New(cfg Config, vad segment.Classifier, sink audio.Sink) *Client {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 256
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = 2 * time.Minute
	}
	return &Client{cfg: cfg, vad: vad, sink: sink, metrics: metrics.DefaultMetrics}
}

// conn serializes writes on the WebSocket.
type conn struct {
	ws      *websocket.Conn
	timeout time.Duration
	mu      sync.Mutex
}

func (c *conn) send(_ context.Context, msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.timeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *conn) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.timeout))
}

// Run captures from src until it is exhausted, waits for the last reply and
// closes the connection. Cancelling ctx aborts an open utterance without
// sending end_utt.
func (c *Client) Run(ctx context.Context, src audio.Source) error {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.ServerURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.ServerURL, err)
	}
	defer ws.Close()
	log.Info().Str("server", c.cfg.ServerURL).Msg("Connected")

	seg, err := segment.NewSegmenter(c.cfg.Segment, c.vad)
	if err != nil {
		return err
	}
	q := segment.NewFrameQueue(c.cfg.QueueCapacity)
	wc := &conn{ws: ws, timeout: c.cfg.WriteTimeout}

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() { ws.Close() })
	defer stop()

	replied := make(chan struct{}, 1)
	replies := newReplyTracker(seg)

	// Capture never blocks: overflow drops the oldest queued frame.
	g.Go(func() error {
		defer q.Close()
		return src.Read(gctx, func(f audio.Frame) {
			if err := q.Push(f); errors.Is(err, segment.ErrBufferOverflow) {
				c.metrics.RecordFrameQueueOverflow()
				log.Warn().Uint64("dropped", q.Dropped()).Msg("Frame queue overflow, dropped oldest frame")
			}
		})
	})

	g.Go(func() error {
		send := func(ctx context.Context, msg protocol.Message) error {
			replies.sent(msg)
			return wc.send(ctx, msg)
		}
		if err := seg.Run(gctx, q, send); err != nil {
			return err
		}
		if seg.Abort() {
			log.Info().Msg("Capture ended mid-utterance, discarding")
		}

		timer := time.NewTimer(c.cfg.ReplyTimeout)
		defer timer.Stop()
		for seg.Phase() == segment.PhaseAwaiting {
			select {
			case <-replied:
			case <-gctx.Done():
				return gctx.Err()
			case <-timer.C:
				return ErrReplyTimeout
			}
		}
		return wc.close()
	})

	g.Go(func() error {
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) || gctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("read: %w", err)
			}
			msg, err := protocol.Decode(data)
			if err != nil {
				log.Warn().Err(err).Msg("Undecodable server message")
				continue
			}
			turn, ok := replies.receive(msg)
			if !ok {
				continue
			}
			if m, ok := msg.(protocol.AudioReply); ok && c.sink != nil {
				if err := c.sink.Play(gctx, m.PCM, m.Rate); err != nil {
					return fmt.Errorf("play: %w", err)
				}
			}
			if c.OnTurn != nil {
				c.OnTurn(turn)
			}

			seg.ReplyReceived()
			select {
			case replied <- struct{}{}:
			default:
			}
		}
	})

	return g.Wait()
}
