package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrStageTimeout is returned when a stage outlives its deadline.
var ErrStageTimeout = errors.New("stage timed out")

type stageResult[T any] struct {
	val T
	err error
}

// runStage runs fn on a worker goroutine with a bounded context and waits for
// its one-shot result. A provider that ignores its context cannot hold the
// caller past the deadline. Cancellation of parent is returned as-is.
func runStage[T any](parent context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	done := make(chan stageResult[T], 1)
	go func() {
		v, err := fn(ctx)
		done <- stageResult[T]{val: v, err: err}
	}()

	var zero T
	select {
	case r := <-done:
		if r.err == nil {
			return r.val, nil
		}
		if parent.Err() != nil {
			return zero, parent.Err()
		}
		if errors.Is(r.err, context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w: %w", ErrStageTimeout, r.err)
		}
		return zero, r.err
	case <-ctx.Done():
		if parent.Err() != nil {
			return zero, parent.Err()
		}
		return zero, fmt.Errorf("%w after %v", ErrStageTimeout, timeout)
	}
}

// elapsedMs reports the time since start in whole milliseconds, rounded up so
// that any work at all reports at least 1.
func elapsedMs(start time.Time) int64 {
	return ceilMs(time.Since(start))
}

func ceilMs(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Millisecond - 1) / time.Millisecond)
}
