package kernel

import (
	"context"

	"go.uber.org/atomic"
)

// Queue is a bounded FIFO between a non-blocking producer side (the tick
// path) and a blocking consumer side (a task).
type Queue[T any] struct {
	ch chan T

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewQueue returns a queue holding at most size messages. size < 1 is treated as 1.
func NewQueue[T any](size int) *Queue[T] {
	if size < 1 {
		size = 1
	}
	return &Queue[T]{ch: make(chan T, size)}
}

// TrySend enqueues v, returning false if the queue is full.
func (q *Queue[T]) TrySend(v T) bool {
	select {
	case q.ch <- v:
		q.sent.Inc()
		return true
	default:
		q.dropped.Inc()
		return false
	}
}

// Recv blocks until a message is available or ctx is done.
func (q *Queue[T]) Recv(ctx context.Context) (T, error) {
	select {
	case v := <-q.ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// TryRecv dequeues one message without blocking.
func (q *Queue[T]) TryRecv() (T, bool) {
	select {
	case v := <-q.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// Len returns the number of queued messages.
func (q *Queue[T]) Len() int { return len(q.ch) }

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int { return cap(q.ch) }

// Sent returns the number of accepted messages.
func (q *Queue[T]) Sent() uint64 { return q.sent.Load() }

// Dropped returns the number of messages rejected because the queue was full.
func (q *Queue[T]) Dropped() uint64 { return q.dropped.Load() }
