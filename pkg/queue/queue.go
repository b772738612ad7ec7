package queue

import (
	"context"
	"errors"
)

// ErrQueueFull is returned by Enqueue when the queue is at capacity.
var ErrQueueFull = errors.New("queue is full")

// Queue is a bounded FIFO handing work from request handlers to workers.
type Queue[T any] interface {
	// Enqueue never blocks. It returns ErrQueueFull when there is no room.
	Enqueue(item T) error
	// Dequeue blocks until an item is available or ctx is done.
	Dequeue(ctx context.Context) (T, error)
	Size() int
	// Drain removes and returns everything currently queued.
	Drain() []T
}
