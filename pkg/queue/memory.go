package queue

import (
	"context"
)

const (
	// DefaultQueueSize is the capacity used when none is given.
	DefaultQueueSize = 64
)

// InMemoryQueue implements Queue over a buffered channel.
type InMemoryQueue[T any] struct {
	ch chan T
}

// NewInMemoryQueue creates a new queue holding at most size items.
func NewInMemoryQueue[T any](size int) *InMemoryQueue[T] {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &InMemoryQueue[T]{
		ch: make(chan T, size),
	}
}

func (q *InMemoryQueue[T]) Enqueue(item T) error {
	select {
	case q.ch <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *InMemoryQueue[T]) Dequeue(ctx context.Context) (T, error) {
	select {
	case item := <-q.ch:
		return item, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Size returns the current size of the queue.
func (q *InMemoryQueue[T]) Size() int {
	return len(q.ch)
}

func (q *InMemoryQueue[T]) Drain() []T {
	var items []T
	for {
		select {
		case item := <-q.ch:
			items = append(items, item)
		default:
			return items
		}
	}
}
