package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryQueue_FIFO(t *testing.T) {
	q := NewInMemoryQueue[int](3)
	require.NoError(t, q.Enqueue(1))
	require.NoError(t, q.Enqueue(2))
	require.NoError(t, q.Enqueue(3))
	assert.ErrorIs(t, q.Enqueue(4), ErrQueueFull)
	assert.Equal(t, 3, q.Size())

	ctx := context.Background()
	for _, want := range []int{1, 2, 3} {
		got, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, 0, q.Size())
}

func TestInMemoryQueue_DequeueHonoursContext(t *testing.T) {
	q := NewInMemoryQueue[string](1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInMemoryQueue_DefaultSize(t *testing.T) {
	q := NewInMemoryQueue[int](0)
	for i := 0; i < DefaultQueueSize; i++ {
		require.NoError(t, q.Enqueue(i))
	}
	assert.ErrorIs(t, q.Enqueue(-1), ErrQueueFull)
}

func TestInMemoryQueue_Drain(t *testing.T) {
	q := NewInMemoryQueue[int](4)
	assert.Empty(t, q.Drain())
	require.NoError(t, q.Enqueue(7))
	require.NoError(t, q.Enqueue(8))
	assert.Equal(t, []int{7, 8}, q.Drain())
	assert.Equal(t, 0, q.Size())
}

func TestInMemoryQueue_ConcurrentProducers(t *testing.T) {
	q := NewInMemoryQueue[int](100)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, q.Enqueue(i))
		}(i)
	}
	wg.Wait()

	seen := map[int]bool{}
	for _, v := range q.Drain() {
		seen[v] = true
	}
	assert.Len(t, seen, 100)
}
