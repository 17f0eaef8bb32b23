package ingest

import (
	"context"
	"sync/atomic"
)

// Queue is a bounded, non-blocking queue with an atomic depth gauge so
// health/readiness probes can read queue pressure without locking.
type Queue[T any] struct {
	ch       chan T
	depth    atomic.Int64
	capacity int
}

// NewQueue creates a Queue backed by a buffered channel of the given capacity.
func NewQueue[T any](capacity int) *Queue[T] {
	return &Queue[T]{
		ch:       make(chan T, capacity),
		capacity: capacity,
	}
}

// TryEnqueue attempts a non-blocking send of v onto the queue.
// Returns true on success, false if the queue is full (dropped).
func (q *Queue[T]) TryEnqueue(v T) bool {
	select {
	case q.ch <- v:
		q.depth.Add(1)
		return true
	default:
		return false
	}
}

// Dequeue blocks until an item is available or ctx is cancelled.
// Returns (item, true) on success, (zero, false) if ctx was cancelled.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, bool) {
	select {
	case v := <-q.ch:
		q.depth.Add(-1)
		return v, true
	case <-ctx.Done():
		var zero T
		return zero, false
	}
}

// TryDequeue returns the next item without blocking.
func (q *Queue[T]) TryDequeue() (T, bool) {
	select {
	case v := <-q.ch:
		q.depth.Add(-1)
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// Depth returns the current number of enqueued items not yet consumed.
func (q *Queue[T]) Depth() int {
	return int(q.depth.Load())
}

// Capacity returns the maximum number of items the queue can hold.
func (q *Queue[T]) Capacity() int {
	return q.capacity
}
