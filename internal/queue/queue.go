// Package queue provides the mutex-guarded FIFO used between connection
// goroutines (producers) and the scheduler (single consumer).
package queue

import "sync"

// Queue is a thread-safe FIFO. Its backing array is reused across drains,
// so a steady tick rate stops allocating once the backlog size settles.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	head  int

	pushed    uint64
	highWater int
}

func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Push appends items in order.
func (q *Queue[T]) Push(items ...T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
	q.pushed += uint64(len(items))
	q.highWater = max(q.highWater, len(q.items)-q.head)
}

// Pop removes the oldest item. ok is false on an empty queue.
func (q *Queue[T]) Pop() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == len(q.items) {
		return item, false
	}
	item = q.items[q.head]
	var zero T
	q.items[q.head] = zero
	q.head++
	if q.head == len(q.items) {
		q.reset()
	}
	return item, true
}

func (q *Queue[T]) Empty() bool {
	return q.Len() == 0
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// GetAndEmpty returns a copy of every queued item in arrival order and clears
// the queue. Items pushed after the call wait for the next one.
func (q *Queue[T]) GetAndEmpty() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	pending := q.items[q.head:]
	if len(pending) == 0 {
		return nil
	}
	out := make([]T, len(pending))
	copy(out, pending)
	q.reset()
	return out
}

// reset keeps the backing array but drops references held by it.
func (q *Queue[T]) reset() {
	clear(q.items)
	q.items = q.items[:0]
	q.head = 0
}

// Stats returns the total items ever pushed and the largest backlog seen.
func (q *Queue[T]) Stats() (pushed uint64, highWater int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pushed, q.highWater
}
