// Package queue implements a bounded, multi-priority blocking FIFO used to
// hand fetch requests from the painter/projector side of the pipeline to
// the fetcher worker pool, with an atomic "prefetch" drain on frame
// rollover.
package queue

import "sync"

// Item is one unit of work: a generic payload plus the priority it was
// submitted at. Lower numeric priority drains first.
type Item[T any] struct {
	Value    T
	Priority int
}

// PriorityQueue is a bounded array of FIFO sub-queues indexed by priority
// 0..NumPriorities-1 (0 highest), plus a single prefetch shadow tier that
// Clear drains into. It is safe for concurrent Put/Take/Clear calls from
// many goroutines, matching the fetcher pool's M:1 producer/consumer
// shape.
type PriorityQueue[T any] struct {
	mu   sync.Mutex
	cond *sync.Cond

	levels   [][]T
	prefetch []T

	closed bool
}

// New returns a PriorityQueue with numPriorities live sub-queues (0 is
// highest priority) plus the always-present prefetch tier.
func New[T any](numPriorities int) *PriorityQueue[T] {
	if numPriorities < 1 {
		numPriorities = 1
	}
	q := &PriorityQueue[T]{
		levels: make([][]T, numPriorities),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put appends item to the sub-queue for priority p (clamped into range)
// and wakes one blocked Take.
func (q *PriorityQueue[T]) Put(item T, p int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if p < 0 {
		p = 0
	}
	if p >= len(q.levels) {
		p = len(q.levels) - 1
	}
	q.levels[p] = append(q.levels[p], item)
	q.cond.Signal()
}

// Take blocks until an item is available, then returns the highest
// priority item, draining live sub-queues in priority order before
// falling back to the prefetch shadow. ok is false only if the queue was
// closed and drained empty (used for orderly fetcher shutdown).
func (q *PriorityQueue[T]) Take() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if v, found := q.popLocked(); found {
			return v, true
		}
		if q.closed {
			var zero T
			return zero, false
		}
		q.cond.Wait()
	}
}

// TryTake returns immediately: (item, true) if something was available,
// else the zero value and false. Unlike Take it never waits.
func (q *PriorityQueue[T]) TryTake() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

func (q *PriorityQueue[T]) popLocked() (item T, found bool) {
	for i, level := range q.levels {
		if len(level) > 0 {
			item = level[0]
			q.levels[i] = level[1:]
			return item, true
		}
	}
	if len(q.prefetch) > 0 {
		item = q.prefetch[0]
		q.prefetch = q.prefetch[1:]
		return item, true
	}
	var zero T
	return zero, false
}

// Clear atomically moves every item currently queued in the live
// sub-queues into the prefetch shadow, in priority order, without
// discarding anything. Future Take calls drain the (now empty) live
// queues first, then the prefetch shadow; a subsequent frame's Put calls
// can then reprioritize without losing already-paid enqueue decisions.
func (q *PriorityQueue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, level := range q.levels {
		q.prefetch = append(q.prefetch, level...)
	}
	for i := range q.levels {
		q.levels[i] = nil
	}
}

// Close unblocks all pending and future Take calls once the queue drains
// empty; used for fetcher pool shutdown.
func (q *PriorityQueue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Len reports the total number of items across live and prefetch tiers.
func (q *PriorityQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.prefetch)
	for _, level := range q.levels {
		n += len(level)
	}
	return n
}
