package pipeline

import (
	"sync"

	"github.com/ef-ds/deque"
)

// boundedQueue is the FIFO backing a sequential/sequential-thread stage's
// input. Enqueue blocks once the queue holds `capacity` items — this is
// the backpressure mechanism spec §4.1 describes for ordinary (non-INJECT)
// wires between adjacent sequential stages. Inject bypasses the capacity
// check entirely, as INJECT wires must never block (spec §4.1/§5).
type boundedQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	items    deque.Deque
	capacity int
	closed   bool
}

func newBoundedQueue(capacity int) *boundedQueue {
	q := &boundedQueue{capacity: capacity}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Enqueue blocks while the queue is at capacity. Returns false if the
// queue was closed while waiting (shutdown in progress).
func (q *boundedQueue) Enqueue(item Item) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.capacity > 0 && q.items.Len() >= q.capacity && !q.closed {
		q.notFull.Wait()
	}
	if q.closed {
		return false
	}
	q.items.PushBack(item)
	q.notEmpty.Signal()
	return true
}

// Inject appends unconditionally, never blocking regardless of capacity.
func (q *boundedQueue) Inject(item Item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items.PushBack(item)
	q.notEmpty.Signal()
}

// Dequeue blocks until an item is available or the queue is closed and
// drained, in which case ok is false.
func (q *boundedQueue) Dequeue() (item Item, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Len() == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if q.items.Len() == 0 {
		return nil, false
	}
	v, _ := q.items.PopFront()
	q.notFull.Signal()
	return v, true
}

func (q *boundedQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// WaitUntilEmpty blocks until the queue has been observed empty at least
// once. Used by Stage.Flush — combined with inFlight.Wait(), this gives
// the "queue empty AND handler returned" guarantee spec §4.1 requires.
func (q *boundedQueue) WaitUntilEmpty() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Len() > 0 && !q.closed {
		q.notFull.Wait()
	}
}

func (q *boundedQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}
