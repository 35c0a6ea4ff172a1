package pipeline

import "sync"

// BackpressureObjectCounter extends backpressure across two stages that are
// not directly solderable — spec §4.2: the hasher and the post-hash
// collector are run under different policies (concurrent vs sequential)
// with gossip-intake fan-in between them, so an ordinary bounded queue
// between the two cannot bound the number of objects in flight across the
// whole span. The counter tracks "objects admitted but not yet retired"
// and blocks admission once a configured ceiling is reached, the same
// semantics the teacher enforces with a single bounded channel, generalized
// here to a non-adjacent pair of stages.
type BackpressureObjectCounter struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	inFlight int
	capacity int
	closed   bool
}

func NewBackpressureObjectCounter(capacity int) *BackpressureObjectCounter {
	c := &BackpressureObjectCounter{capacity: capacity}
	c.notFull = sync.NewCond(&c.mu)
	return c
}

// OnRamp blocks until there is room for one more in-flight object, then
// admits it. Called by the coordinator's gossip-in reader and PCES replay
// forwarder before submitting a hash job to the hasher.
func (c *BackpressureObjectCounter) OnRamp() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.capacity > 0 && c.inFlight >= c.capacity && !c.closed {
		c.notFull.Wait()
	}
	c.inFlight++
}

// OffRamp retires one in-flight object. Called when the post-hash
// collector hands an event on to the internal validator.
func (c *BackpressureObjectCounter) OffRamp() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight > 0 {
		c.inFlight--
	}
	c.notFull.Signal()
}

func (c *BackpressureObjectCounter) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Close releases any goroutines blocked in OnRamp, e.g. during shutdown.
func (c *BackpressureObjectCounter) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.notFull.Broadcast()
}
