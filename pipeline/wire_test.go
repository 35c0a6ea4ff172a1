package pipeline

import (
	"sync"
	"testing"
)

// TestTopologyFlushRespectsRegistrationOrder verifies the producer-first
// registration contract: flushing stage N only waits on stage N's own
// queue/in-flight work, so a producer that is still forwarding items to an
// unflushed downstream stage must be registered (and thus flushed) first.
func TestTopologyFlushRespectsRegistrationOrder(t *testing.T) {
	var mu sync.Mutex
	var sinkItems []int

	var topo Topology
	sinkStage := NewStage("sink", Sequential, 8, func(item Item) error {
		mu.Lock()
		sinkItems = append(sinkItems, item.(int))
		mu.Unlock()
		return nil
	}, testLogger(t))

	// Producer registered before its consumer, per the topology's contract.
	source := topo.Add(NewStage("source", Sequential, 8, func(item Item) error {
		return sinkStage.Enqueue(item.(int) * 10)
	}, testLogger(t)))
	topo.Add(sinkStage)

	topo.Start()
	defer topo.Stop()

	for i := 0; i < 5; i++ {
		if err := source.Enqueue(i); err != nil {
			t.Fatal(err)
		}
	}

	topo.Flush()

	mu.Lock()
	defer mu.Unlock()
	if len(sinkItems) != 5 {
		t.Fatalf("expected the sink to have drained all 5 forwarded items by the time Flush returns, got %d", len(sinkItems))
	}
}

func TestTopologyStopIsReverseOrder(t *testing.T) {
	var mu sync.Mutex
	var stopped []string

	var topo Topology
	a := topo.Add(NewStage("a", Direct, 0, func(item Item) error { return nil }, testLogger(t)))
	b := topo.Add(NewStage("b", Direct, 0, func(item Item) error { return nil }, testLogger(t)))
	a.OnDrain(func() {
		mu.Lock()
		stopped = append(stopped, "a")
		mu.Unlock()
	})
	b.OnDrain(func() {
		mu.Lock()
		stopped = append(stopped, "b")
		mu.Unlock()
	})

	topo.Start()
	topo.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(stopped) != 2 || stopped[0] != "b" || stopped[1] != "a" {
		t.Fatalf("expected stop order [b, a], got %v", stopped)
	}
}
