package pipeline

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/swirlchain/swirlnode/common"
)

func testLogger(t *testing.T) *logrus.Entry {
	return common.NewTestLogger(t)
}

func TestSequentialStageProcessesInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []int
	s := NewStage("seq", Sequential, 8, func(item Item) error {
		mu.Lock()
		got = append(got, item.(int))
		mu.Unlock()
		return nil
	}, testLogger(t))
	s.Start()
	defer s.Stop()

	for i := 0; i < 5; i++ {
		if err := s.Enqueue(i); err != nil {
			t.Fatal(err)
		}
	}
	s.Flush()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 5 {
		t.Fatalf("expected 5 processed items, got %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("expected FIFO order, got %v", got)
		}
	}
}

func TestConcurrentStageProcessesAllItems(t *testing.T) {
	var count int32
	s := NewStage("conc", Concurrent, 4, func(item Item) error {
		atomic.AddInt32(&count, 1)
		return nil
	}, testLogger(t))
	s.Start()
	defer s.Stop()

	for i := 0; i < 50; i++ {
		if err := s.Enqueue(i); err != nil {
			t.Fatal(err)
		}
	}
	s.Flush()

	if atomic.LoadInt32(&count) != 50 {
		t.Fatalf("expected 50 items processed, got %d", count)
	}
}

func TestDirectStageRunsSynchronously(t *testing.T) {
	var ran bool
	s := NewStage("direct", Direct, 0, func(item Item) error {
		ran = true
		return nil
	}, testLogger(t))
	s.Start()
	if err := s.Enqueue("x"); err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Fatal("direct stage should run the handler synchronously on Enqueue")
	}
}

func TestEnqueueBlocksAtCapacityInjectDoesNot(t *testing.T) {
	block := make(chan struct{})
	s := NewStage("bp", Sequential, 1, func(item Item) error {
		<-block
		return nil
	}, testLogger(t))
	s.Start()
	defer func() {
		close(block)
		s.Stop()
	}()

	// First item is picked up by the single sequential worker and blocks.
	if err := s.Enqueue("first"); err != nil {
		t.Fatal(err)
	}
	// Second item fills the capacity-1 queue.
	if err := s.Enqueue("second"); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		s.Enqueue("third") // should block: queue is full and worker is stuck
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Enqueue should have blocked once the queue reached capacity")
	case <-time.After(50 * time.Millisecond):
	}

	// Inject must not block even though the queue is full.
	injected := make(chan struct{})
	go func() {
		s.Inject("inject-me")
		close(injected)
	}()
	select {
	case <-injected:
	case <-time.After(time.Second):
		t.Fatal("Inject should never block on a full queue")
	}
}

func TestStopDropsPendingEnqueues(t *testing.T) {
	s := NewStage("stop", Sequential, 8, func(item Item) error { return nil }, testLogger(t))
	s.Start()
	s.Stop()

	if err := s.Enqueue("late"); err == nil {
		t.Fatal("Enqueue after Stop should return an error")
	}
}
