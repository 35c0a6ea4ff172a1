// Package pipeline implements the stage/wire/scheduler framework spec §4.1
// describes: worker policies (sequential, sequential-thread, concurrent,
// direct), bounded-queue backpressure, INJECT wires that bypass it, and a
// flush protocol that blocks until a stage's queue is empty and every
// enqueued handler invocation has returned. Grounded on the teacher's
// node.Run() single-goroutine select loop (the sequential-worker model);
// Flush blocks on a plain sync.WaitGroup rather than the teacher's
// common.Future, since a stage just needs to know "drained", not carry an
// error value forward. The concurrent policy's worker pool is
// github.com/gammazero/workerpool.
package pipeline

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/sirupsen/logrus"
)

type Policy int

const (
	Sequential Policy = iota
	SequentialThread
	Concurrent
	Direct
)

func (p Policy) String() string {
	switch p {
	case Sequential:
		return "sequential"
	case SequentialThread:
		return "sequential-thread"
	case Concurrent:
		return "concurrent"
	case Direct:
		return "direct"
	default:
		return "unknown"
	}
}

// Item is the payload type carried on a wire. The framework is untyped
// (like the teacher's RPC/command dispatch); individual stages type-assert
// inside their Handler closures, which are built at wiring time with full
// knowledge of the concrete types flowing through them.
type Item = interface{}

// Handler processes one item. It returns an error only for conditions the
// stage itself considers unexpected (I/O failure, and so on) — ordinary
// drops (malformed, duplicate, orphan, ancient) are not errors; the
// handler simply does not call any output port.
type Handler func(item Item) error

// Stage wraps one pipeline component with a scheduler matching one of the
// four worker policies in spec §4.1's table.
type Stage struct {
	Name     string
	Policy   Policy
	Capacity int
	Handler  Handler

	log *logrus.Entry

	queue *boundedQueue
	pool  *workerpool.WorkerPool

	inFlight sync.WaitGroup
	started  bool
	stopped  bool
	mu       sync.Mutex

	onDrain func() // invoked by Stop(), e.g. pces writer closing its file
}

func NewStage(name string, policy Policy, capacity int, handler Handler, log *logrus.Entry) *Stage {
	s := &Stage{
		Name:     name,
		Policy:   policy,
		Capacity: capacity,
		Handler:  handler,
		log:      log.WithField("stage", name),
	}
	if policy == Sequential || policy == SequentialThread {
		s.queue = newBoundedQueue(capacity)
	}
	if policy == Concurrent {
		n := capacity
		if n <= 0 {
			n = runtime.NumCPU()
		}
		s.pool = workerpool.New(n)
	}
	return s
}

// Start launches the stage's worker(s). Direct stages need no worker: the
// handler runs synchronously inside Enqueue/Inject.
func (s *Stage) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.Policy == Direct {
		s.started = true
		return
	}
	s.started = true
	switch s.Policy {
	case Sequential:
		go s.runSequential()
	case SequentialThread:
		go func() {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			s.runSequential()
		}()
	case Concurrent:
		// workerpool.Submit handles dispatch per-item; no dedicated loop.
	}
}

func (s *Stage) runSequential() {
	for {
		item, ok := s.queue.Dequeue()
		if !ok {
			return
		}
		s.process(item)
	}
}

func (s *Stage) process(item Item) {
	defer s.inFlight.Done()
	if err := s.Handler(item); err != nil {
		s.log.WithField("error", err).Error("stage handler failed")
	}
}

// Enqueue performs a backpressure-honoring send: it blocks if the target
// queue is at capacity (spec §4.1, ordinary solderTo).
func (s *Stage) Enqueue(item Item) error {
	switch s.Policy {
	case Direct:
		s.inFlight.Add(1)
		s.process(item)
		return nil
	case Concurrent:
		s.inFlight.Add(1)
		s.pool.Submit(func() { s.process(item) })
		return nil
	default:
		s.inFlight.Add(1)
		if !s.queue.Enqueue(item) {
			s.inFlight.Done()
			return fmt.Errorf("stage %s: enqueue after shutdown", s.Name)
		}
		return nil
	}
}

// Inject performs a non-blocking send that bypasses backpressure entirely.
// Spec §4.1: "used only for control broadcasts ... where dropping or
// blocking would deadlock the feedback loop"; also used for the
// event-creation-manager's feedback cycle into the internal validator.
func (s *Stage) Inject(item Item) {
	switch s.Policy {
	case Direct:
		s.inFlight.Add(1)
		s.process(item)
	case Concurrent:
		s.inFlight.Add(1)
		s.pool.Submit(func() { s.process(item) })
	default:
		s.inFlight.Add(1)
		s.queue.Inject(item)
	}
}

// Flush blocks until every item enqueued before this call has been fully
// processed (queue empty AND handler returned for each). Spec §4.1.
func (s *Stage) Flush() {
	if s.queue != nil {
		s.queue.WaitUntilEmpty()
	}
	s.inFlight.Wait()
}

func (s *Stage) QueueDepth() int {
	if s.queue == nil {
		return 0
	}
	return s.queue.Len()
}

// Stop halts the stage: Enqueue fails from then on. Items already queued
// are not dropped: a sequential worker still hands them to the handler
// after Stop returns, and a concurrent stage's pool runs every submitted
// task before Stop returns. onDrain runs last.
func (s *Stage) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	if s.queue != nil {
		s.queue.Close()
	}
	if s.pool != nil {
		s.pool.StopWait()
	}
	if s.onDrain != nil {
		s.onDrain()
	}
}

func (s *Stage) OnDrain(fn func()) { s.onDrain = fn }
