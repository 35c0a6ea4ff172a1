// Package creation implements the Event Creation Manager (spec §4.14): it
// periodically (or on demand) builds this node's next self-event from the
// pending transaction pool, signs it, and feeds it back into the pipeline's
// internal validator over an INJECT wire. Grounded on the teacher's
// Core.AddSelfEvent (self-head + other-parent selection, transaction pool
// draining, SignAndInsertSelfEvent), paced with golang.org/x/time/rate
// instead of the teacher's gossip-tick-driven cadence so creation rate is
// an explicit, testable knob (spec §6's event-creation-rate).
package creation

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/swirlchain/swirlnode/cryptosig"
	"github.com/swirlchain/swirlnode/event"
)

// OtherParentSelector picks the other-parent descriptor for the next
// self-event, typically the latest known event from a gossip peer just
// synced with. Returns a zero descriptor if there is no suitable candidate
// yet (the event is still created, as a pure self-parent chain event).
type OtherParentSelector func() *event.Descriptor

// Emit hands a freshly created, signed event to the rest of the pipeline
// (normally Stage.Inject on the internal validator's input).
type Emit func(e *event.Event)

// Manager owns this node's transaction pool and self-parent chain head.
type Manager struct {
	creatorID  uint64
	signer     cryptosig.Signer
	hasher     cryptosig.Hasher
	selectOther OtherParentSelector
	emit       Emit
	limiter    *rate.Limiter

	mu          sync.Mutex
	head        *event.Descriptor
	txPool      [][]byte
	birthRound  uint64 // current round, advanced by the window manager
}

func NewManager(creatorID uint64, signer cryptosig.Signer, hasher cryptosig.Hasher, selectOther OtherParentSelector, emit Emit, eventsPerSecond float64, burst int) *Manager {
	return &Manager{
		creatorID:   creatorID,
		signer:      signer,
		hasher:      hasher,
		selectOther: selectOther,
		emit:        emit,
		limiter:     rate.NewLimiter(rate.Limit(eventsPerSecond), burst),
		head:        &event.Descriptor{},
	}
}

// SubmitTransaction enqueues a transaction for inclusion in this node's
// next self-event.
func (m *Manager) SubmitTransaction(tx []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txPool = append(m.txPool, tx)
}

// SetBirthRound advances the round stamped onto the next self-event,
// called by the window manager whenever the non-ancient window moves.
func (m *Manager) SetBirthRound(round uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.birthRound = round
}

// Tick attempts to create and emit one self-event, honoring the rate
// limiter. Returns false if the limiter denied the attempt or there is
// nothing to record (mirrors the teacher's "exit if nothing to record").
func (m *Manager) Tick(ctx context.Context) bool {
	if !m.limiter.Allow() {
		return false
	}
	return m.createAndEmit()
}

// Run drives creation until ctx is cancelled, blocking between attempts on
// the rate limiter's own wait rather than a fixed-interval sleep.
func (m *Manager) Run(ctx context.Context) {
	for {
		if err := m.limiter.Wait(ctx); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		m.createAndEmit()
	}
}

func (m *Manager) createAndEmit() bool {
	m.mu.Lock()
	other := (*event.Descriptor)(nil)
	if m.selectOther != nil {
		other = m.selectOther()
	}
	if m.head.IsZero() && other.IsZero() && len(m.txPool) == 0 {
		m.mu.Unlock()
		return false
	}
	txs := m.txPool
	m.txPool = nil
	selfParent := m.head
	birthRound := m.birthRound
	m.mu.Unlock()

	e := event.New(m.creatorID, selfParent, other, birthRound, txs)
	if err := e.Sign(m.signer); err != nil {
		m.mu.Lock()
		m.txPool = append(txs, m.txPool...)
		m.mu.Unlock()
		return false
	}
	if _, err := e.Hash(m.hasher); err != nil {
		m.mu.Lock()
		m.txPool = append(txs, m.txPool...)
		m.mu.Unlock()
		return false
	}

	m.mu.Lock()
	m.head = e.Descriptor()
	m.mu.Unlock()

	if m.emit != nil {
		m.emit(e)
	}
	return true
}
