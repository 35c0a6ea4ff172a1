// Package futurebuffer implements the Future Event Buffer stage (spec
// §4.13): events whose birth round is more than one round ahead of the
// linker's current round are held back rather than linked immediately,
// since their other-parent's round may not yet be knowable. Grounded on
// the teacher's Hashgraph.UndeterminedEvents-style deferral, generalized
// into a round-keyed waiting structure that releases a whole round at
// once — round keys can have gaps (a round with no events buffered for
// it), which is exactly what the teacher's common.RollingIndex refuses to
// allow, so this is a plain map rather than an adaptation of it.
package futurebuffer

import (
	"sync"

	"github.com/swirlchain/swirlnode/event"
)

// Buffer holds events keyed by birth round, released as the linker's
// current round advances.
type Buffer struct {
	mu          sync.Mutex
	byRound     map[uint64][]*event.Event
	currentRound uint64
}

func New(currentRound uint64) *Buffer {
	return &Buffer{byRound: make(map[uint64][]*event.Event), currentRound: currentRound}
}

// Offer returns the event immediately if its birth round is not ahead of
// currentRound+1; otherwise it is buffered and Offer returns false.
func (b *Buffer) Offer(e *event.Event) (ready bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e.BirthRound() <= b.currentRound+1 {
		return true
	}
	b.byRound[e.BirthRound()] = append(b.byRound[e.BirthRound()], e)
	return false
}

// Advance records that currentRound has moved to round, releasing every
// event that was buffered for a birth round now within one of it.
func (b *Buffer) Advance(round uint64) []*event.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.currentRound = round

	var released []*event.Event
	for br, events := range b.byRound {
		if br <= round+1 {
			released = append(released, events...)
			delete(b.byRound, br)
		}
	}
	return released
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, events := range b.byRound {
		n += len(events)
	}
	return n
}
