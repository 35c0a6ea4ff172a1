// Package orphan implements the Orphan Buffer stage (spec §4.6): events
// whose self-parent or other-parent hash has not yet been seen are held
// rather than dropped, released when the missing parent arrives, and
// expired once they fall outside the non-ancient window. Grounded on the
// teacher's Hashgraph.UndeterminedEvents bookkeeping, generalized into an
// explicit per-parent waiting list — the lookup key here is a parent hash,
// not a sequential index, so this is a hand-rolled map rather than an
// adaptation of the teacher's index-keyed common.RollingIndex.
package orphan

import (
	"sync"

	"github.com/swirlchain/swirlnode/event"
	"github.com/swirlchain/swirlnode/window"
)

// Buffer holds events waiting on a missing parent.
type Buffer struct {
	mu sync.Mutex

	// pendingByMissingParent maps a not-yet-seen parent hash to the list of
	// events that name it as a parent.
	pendingByMissingParent map[string][]*event.Event

	// knownRecent is the set of hashes the buffer has already released or
	// passed through, so a late-arriving duplicate of a missing parent
	// doesn't re-trigger release twice.
	knownRecent map[string]struct{}

	windows <-chan window.Window
	current window.Window
}

func New(windows <-chan window.Window, initial window.Window) *Buffer {
	return &Buffer{
		pendingByMissingParent: make(map[string][]*event.Event),
		knownRecent:            make(map[string]struct{}),
		windows:                windows,
		current:                initial,
	}
}

func (b *Buffer) refreshWindow() {
	for {
		select {
		case w := <-b.windows:
			b.current = w
		default:
			return
		}
	}
}

// MissingParent returns the hash of the first parent not yet known to the
// buffer, or "" if both parents (that exist) are known. A parent already
// below the ancient threshold is treated as known immediately — it can
// never arrive through the normal intake path, so waiting on it would
// strand the child event in the buffer forever.
func (b *Buffer) missingParent(e *event.Event) string {
	if sp := e.SelfParent(); !sp.IsZero() {
		if _, ok := b.knownRecent[sp.Hash]; !ok && !b.current.IsAncient(sp.Generation, sp.BirthRound) {
			return sp.Hash
		}
	}
	if op := e.OtherParent(); !op.IsZero() {
		if _, ok := b.knownRecent[op.Hash]; !ok && !b.current.IsAncient(op.Generation, op.BirthRound) {
			return op.Hash
		}
	}
	return ""
}

// Admit records that hash has now been linked (observed by the linker),
// which may release events that were waiting on it. Released events are
// appended to out in the order they become unblocked — a released event
// can itself unblock further events, so this recurses breadth-first.
func (b *Buffer) Admit(hash string) []*event.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.knownRecent[hash] = struct{}{}

	var released []*event.Event
	queue := []string{hash}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		waiting, ok := b.pendingByMissingParent[h]
		if !ok {
			continue
		}
		delete(b.pendingByMissingParent, h)
		for _, e := range waiting {
			if m := b.missingParent(e); m != "" {
				b.pendingByMissingParent[m] = append(b.pendingByMissingParent[m], e)
				continue
			}
			released = append(released, e)
			b.knownRecent[e.Hex()] = struct{}{}
			if h := e.Hex(); h != "" {
				queue = append(queue, h)
			}
		}
	}
	return released
}

// Offer either returns the event immediately (both parents known or it has
// no non-zero parents) or buffers it and returns ok=false.
func (b *Buffer) Offer(e *event.Event) (ready bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshWindow()

	m := b.missingParent(e)
	if m == "" {
		b.knownRecent[e.Hex()] = struct{}{}
		return true
	}
	b.pendingByMissingParent[m] = append(b.pendingByMissingParent[m], e)
	return false
}

// ExpireAncient drops every buffered event whose generation/birthRound has
// fallen behind the current non-ancient window — it can never be linked
// now, spec §4.6's "orphan expiry" edge case.
func (b *Buffer) ExpireAncient() (expired int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for parent, waiting := range b.pendingByMissingParent {
		kept := waiting[:0]
		for _, e := range waiting {
			if b.current.IsAncient(e.Generation(), e.BirthRound()) {
				expired++
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(b.pendingByMissingParent, parent)
		} else {
			b.pendingByMissingParent[parent] = kept
		}
	}
	return expired
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, waiting := range b.pendingByMissingParent {
		n += len(waiting)
	}
	return n
}
