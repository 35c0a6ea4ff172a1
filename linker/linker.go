// Package linker implements the In-Order Linker stage (spec §4.8): it
// admits events only after both parents are already linked, stamps each
// with ancestor/first-descendant coordinate bookkeeping, and evicts
// linked events once they fall below the non-ancient window's minimum.
// Grounded on the teacher's Hashgraph.InsertEvent / InitEventCoordinates /
// UpdateAncestorFirstDescendant, generalized from a fixed participant-index
// array to a map keyed by node id (creator weight can change between
// address-book versions, so a fixed-size array can't be assumed).
package linker

import (
	"fmt"
	"sync"

	"github.com/swirlchain/swirlnode/event"
	"github.com/swirlchain/swirlnode/window"
)

// Coordinate is one entry in an event's ancestor/descendant table: the
// index (generation) and hash of the referenced event.
type Coordinate struct {
	Generation uint64
	Hash       string
}

// Linked wraps an Event with the coordinate bookkeeping the consensus
// engine's ancestry predicates (See, StronglySee) depend on.
type Linked struct {
	*event.Event

	lastAncestors    map[uint64]Coordinate // creatorID -> latest self-ancestor coordinate
	firstDescendants map[uint64]Coordinate // creatorID -> earliest descendant coordinate
}

func (l *Linked) LastAncestor(creator uint64) (Coordinate, bool) {
	c, ok := l.lastAncestors[creator]
	return c, ok
}

func (l *Linked) FirstDescendant(creator uint64) (Coordinate, bool) {
	c, ok := l.firstDescendants[creator]
	return c, ok
}

// Linker holds every linked, non-evicted event, indexed by hash and by
// (creator, generation) for self-parent legitimacy checks.
type Linker struct {
	mu sync.Mutex

	byHash     map[string]*Linked
	lastByNode map[uint64]string // creator -> hash of its latest linked event

	windows <-chan window.Window
	current window.Window
}

func New(windows <-chan window.Window, initial window.Window) *Linker {
	return &Linker{
		byHash:     make(map[string]*Linked),
		lastByNode: make(map[uint64]string),
		windows:    windows,
		current:    initial,
	}
}

func (lk *Linker) refreshWindow() {
	for {
		select {
		case w := <-lk.windows:
			lk.current = w
		default:
			return
		}
	}
}

func (lk *Linker) Get(hash string) (*Linked, bool) {
	lk.mu.Lock()
	defer lk.mu.Unlock()
	l, ok := lk.byHash[hash]
	return l, ok
}

// Link admits e, checking that any non-zero self-parent is in fact the
// creator's latest linked event (spec §4.8's "FromParentsLatest"
// invariant), then computes its ancestor/descendant coordinates.
func (lk *Linker) Link(e *event.Event) (*Linked, error) {
	lk.mu.Lock()
	defer lk.mu.Unlock()
	lk.refreshWindow()

	creator := e.Creator()
	if sp := e.SelfParent(); !sp.IsZero() {
		last, ok := lk.lastByNode[creator]
		if !ok || last != sp.Hash {
			return nil, fmt.Errorf("linker: self-parent %s is not %s's latest linked event", sp.Hash, hexShort(creator))
		}
	}

	l := &Linked{
		Event:            e,
		lastAncestors:    make(map[uint64]Coordinate),
		firstDescendants: make(map[uint64]Coordinate),
	}

	sp, spOK := lk.resolve(e.SelfParent())
	op, opOK := lk.resolve(e.OtherParent())

	switch {
	case !spOK && !opOK:
		// genesis event: no ancestors yet.
	case !spOK:
		copyCoords(l.lastAncestors, op.lastAncestors)
	case !opOK:
		copyCoords(l.lastAncestors, sp.lastAncestors)
	default:
		copyCoords(l.lastAncestors, sp.lastAncestors)
		for creatorID, c := range op.lastAncestors {
			if existing, ok := l.lastAncestors[creatorID]; !ok || c.Generation > existing.Generation {
				l.lastAncestors[creatorID] = c
			}
		}
	}

	self := Coordinate{Generation: e.Generation(), Hash: e.Hex()}
	l.lastAncestors[creator] = self
	l.firstDescendants[creator] = self

	lk.byHash[e.Hex()] = l
	lk.lastByNode[creator] = e.Hex()

	lk.updateAncestorFirstDescendants(l)

	return l, nil
}

func (lk *Linker) resolve(d *event.Descriptor) (*Linked, bool) {
	if d.IsZero() {
		return nil, false
	}
	l, ok := lk.byHash[d.Hash]
	return l, ok
}

func copyCoords(dst, src map[uint64]Coordinate) {
	for k, v := range src {
		dst[k] = v
	}
}

// updateAncestorFirstDescendants walks up each lineage from l's last
// ancestors, stamping the first not-yet-stamped descendant slot with l —
// mirrors the teacher's UpdateAncestorFirstDescendant, generalized to a map
// walk instead of a fixed-size array scan.
func (lk *Linker) updateAncestorFirstDescendants(l *Linked) {
	creator := l.Creator()
	self := Coordinate{Generation: l.Generation(), Hash: l.Hex()}

	for _, coord := range l.lastAncestors {
		hash := coord.Hash
		for hash != "" {
			a, ok := lk.byHash[hash]
			if !ok {
				break
			}
			if _, stamped := a.firstDescendants[creator]; stamped {
				break
			}
			a.firstDescendants[creator] = self
			if a.SelfParent().IsZero() {
				break
			}
			hash = a.SelfParent().Hash
		}
	}
}

// Evict removes every linked event below the window's minimum
// generation/birth round — it can no longer affect fame decisions or be a
// parent of anything new (spec §4.8/§4.9).
func (lk *Linker) Evict() (evicted int) {
	lk.mu.Lock()
	defer lk.mu.Unlock()
	for hash, l := range lk.byHash {
		if lk.current.IsAncient(l.Generation(), l.BirthRound()) {
			delete(lk.byHash, hash)
			evicted++
		}
	}
	return evicted
}

func (lk *Linker) Len() int {
	lk.mu.Lock()
	defer lk.mu.Unlock()
	return len(lk.byHash)
}

func hexShort(id uint64) string {
	return fmt.Sprintf("node-%d", id)
}
