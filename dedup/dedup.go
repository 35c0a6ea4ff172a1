// Package dedup implements the Event Deduplicator stage (spec §4.4): a
// bounded seen-hash set scoped to the non-ancient window, rejecting any
// event whose hash has already been admitted. Grounded on the teacher's
// common.LRU-backed caches in Hashgraph (ancestorCache et al.), generalized
// with an explicit ancient-aware eviction pass — the teacher's caches never
// needed to reclaim entries a specific way since they lived for the life of
// the store, but the deduplicator's window is intentionally moving, so a
// capacity-only LRU would let a still-non-ancient hash get evicted under
// load and let a genuine duplicate back in.
package dedup

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/swirlchain/swirlnode/window"
)

// entry is what the LRU actually stores per hash: just enough of the
// event's identity to judge ancientness on a window update.
type entry struct {
	generation uint64
	birthRound uint64
}

// Deduplicator rejects events whose hash it has already seen. Capacity
// bounds memory as a backstop; the primary reclamation path is EvictAncient,
// called on every window advance, which drops exactly the entries the
// window no longer needs, mirroring the teacher's fixed-size caches
// generalized to the moving non-ancient window.
type Deduplicator struct {
	mu    sync.Mutex
	cache *lru.Cache

	windows <-chan window.Window
	current window.Window
}

func New(capacity int, windows <-chan window.Window, initial window.Window) (*Deduplicator, error) {
	c, err := lru.New(capacity)
	if err != nil {
		return nil, err
	}
	return &Deduplicator{cache: c, windows: windows, current: initial}, nil
}

func (d *Deduplicator) refreshWindow() {
	for {
		select {
		case w := <-d.windows:
			d.current = w
		default:
			return
		}
	}
}

// Seen reports whether hash has already passed through, marking it seen
// as a side effect if not (atomic check-and-set under the stage's own
// mutex — dedup must be exact even if two copies of an event race in from
// different gossip peers, spec §4.4's race note). generation/birthRound are
// recorded so a later window advance can tell whether this entry is still
// worth keeping.
func (d *Deduplicator) Seen(hash string, generation, birthRound uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refreshWindow()

	if d.cache.Contains(hash) {
		d.cache.Get(hash) // bump recency
		return true
	}
	d.cache.Add(hash, entry{generation: generation, birthRound: birthRound})
	return false
}

// EvictAncient drops every entry whose ancient identifier has fallen below
// the current window's minimum, per spec §4.4 ("evicts entries whose
// ancient identifier falls below the window's minimum on each window
// update"). Called by the coordinator right after the window manager
// advances.
func (d *Deduplicator) EvictAncient() (evicted int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, key := range d.cache.Keys() {
		v, ok := d.cache.Peek(key)
		if !ok {
			continue
		}
		e := v.(entry)
		if d.current.IsAncient(e.generation, e.birthRound) {
			d.cache.Remove(key)
			evicted++
		}
	}
	return evicted
}

func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cache.Len()
}

func (d *Deduplicator) Purge() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache.Purge()
}
