// Package shadowgraph implements the gossip ancestry index (spec §3/§4.12):
// a structure gossip uses to compute "what does my peer already have" via
// ancestor bitsets, kept deliberately separate from the linker's consensus
// bookkeeping so that gossip's churn (insert-heavy, queried per sync) never
// contends with the consensus engine's hot path. Grounded on the teacher's
// Hashgraph ancestor/self-ancestor caches (common.LRU keyed by event-hash
// pairs), generalized into an explicit adjacency index with its own
// eviction policy.
package shadowgraph

import (
	"sync"

	"github.com/swirlchain/swirlnode/event"
	"github.com/swirlchain/swirlnode/window"
)

type node struct {
	e           *event.Event
	selfParent  string
	otherParent string
	children    []string
}

// Shadowgraph is an insert/lookup/ancestor-bitset/evict index over events
// purely for gossip purposes — ownership of "what is linked for consensus"
// belongs to package linker, not here.
type Shadowgraph struct {
	mu    sync.RWMutex
	nodes map[string]*node

	windows <-chan window.Window
	current window.Window
}

func New(windows <-chan window.Window, initial window.Window) *Shadowgraph {
	return &Shadowgraph{nodes: make(map[string]*node), windows: windows, current: initial}
}

func (s *Shadowgraph) refreshWindow() {
	for {
		select {
		case w := <-s.windows:
			s.current = w
		default:
			return
		}
	}
}

// Insert adds an event to the index, wiring it into its parents' children
// lists if the parents are already known (gossip may deliver events
// out of dependency order; unresolved parent edges are simply omitted,
// a gossip-only concern distinct from the orphan buffer's stricter
// ordering requirement on the consensus path).
func (s *Shadowgraph) Insert(e *event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshWindow()

	hash := e.Hex()
	if _, exists := s.nodes[hash]; exists {
		return
	}
	n := &node{e: e}
	if sp := e.SelfParent(); !sp.IsZero() {
		n.selfParent = sp.Hash
		if parent, ok := s.nodes[sp.Hash]; ok {
			parent.children = append(parent.children, hash)
		}
	}
	if op := e.OtherParent(); !op.IsZero() {
		n.otherParent = op.Hash
		if parent, ok := s.nodes[op.Hash]; ok {
			parent.children = append(parent.children, hash)
		}
	}
	s.nodes[hash] = n
}

func (s *Shadowgraph) Has(hash string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.nodes[hash]
	return ok
}

func (s *Shadowgraph) Get(hash string) (*event.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[hash]
	if !ok {
		return nil, false
	}
	return n.e, true
}

// AncestorSet returns the set of hashes reachable by following
// self/other-parent edges from hash, up to the index's current horizon —
// the "ancestor bitset" gossip uses to compute sync deltas (spec §4.12).
func (s *Shadowgraph) AncestorSet(hash string) map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	stack := []string{hash}
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		n, ok := s.nodes[h]
		if !ok {
			continue
		}
		if n.selfParent != "" {
			stack = append(stack, n.selfParent)
		}
		if n.otherParent != "" {
			stack = append(stack, n.otherParent)
		}
	}
	delete(seen, hash)
	return seen
}

// Known builds the per-creator "latest known generation" summary gossip
// exchanges at the start of a sync, mirroring the teacher's
// Hashgraph.Known().
func (s *Shadowgraph) Known() map[uint64]uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	known := make(map[uint64]uint64)
	for _, n := range s.nodes {
		creator := n.e.Creator()
		if g := n.e.Generation(); g > known[creator] {
			known[creator] = g
		}
	}
	return known
}

// LatestOf returns the highest-generation event known from creator, used
// by self-event creation to pick an other-parent (spec §4.14).
func (s *Shadowgraph) LatestOf(creator uint64) (*event.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *event.Event
	for _, n := range s.nodes {
		if n.e.Creator() != creator {
			continue
		}
		if best == nil || n.e.Generation() > best.Generation() {
			best = n.e
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// Evict drops every node below the current window's ancient
// threshold — gossip never needs to offer or request events this old.
func (s *Shadowgraph) Evict() (evicted int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, n := range s.nodes {
		if s.current.IsAncient(n.e.Generation(), n.e.BirthRound()) {
			delete(s.nodes, hash)
			evicted++
		}
	}
	return evicted
}

func (s *Shadowgraph) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}
