// Package addressbook holds the versioned node-id -> {publicKey, weight,
// active} mapping spec §3 defines as the Address Book, and the manager that
// applies admin-transaction updates to it. Grounded on the teacher's
// peers.Peers (ByAppearance/ByPubKey/ById triple-indexing, computeID)
// generalized with a weight and active flag and JSON persistence borrowed
// from net.JSONPeers.
package addressbook

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"sort"
	"sync"
)

// Entry is one node's row in the address book.
type Entry struct {
	ID        uint64 `json:"id"`
	PubKeyHex string `json:"pub_key_hex"`
	Weight    int64  `json:"weight"`
	Active    bool   `json:"active"`
}

func (e *Entry) computeID() {
	h := sha256.Sum256([]byte(e.PubKeyHex))
	e.ID = binary.BigEndian.Uint64(h[:8])
}

// AddressBook is one immutable, versioned snapshot of the network's
// membership. Spec §3: "versioned node-id -> {publicKey, weight, active}".
type AddressBook struct {
	Version int64
	byID    map[uint64]*Entry
	order   []uint64 // ByAppearance, stable across updates that don't remove entries
}

func New(version int64) *AddressBook {
	return &AddressBook{Version: version, byID: make(map[uint64]*Entry)}
}

func FromEntries(version int64, entries []*Entry) *AddressBook {
	ab := New(version)
	for _, e := range entries {
		ab.add(e)
	}
	return ab
}

func (ab *AddressBook) add(e *Entry) {
	if e.ID == 0 {
		e.computeID()
	}
	if _, exists := ab.byID[e.ID]; !exists {
		ab.order = append(ab.order, e.ID)
	}
	ab.byID[e.ID] = e
}

func (ab *AddressBook) Get(id uint64) (*Entry, bool) {
	e, ok := ab.byID[id]
	return e, ok
}

func (ab *AddressBook) Len() int { return len(ab.byID) }

// TotalWeight sums the weight of active members only — this is the
// denominator for supermajority computations (spec §4.9's "2/3 of total
// weight", generalized from the teacher's 2/3-of-participant-count rule).
func (ab *AddressBook) TotalWeight() int64 {
	var total int64
	for _, id := range ab.order {
		e := ab.byID[id]
		if e.Active {
			total += e.Weight
		}
	}
	return total
}

// SuperMajority returns the minimum weight that constitutes a strict
// supermajority (> 2/3) of total active weight.
func (ab *AddressBook) SuperMajority() int64 {
	return 2*ab.TotalWeight()/3 + 1
}

func (ab *AddressBook) Entries() []*Entry {
	res := make([]*Entry, 0, len(ab.byID))
	for _, id := range ab.order {
		res = append(res, ab.byID[id])
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// With returns a new, incremented-version AddressBook reflecting one
// membership change (add an entry, or replace one to update weight/active;
// entries are never removed). Address books
// are immutable once published — every admin transaction produces a fresh
// version rather than mutating the current one in place.
func (ab *AddressBook) With(updated *Entry) *AddressBook {
	next := New(ab.Version + 1)
	for _, e := range ab.Entries() {
		cp := *e
		next.add(&cp)
	}
	cp := *updated
	next.add(&cp)
	return next
}

// Manager owns the current AddressBook and the chain of updates applied to
// it, publishing each new version to subscribers (the creation manager and
// the consensus engine both need the current book for weight arithmetic).
type Manager struct {
	mu          sync.RWMutex
	current     *AddressBook
	subscribers []chan *AddressBook
}

func NewManager(initial *AddressBook) *Manager {
	return &Manager{current: initial}
}

func (m *Manager) Current() *AddressBook {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *Manager) Subscribe() <-chan *AddressBook {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan *AddressBook, 4)
	m.subscribers = append(m.subscribers, ch)
	return ch
}

// Apply installs a new AddressBook version as current, rejecting any
// version that doesn't strictly increment the prior one (spec §6:
// "address-book update" must be monotone).
func (m *Manager) Apply(next *AddressBook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if next.Version <= m.current.Version {
		return fmt.Errorf("addressbook: stale version %d (current %d)", next.Version, m.current.Version)
	}
	m.current = next
	for _, ch := range m.subscribers {
		select {
		case ch <- next:
		default:
		}
	}
	return nil
}

// LoadJSON reads a persisted address book, in the shape the teacher's
// net.JSONPeers uses for its peers.json file.
func LoadJSON(path string) (*AddressBook, error) {
	buf, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Version int64    `json:"version"`
		Entries []*Entry `json:"entries"`
	}
	dec := json.NewDecoder(bytes.NewReader(buf))
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return FromEntries(doc.Version, doc.Entries), nil
}

func SaveJSON(path string, ab *AddressBook) error {
	doc := struct {
		Version int64    `json:"version"`
		Entries []*Entry `json:"entries"`
	}{Version: ab.Version, Entries: ab.Entries()}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&doc); err != nil {
		return err
	}
	return ioutil.WriteFile(path, buf.Bytes(), 0644)
}
