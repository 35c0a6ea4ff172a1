// Package statefile abstracts the on-disk snapshot the platform resumes
// from at startup: which round it last reached, and the oldest
// non-ancient window still needed to validate a future crash recovery.
// Grounded on the teacher's JSONPeers file-persistence pattern
// (net.JSONPeers), generalized from peer lists to a small recovery
// checkpoint record.
package statefile

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"os"
	"sync"
)

// Snapshot is the durable recovery checkpoint: the last round the state
// machine committed, and the oldest ancient-identifier the writer must
// keep segments for (spec §4.10's minimumAncientIdentifierToStore).
type Snapshot struct {
	Round                        int64  `json:"round"`
	MinimumAncientIdentifierToStore uint64 `json:"minimum_ancient_identifier_to_store"`
	LastDurableSequenceNumber    uint64 `json:"last_durable_sequence_number"`
}

// Manager reads and atomically rewrites the state file.
type Manager struct {
	mu   sync.Mutex
	path string
}

func NewManager(path string) *Manager {
	return &Manager{path: path}
}

func (m *Manager) LatestSnapshot() (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf, err := ioutil.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{Round: -1}, nil
		}
		return Snapshot{}, err
	}
	var s Snapshot
	if err := json.NewDecoder(bytes.NewReader(buf)).Decode(&s); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

// Save writes the snapshot to a temp file and renames it into place, so a
// crash mid-write never corrupts the previous, still-valid snapshot.
func (m *Manager) Save(s Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&s); err != nil {
		return err
	}

	tmp := m.path + ".tmp"
	if err := ioutil.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, m.path)
}
