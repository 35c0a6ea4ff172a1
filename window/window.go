// Package window holds the Non-Ancient Event Window (spec §3) and the
// single-writer manager that advances it once per consensus round and
// broadcasts it to every stage that needs to know what is ancient.
// Grounded on the teacher's Hashgraph.LastConsensusRound bookkeeping,
// generalized into its own value type and stage per spec §4.9/§9
// ("single-writer → many-reader via INJECT broadcast").
package window

import "sync/atomic"

// AncientMode selects whether "ancient" is judged by generation or by
// birth round. Spec §4.9: "set at genesis and must not change at runtime."
type AncientMode int

const (
	GenerationMode AncientMode = iota
	BirthRoundMode
)

func (m AncientMode) String() string {
	if m == BirthRoundMode {
		return "BIRTH_ROUND"
	}
	return "GENERATION"
}

// Window is the immutable value broadcast on each update. Consumers never
// mutate it; Manager produces a fresh Window per update.
type Window struct {
	LatestConsensusRound            int64
	MinNonAncientGenerationOrBirthRound uint64
	MinRoundGeneration               int64
	AncientMode                      AncientMode
}

// IsAncient reports whether an event with the given generation/birthRound
// can no longer influence consensus.
func (w Window) IsAncient(generation, birthRound uint64) bool {
	if w.AncientMode == BirthRoundMode {
		return birthRound < w.MinNonAncientGenerationOrBirthRound
	}
	return generation < w.MinNonAncientGenerationOrBirthRound
}

// Manager owns the single authoritative Window value (read-mostly, one
// writer) and fans updates out over INJECT wires to subscribed stages.
type Manager struct {
	mode AncientMode

	current atomic.Value // Window

	subscribers []chan Window
}

func NewManager(mode AncientMode) *Manager {
	m := &Manager{mode: mode}
	m.current.Store(Window{AncientMode: mode, LatestConsensusRound: -1})
	return m
}

// Subscribe registers an INJECT-style channel that receives every future
// window update. Buffered so the broadcast never blocks (INJECT edges
// never block, spec §4.1).
func (m *Manager) Subscribe() <-chan Window {
	ch := make(chan Window, 8)
	m.subscribers = append(m.subscribers, ch)
	return ch
}

func (m *Manager) Current() Window {
	return m.current.Load().(Window)
}

// Advance is called by the platform's linked-event-intake handler for each
// consensus round it outputs. It is the sole mutator of the window.
func (m *Manager) Advance(latestRound int64, minNonAncient uint64, minRoundGeneration int64) Window {
	w := Window{
		LatestConsensusRound:                latestRound,
		MinNonAncientGenerationOrBirthRound: minNonAncient,
		MinRoundGeneration:                  minRoundGeneration,
		AncientMode:                         m.mode,
	}
	m.current.Store(w)
	for _, ch := range m.subscribers {
		select {
		case ch <- w:
		default:
			// slow subscriber with a full buffer: this update is not
			// delivered to it rather than blocking the single-writer
			// broadcast; it keeps the windows already buffered until a
			// later update fits.
		}
	}
	return w
}
