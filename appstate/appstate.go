// Package appstate defines the state-machine boundary consensus rounds are
// submitted to once durable (spec §4.10's gate: "application-side
// submission ... is gated on latestDurableSequenceNumber"). Grounded on the
// teacher's AppProxy (CommitBlock / GetSnapshot / Restore) — an
// in-process test double is provided; a real deployment wires this to an
// out-of-process state machine over the teacher's socket-proxy pattern.
package appstate

import (
	"sync"

	"github.com/swirlchain/swirlnode/consensus"
)

// StateMachine receives durable consensus rounds in order and may be asked
// to snapshot/restore for crash recovery.
type StateMachine interface {
	CommitRound(round *consensus.ConsensusRound) (stateHash []byte, err error)
	Snapshot() (round int64, stateHash []byte, err error)
	Restore(stateHash []byte) error
}

// InmemStateMachine is a test double that just records commits in memory.
type InmemStateMachine struct {
	mu      sync.Mutex
	rounds  []*consensus.ConsensusRound
	applied int64
}

func NewInmemStateMachine() *InmemStateMachine {
	return &InmemStateMachine{applied: -1}
}

func (m *InmemStateMachine) CommitRound(round *consensus.ConsensusRound) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds = append(m.rounds, round)
	m.applied = round.RoundNumber
	return []byte(round.KeystoneEventHash), nil
}

func (m *InmemStateMachine) Snapshot() (int64, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.rounds) == 0 {
		return -1, nil, nil
	}
	last := m.rounds[len(m.rounds)-1]
	return last.RoundNumber, []byte(last.KeystoneEventHash), nil
}

func (m *InmemStateMachine) Restore([]byte) error {
	return nil
}

func (m *InmemStateMachine) Rounds() []*consensus.ConsensusRound {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*consensus.ConsensusRound, len(m.rounds))
	copy(out, m.rounds)
	return out
}
