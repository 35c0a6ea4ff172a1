package pces

import "sync/atomic"

// Sequencer assigns each event the strictly monotone streamSequenceNumber
// spec §4.7 describes: a global 64-bit counter, persisted in the segment
// header on rotation so a restart resumes from the right place.
type Sequencer struct {
	next uint64
}

// NewSequencer resumes counting from the sequence number immediately after
// the last one durably written (0 at genesis).
func NewSequencer(lastDurable uint64) *Sequencer {
	return &Sequencer{next: lastDurable}
}

// Next returns the next sequence number and advances the counter.
func (s *Sequencer) Next() uint64 {
	return atomic.AddUint64(&s.next, 1)
}

func (s *Sequencer) Peek() uint64 {
	return atomic.LoadUint64(&s.next)
}
