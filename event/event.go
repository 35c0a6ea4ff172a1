// Package event defines the immutable Event type that flows through every
// stage of the intake pipeline, its canonical wire encoding, and the
// hashing/signing operations that give it identity. Grounded on the
// teacher's hashgraph.Event / EventBody / WireEvent.
package event

import (
	"fmt"
	"time"

	"github.com/swirlchain/swirlnode/cryptosig"
)

// Descriptor identifies a parent event without requiring the parent's full
// body to be in memory. Spec §3: "{hash, generation, birthRound, creatorId}
// or null".
type Descriptor struct {
	Hash       string
	Generation uint64
	BirthRound uint64
	CreatorID  uint64
}

func (d *Descriptor) IsZero() bool {
	return d == nil || d.Hash == ""
}

// Body is the hashed, signed content of an Event. It never changes after
// creation; Event adds bookkeeping the pipeline stamps onto it afterward.
type Body struct {
	CreatorID     uint64
	SelfParent    *Descriptor
	OtherParent   *Descriptor
	Generation    uint64
	BirthRound    uint64
	TimeCreated   time.Time
	Transactions  [][]byte
}

// Event is immutable after Hash() is first called (spec §3: "Immutable
// after hashing"). topologicalIndex, roundCreated, witness, roundReceived,
// consensusTime and streamSeq are stamped by downstream stages (consensus engine, PCES
// sequencer) and are the only fields ever mutated post-hash, mirroring the
// teacher's Event.roundReceived / topologicalIndex pattern.
type Event struct {
	Body      Body
	Signature []byte

	hash []byte
	hex  string

	topologicalIndex int64
	streamSeq        *uint64
	roundCreated     *int64
	roundReceived    *int64
	consensusTime    time.Time
	witness          bool
}

func New(creatorID uint64, selfParent, otherParent *Descriptor, birthRound uint64, txs [][]byte) *Event {
	// Genesis events (no parents) start at generation 1, matching the
	// convention every descendant generation calc below already assumes —
	// generation 0 is reserved to mean "no event" (Descriptor.IsZero).
	gen := uint64(1)
	if !selfParent.IsZero() {
		if selfParent.Generation+1 > gen {
			gen = selfParent.Generation + 1
		}
	}
	if !otherParent.IsZero() {
		if otherParent.Generation+1 > gen {
			gen = otherParent.Generation + 1
		}
	}
	return &Event{
		Body: Body{
			CreatorID:    creatorID,
			SelfParent:   selfParent,
			OtherParent:  otherParent,
			Generation:   gen,
			BirthRound:   birthRound,
			TimeCreated:  time.Now().UTC(),
			Transactions: txs,
		},
	}
}

func (e *Event) Creator() uint64      { return e.Body.CreatorID }
func (e *Event) Generation() uint64   { return e.Body.Generation }
func (e *Event) BirthRound() uint64   { return e.Body.BirthRound }
func (e *Event) Transactions() [][]byte { return e.Body.Transactions }
func (e *Event) SelfParent() *Descriptor  { return e.Body.SelfParent }
func (e *Event) OtherParent() *Descriptor { return e.Body.OtherParent }
func (e *Event) TimeCreated() time.Time   { return e.Body.TimeCreated }

// Hash computes and caches the canonical SHA-256 hash over the protobuf
// encoding of Body+Signature. It becomes the event's identity (spec §3).
func (e *Event) Hash(hasher cryptosig.Hasher) ([]byte, error) {
	if len(e.hash) > 0 {
		return e.hash, nil
	}
	wire, err := e.Marshal()
	if err != nil {
		return nil, err
	}
	e.hash = hasher.Hash(wire)
	return e.hash, nil
}

func (e *Event) Hex() string {
	if e.hex == "" && len(e.hash) > 0 {
		e.hex = fmt.Sprintf("0x%x", e.hash)
	}
	return e.hex
}

func (e *Event) Sign(signer cryptosig.Signer) error {
	payload, err := e.marshalBody()
	if err != nil {
		return err
	}
	sig, err := signer.Sign(payload)
	if err != nil {
		return err
	}
	e.Signature = sig
	return nil
}

func (e *Event) Verify(verifier cryptosig.Verifier, pubKey []byte) bool {
	payload, err := e.marshalBody()
	if err != nil {
		return false
	}
	return verifier.Verify(pubKey, payload, e.Signature)
}

// Descriptor returns the descriptor that a child event would reference to
// point at this event as a parent.
func (e *Event) Descriptor() *Descriptor {
	return &Descriptor{
		Hash:       e.Hex(),
		Generation: e.Body.Generation,
		BirthRound: e.Body.BirthRound,
		CreatorID:  e.Body.CreatorID,
	}
}

// IsLoaded mirrors the teacher's Event.IsLoaded: true if the event carries
// a payload or is a creator's genesis event, used to track "pending work"
// still undetermined by consensus.
func (e *Event) IsLoaded() bool {
	if e.SelfParent().IsZero() {
		return true
	}
	return len(e.Body.Transactions) > 0
}

// Stream sequence number, assigned by the PCES sequencer (spec §4.7).
func (e *Event) StreamSequence() (uint64, bool) {
	if e.streamSeq == nil {
		return 0, false
	}
	return *e.streamSeq, true
}

func (e *Event) SetStreamSequence(seq uint64) {
	e.streamSeq = &seq
}

func (e *Event) SetTopologicalIndex(i int64) { e.topologicalIndex = i }
func (e *Event) TopologicalIndex() int64     { return e.topologicalIndex }

func (e *Event) SetRoundCreated(r int64) { e.roundCreated = &r }
func (e *Event) RoundCreated() (int64, bool) {
	if e.roundCreated == nil {
		return 0, false
	}
	return *e.roundCreated, true
}

func (e *Event) SetWitness(w bool) { e.witness = w }
func (e *Event) Witness() bool     { return e.witness }

func (e *Event) SetRoundReceived(r int64) { e.roundReceived = &r }
func (e *Event) RoundReceived() (int64, bool) {
	if e.roundReceived == nil {
		return 0, false
	}
	return *e.roundReceived, true
}

func (e *Event) SetConsensusTimestamp(t time.Time) { e.consensusTime = t }
func (e *Event) ConsensusTimestamp() time.Time     { return e.consensusTime }

// ByTimestamp sorts by creator-claimed timestamp, mirroring the teacher's
// ByTimestamp (used for median-timestamp consensus ordering).
type ByTimestamp []*Event

func (a ByTimestamp) Len() int      { return len(a) }
func (a ByTimestamp) Swap(i, j int) { a[i], a[j] = a[j], a[i] }
func (a ByTimestamp) Less(i, j int) bool {
	return a[i].Body.TimeCreated.Before(a[j].Body.TimeCreated)
}
