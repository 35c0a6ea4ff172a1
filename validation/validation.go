// Package validation implements the Internal Event Validator and Signature
// Validator stages of spec §4.3/§4.5: structural well-formedness checks and
// cryptographic signature checks, each reporting failures as metered drops
// rather than pipeline errors. Grounded on the teacher's
// Hashgraph.InsertEvent precondition checks (self-parent/other-parent
// presence, creator match, generation/round bookkeeping) and event.Verify.
// The internal validator subscribes to window updates the same way
// orphan/linker/shadowgraph do, since one of its checks (future birth
// round) needs to know the current non-ancient window.
package validation

import (
	"time"

	"github.com/swirlchain/swirlnode/addressbook"
	"github.com/swirlchain/swirlnode/cryptosig"
	"github.com/swirlchain/swirlnode/event"
	"github.com/swirlchain/swirlnode/window"
)

// Reason identifies why an event failed validation, used for metrics
// labels (spec §6's per-stage drop counters).
type Reason string

const (
	ReasonNone                   Reason = ""
	ReasonZeroGeneration         Reason = "zero_generation"
	ReasonMissingSelfParent      Reason = "missing_self_parent_descriptor"
	ReasonSelfReferentialParents Reason = "self_referential_parents"
	ReasonBadGenerationMath      Reason = "bad_generation_math"
	ReasonOtherParentGeneration  Reason = "other_parent_generation_not_less_than_child"
	ReasonNonMonotoneTimestamp   Reason = "non_monotone_timestamp"
	ReasonTransactionTooLarge    Reason = "transaction_payload_too_large"
	ReasonFutureBirthRound       Reason = "future_birth_round"
	ReasonFutureTimestamp        Reason = "future_timestamp"
	ReasonUnknownCreator         Reason = "unknown_creator"
	ReasonInactiveCreator        Reason = "inactive_creator"
	ReasonBadSignature           Reason = "bad_signature"
)

// Result is returned by both validators; Handler wiring inspects Reason to
// decide whether to emit a metric and drop, or forward downstream.
type Result struct {
	Event  *event.Event
	Reason Reason
}

func (r Result) Valid() bool { return r.Reason == ReasonNone }

// InternalValidator checks structural well-formedness that requires no
// external state beyond the non-ancient window and per-creator timestamp
// history: generation arithmetic, descriptor presence, payload size,
// timestamp sanity. Spec §4.3. Runs on a Sequential stage, so the mutable
// per-creator timestamp map needs no lock.
type InternalValidator struct {
	// MaxClockDriftFuture bounds how far ahead of the validator's own clock
	// a TimeCreated may be before the event is rejected outright.
	MaxClockDriftFuture int64 // nanoseconds
	// MaxTransactionBytes bounds the total size of an event's transaction
	// payload; zero disables the check.
	MaxTransactionBytes int64
	// BirthRoundTolerance is how many rounds ahead of the window's latest
	// consensus round a birth round may still claim before it's rejected
	// as implausibly far in the future.
	BirthRoundTolerance uint64

	now func() int64

	windows <-chan window.Window
	current window.Window

	// lastTimestamp tracks the most recent TimeCreated accepted per
	// creator, so a later event from the same creator claiming an earlier
	// or equal time can be rejected as non-monotone.
	lastTimestamp map[uint64]time.Time
}

func NewInternalValidator(maxClockDriftFuture, maxTransactionBytes int64, birthRoundTolerance uint64, windows <-chan window.Window, initial window.Window, now func() int64) *InternalValidator {
	if now == nil {
		now = func() int64 { return 0 }
	}
	return &InternalValidator{
		MaxClockDriftFuture: maxClockDriftFuture,
		MaxTransactionBytes: maxTransactionBytes,
		BirthRoundTolerance: birthRoundTolerance,
		now:                 now,
		windows:             windows,
		current:             initial,
		lastTimestamp:       make(map[uint64]time.Time),
	}
}

func (v *InternalValidator) refreshWindow() {
	for {
		select {
		case w := <-v.windows:
			v.current = w
		default:
			return
		}
	}
}

func (v *InternalValidator) Validate(e *event.Event) Result {
	v.refreshWindow()

	if e.Generation() == 0 {
		return Result{e, ReasonZeroGeneration}
	}
	sp, op := e.SelfParent(), e.OtherParent()
	if sp != nil && sp.IsZero() {
		return Result{e, ReasonMissingSelfParent}
	}
	if !sp.IsZero() && !op.IsZero() && sp.Hash == op.Hash {
		return Result{e, ReasonSelfReferentialParents}
	}
	if !sp.IsZero() && e.Generation() <= sp.Generation {
		return Result{e, ReasonBadGenerationMath}
	}
	if !op.IsZero() && e.Generation() <= op.Generation {
		return Result{e, ReasonOtherParentGeneration}
	}
	if last, ok := v.lastTimestamp[e.Creator()]; ok && !e.TimeCreated().After(last) {
		return Result{e, ReasonNonMonotoneTimestamp}
	}
	if v.MaxTransactionBytes > 0 {
		var total int64
		for _, tx := range e.Transactions() {
			total += int64(len(tx))
		}
		if total > v.MaxTransactionBytes {
			return Result{e, ReasonTransactionTooLarge}
		}
	}
	if v.current.LatestConsensusRound >= 0 {
		limit := uint64(v.current.LatestConsensusRound) + v.BirthRoundTolerance
		if e.BirthRound() > limit {
			return Result{e, ReasonFutureBirthRound}
		}
	}
	if v.MaxClockDriftFuture > 0 {
		nowNanos := v.now()
		if nowNanos > 0 && e.TimeCreated().UnixNano() > nowNanos+v.MaxClockDriftFuture {
			return Result{e, ReasonFutureTimestamp}
		}
	}

	v.lastTimestamp[e.Creator()] = e.TimeCreated()
	return Result{e, ReasonNone}
}

// SignatureValidator checks the event's signature against the creator's
// public key as recorded in the current address book. Spec §4.5.
type SignatureValidator struct {
	Verifier cryptosig.Verifier
	Books    *addressbook.Manager
}

func NewSignatureValidator(verifier cryptosig.Verifier, books *addressbook.Manager) *SignatureValidator {
	return &SignatureValidator{Verifier: verifier, Books: books}
}

func (v *SignatureValidator) Validate(e *event.Event) Result {
	book := v.Books.Current()
	entry, ok := book.Get(e.Creator())
	if !ok {
		return Result{e, ReasonUnknownCreator}
	}
	if !entry.Active {
		return Result{e, ReasonInactiveCreator}
	}
	pub, err := cryptosig.FromHex(entry.PubKeyHex)
	if err != nil {
		return Result{e, ReasonBadSignature}
	}
	if !e.Verify(v.Verifier, pub) {
		return Result{e, ReasonBadSignature}
	}
	return Result{e, ReasonNone}
}

func (r Reason) String() string {
	if r == ReasonNone {
		return "valid"
	}
	return string(r)
}
