package validation

import (
	"testing"
	"time"

	"github.com/swirlchain/swirlnode/addressbook"
	"github.com/swirlchain/swirlnode/cryptosig"
	"github.com/swirlchain/swirlnode/event"
	"github.com/swirlchain/swirlnode/window"
)

// newValidator builds an InternalValidator with no window subscription and
// no transaction-size/birth-round limits, for tests that only care about
// the checks they explicitly exercise.
func newValidator(maxClockDriftFuture int64, now func() int64) *InternalValidator {
	return NewInternalValidator(maxClockDriftFuture, 0, 0, nil, window.Window{LatestConsensusRound: -1}, now)
}

func TestInternalValidatorRejectsZeroGeneration(t *testing.T) {
	v := newValidator(0, nil)
	e := event.New(1, nil, nil, 0, nil)
	e.Body.Generation = 0 // force a malformed event; event.New itself never produces this

	r := v.Validate(e)
	if r.Valid() || r.Reason != ReasonZeroGeneration {
		t.Fatalf("expected ReasonZeroGeneration, got %v", r.Reason)
	}
}

func TestInternalValidatorAcceptsGenesisEvent(t *testing.T) {
	v := newValidator(0, nil)
	e := event.New(1, nil, nil, 0, nil)

	r := v.Validate(e)
	if !r.Valid() {
		t.Fatalf("expected a genesis event to validate, got reason %v", r.Reason)
	}
}

func TestInternalValidatorAcceptsWellFormedChild(t *testing.T) {
	v := newValidator(0, nil)
	self := &event.Descriptor{Hash: "0xaa", Generation: 1, CreatorID: 1}
	e := event.New(1, self, nil, 0, nil)

	r := v.Validate(e)
	if !r.Valid() {
		t.Fatalf("expected a well-formed child event to validate, got reason %v", r.Reason)
	}
}

func TestInternalValidatorRejectsMissingSelfParentDescriptor(t *testing.T) {
	v := newValidator(0, nil)
	e := event.New(1, nil, nil, 0, nil)
	e.Body.SelfParent = &event.Descriptor{} // present but zero-valued: IsZero() true

	r := v.Validate(e)
	if r.Valid() || r.Reason != ReasonMissingSelfParent {
		t.Fatalf("expected ReasonMissingSelfParent, got %v", r.Reason)
	}
}

func TestInternalValidatorRejectsSelfReferentialParents(t *testing.T) {
	v := newValidator(0, nil)
	shared := &event.Descriptor{Hash: "0xaa", Generation: 1, CreatorID: 1}
	e := event.New(1, shared, shared, 0, nil)

	r := v.Validate(e)
	if r.Valid() || r.Reason != ReasonSelfReferentialParents {
		t.Fatalf("expected ReasonSelfReferentialParents, got %v", r.Reason)
	}
}

func TestInternalValidatorRejectsBadGenerationMath(t *testing.T) {
	v := newValidator(0, nil)
	self := &event.Descriptor{Hash: "0xaa", Generation: 4, CreatorID: 1}
	e := event.New(1, self, nil, 0, nil)
	e.Body.Generation = 4 // should be greater than the self-parent's, and isn't

	r := v.Validate(e)
	if r.Valid() || r.Reason != ReasonBadGenerationMath {
		t.Fatalf("expected ReasonBadGenerationMath, got %v", r.Reason)
	}
}

func TestInternalValidatorRejectsOtherParentGenerationNotLessThanChild(t *testing.T) {
	v := newValidator(0, nil)
	self := &event.Descriptor{Hash: "0xaa", Generation: 1, CreatorID: 1}
	other := &event.Descriptor{Hash: "0xbb", Generation: 4, CreatorID: 2}
	e := event.New(1, self, other, 0, nil)
	e.Body.Generation = 3 // greater than self-parent's, but not greater than other-parent's

	r := v.Validate(e)
	if r.Valid() || r.Reason != ReasonOtherParentGeneration {
		t.Fatalf("expected ReasonOtherParentGeneration, got %v", r.Reason)
	}
}

func TestInternalValidatorRejectsNonMonotoneTimestamp(t *testing.T) {
	v := newValidator(0, nil)
	first := event.New(1, nil, nil, 0, nil)
	first.Body.TimeCreated = time.Unix(1000, 0)
	if r := v.Validate(first); !r.Valid() {
		t.Fatalf("expected first event to validate, got reason %v", r.Reason)
	}

	self := &event.Descriptor{Hash: "0xaa", Generation: 1, CreatorID: 1}
	second := event.New(1, self, nil, 0, nil)
	second.Body.TimeCreated = time.Unix(999, 0) // earlier than the creator's prior event

	r := v.Validate(second)
	if r.Valid() || r.Reason != ReasonNonMonotoneTimestamp {
		t.Fatalf("expected ReasonNonMonotoneTimestamp, got %v", r.Reason)
	}
}

func TestInternalValidatorAllowsMonotoneTimestampAcrossCreators(t *testing.T) {
	v := newValidator(0, nil)
	one := event.New(1, nil, nil, 0, nil)
	one.Body.TimeCreated = time.Unix(1000, 0)
	if r := v.Validate(one); !r.Valid() {
		t.Fatalf("expected first creator's event to validate, got reason %v", r.Reason)
	}

	two := event.New(2, nil, nil, 0, nil)
	two.Body.TimeCreated = time.Unix(1, 0) // earlier, but a different creator: no conflict

	r := v.Validate(two)
	if !r.Valid() {
		t.Fatalf("expected a different creator's earlier timestamp to validate, got reason %v", r.Reason)
	}
}

func TestInternalValidatorRejectsOversizedTransactionPayload(t *testing.T) {
	v := NewInternalValidator(0, 8, 0, nil, window.Window{LatestConsensusRound: -1}, nil)
	e := event.New(1, nil, nil, 0, [][]byte{[]byte("0123456789")}) // 10 bytes > limit of 8

	r := v.Validate(e)
	if r.Valid() || r.Reason != ReasonTransactionTooLarge {
		t.Fatalf("expected ReasonTransactionTooLarge, got %v", r.Reason)
	}
}

func TestInternalValidatorAllowsTransactionPayloadWithinLimit(t *testing.T) {
	v := NewInternalValidator(0, 8, 0, nil, window.Window{LatestConsensusRound: -1}, nil)
	e := event.New(1, nil, nil, 0, [][]byte{[]byte("ok")})

	r := v.Validate(e)
	if !r.Valid() {
		t.Fatalf("expected a small transaction payload to validate, got reason %v", r.Reason)
	}
}

func TestInternalValidatorRejectsFutureBirthRound(t *testing.T) {
	v := NewInternalValidator(0, 0, 2, nil, window.Window{LatestConsensusRound: 10}, nil)
	e := event.New(1, nil, nil, 13, nil) // 13 > latest round 10 + tolerance 2

	r := v.Validate(e)
	if r.Valid() || r.Reason != ReasonFutureBirthRound {
		t.Fatalf("expected ReasonFutureBirthRound, got %v", r.Reason)
	}
}

func TestInternalValidatorAllowsBirthRoundWithinTolerance(t *testing.T) {
	v := NewInternalValidator(0, 0, 2, nil, window.Window{LatestConsensusRound: 10}, nil)
	e := event.New(1, nil, nil, 12, nil) // 12 == latest round 10 + tolerance 2

	r := v.Validate(e)
	if !r.Valid() {
		t.Fatalf("expected a birth round within tolerance to validate, got reason %v", r.Reason)
	}
}

func TestInternalValidatorSkipsFutureBirthRoundCheckBeforeFirstConsensusRound(t *testing.T) {
	v := NewInternalValidator(0, 0, 0, nil, window.Window{LatestConsensusRound: -1}, nil)
	e := event.New(1, nil, nil, 1000, nil) // no consensus round decided yet: nothing to compare against

	r := v.Validate(e)
	if !r.Valid() {
		t.Fatalf("expected a birth round to validate before any consensus round exists, got reason %v", r.Reason)
	}
}

func TestInternalValidatorRejectsFutureTimestamp(t *testing.T) {
	now := time.Now().UnixNano()
	v := newValidator(time.Second.Nanoseconds(), func() int64 { return now })
	e := event.New(1, nil, nil, 0, nil)
	e.Body.TimeCreated = time.Unix(0, now+10*time.Second.Nanoseconds())

	r := v.Validate(e)
	if r.Valid() || r.Reason != ReasonFutureTimestamp {
		t.Fatalf("expected ReasonFutureTimestamp, got %v", r.Reason)
	}
}

func TestInternalValidatorAllowsTimestampWithinDrift(t *testing.T) {
	now := time.Now().UnixNano()
	v := newValidator(time.Second.Nanoseconds(), func() int64 { return now })
	e := event.New(1, nil, nil, 0, nil)
	e.Body.TimeCreated = time.Unix(0, now+10) // nanoseconds ahead, well within a second

	r := v.Validate(e)
	if !r.Valid() {
		t.Fatalf("expected a slightly-ahead timestamp within drift to validate, got reason %v", r.Reason)
	}
}

func newSignedEvent(t *testing.T, creatorID uint64, signer *cryptosig.ECDSASigner, self *event.Descriptor) *event.Event {
	t.Helper()
	e := event.New(creatorID, self, nil, 0, nil)
	if _, err := e.Hash(cryptosig.NewSHA256Hasher()); err != nil {
		t.Fatal(err)
	}
	if err := e.Sign(signer); err != nil {
		t.Fatal(err)
	}
	return e
}

func TestSignatureValidatorAcceptsValidSignatureFromActiveCreator(t *testing.T) {
	priv, err := cryptosig.GenerateECDSAKey()
	if err != nil {
		t.Fatal(err)
	}
	signer := cryptosig.NewECDSASigner(priv)
	ab := addressbook.FromEntries(0, []*addressbook.Entry{
		{ID: 1, PubKeyHex: cryptosig.ToHex(signer.PublicKey()), Weight: 1, Active: true},
	})
	v := NewSignatureValidator(signer, addressbook.NewManager(ab))

	e := newSignedEvent(t, 1, signer, nil)
	r := v.Validate(e)
	if !r.Valid() {
		t.Fatalf("expected a correctly signed event from an active creator to validate, got reason %v", r.Reason)
	}
}

func TestSignatureValidatorRejectsUnknownCreator(t *testing.T) {
	priv, err := cryptosig.GenerateECDSAKey()
	if err != nil {
		t.Fatal(err)
	}
	signer := cryptosig.NewECDSASigner(priv)
	ab := addressbook.FromEntries(0, nil)
	v := NewSignatureValidator(signer, addressbook.NewManager(ab))

	e := newSignedEvent(t, 1, signer, nil)
	r := v.Validate(e)
	if r.Valid() || r.Reason != ReasonUnknownCreator {
		t.Fatalf("expected ReasonUnknownCreator, got %v", r.Reason)
	}
}

func TestSignatureValidatorRejectsInactiveCreator(t *testing.T) {
	priv, err := cryptosig.GenerateECDSAKey()
	if err != nil {
		t.Fatal(err)
	}
	signer := cryptosig.NewECDSASigner(priv)
	ab := addressbook.FromEntries(0, []*addressbook.Entry{
		{ID: 1, PubKeyHex: cryptosig.ToHex(signer.PublicKey()), Weight: 1, Active: false},
	})
	v := NewSignatureValidator(signer, addressbook.NewManager(ab))

	e := newSignedEvent(t, 1, signer, nil)
	r := v.Validate(e)
	if r.Valid() || r.Reason != ReasonInactiveCreator {
		t.Fatalf("expected ReasonInactiveCreator, got %v", r.Reason)
	}
}

func TestSignatureValidatorRejectsTamperedSignature(t *testing.T) {
	priv, err := cryptosig.GenerateECDSAKey()
	if err != nil {
		t.Fatal(err)
	}
	signer := cryptosig.NewECDSASigner(priv)
	ab := addressbook.FromEntries(0, []*addressbook.Entry{
		{ID: 1, PubKeyHex: cryptosig.ToHex(signer.PublicKey()), Weight: 1, Active: true},
	})
	v := NewSignatureValidator(signer, addressbook.NewManager(ab))

	e := newSignedEvent(t, 1, signer, nil)
	e.Signature[0] ^= 0xFF
	r := v.Validate(e)
	if r.Valid() || r.Reason != ReasonBadSignature {
		t.Fatalf("expected ReasonBadSignature, got %v", r.Reason)
	}
}
