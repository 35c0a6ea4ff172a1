package consensus

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/swirlchain/swirlnode/addressbook"
	"github.com/swirlchain/swirlnode/common"
	"github.com/swirlchain/swirlnode/cryptosig"
	"github.com/swirlchain/swirlnode/event"
	"github.com/swirlchain/swirlnode/linker"
	"github.com/swirlchain/swirlnode/window"
)

func testLogger(t *testing.T) *logrus.Entry {
	return common.NewTestLogger(t)
}

// fourNodeBook and twoNodeBook assign explicit entry IDs matching the
// creator IDs the tests hand to hashedEvent — stronglySee looks up
// LastAncestor/FirstDescendant by entry.ID, so it must line up with the
// creator IDs actually recorded on the linked events, not the hash of
// PubKeyHex that FromEntries would otherwise compute.
func fourNodeBook() *addressbook.Manager {
	ab := addressbook.FromEntries(0, []*addressbook.Entry{
		{ID: 1, PubKeyHex: "0xaa", Weight: 1, Active: true},
		{ID: 2, PubKeyHex: "0xbb", Weight: 1, Active: true},
		{ID: 3, PubKeyHex: "0xcc", Weight: 1, Active: true},
		{ID: 4, PubKeyHex: "0xdd", Weight: 1, Active: true},
	})
	return addressbook.NewManager(ab)
}

func twoNodeBook() *addressbook.Manager {
	ab := addressbook.FromEntries(0, []*addressbook.Entry{
		{ID: 1, PubKeyHex: "0xaa", Weight: 1, Active: true},
		{ID: 2, PubKeyHex: "0xbb", Weight: 1, Active: true},
	})
	return addressbook.NewManager(ab)
}

func hashedEvent(t *testing.T, creator uint64, self, other *event.Descriptor) *event.Event {
	t.Helper()
	e := event.New(creator, self, other, 0, nil)
	if _, err := e.Hash(cryptosig.NewSHA256Hasher()); err != nil {
		t.Fatal(err)
	}
	return e
}

func TestAddEventGenesisIsRoundZeroWitness(t *testing.T) {
	lk := linker.New(make(chan window.Window, 1), window.Window{AncientMode: window.GenerationMode})
	e := hashedEvent(t, 1, nil, nil)
	l, err := lk.Link(e)
	if err != nil {
		t.Fatal(err)
	}

	eng := NewEngine(fourNodeBook(), lk, testLogger(t))
	eng.AddEvent(l)

	if !l.Witness() {
		t.Fatal("a genesis event should always be a witness")
	}
	if rc, ok := l.RoundCreated(); !ok || rc != 0 {
		t.Fatalf("expected round created 0, got %d (ok=%v)", rc, ok)
	}
	if _, ok := eng.rounds[0]; !ok {
		t.Fatal("round 0 should now have at least one registered witness")
	}
}

func TestSeeFollowsSelfAncestry(t *testing.T) {
	lk := linker.New(make(chan window.Window, 1), window.Window{AncientMode: window.GenerationMode})
	eng := NewEngine(fourNodeBook(), lk, testLogger(t))

	var self *event.Descriptor
	var links []*linker.Linked
	for i := 0; i < 3; i++ {
		e := hashedEvent(t, 1, self, nil)
		l, err := lk.Link(e)
		if err != nil {
			t.Fatal(err)
		}
		eng.AddEvent(l)
		links = append(links, l)
		self = l.Descriptor()
	}

	if !eng.see(links[0], links[2]) {
		t.Fatal("an earlier self-ancestor should be seen by a later descendant")
	}
	if eng.see(links[2], links[0]) {
		t.Fatal("a later event should not be seen by an earlier one")
	}
}

// TestStronglySeeRequiresSupermajorityWeight uses a 2-node book (weight 1
// each, supermajority = 2) and a 4-event graph:
//
//	e1 (creator 1 genesis)
//	 |  \
//	e2   g2 (creator 2 genesis, other-parent e1)
//	 |  /
//	e3 (creator 1, self-parent e2, other-parent g2)
//
// e3's last-ancestor-of-creator-1 is itself (generation >= e1's
// first-descendant-of-1, which is e1) and its last-ancestor-of-creator-2 is
// g2 (generation >= e1's first-descendant-of-2, which is g2 itself via its
// other-parent edge to e1) — corroborating weight 2, meeting the
// supermajority. g2, by contrast, has no descendant path back
// through creator 1 that reaches e3, so it should not strongly-see e3.
func TestStronglySeeRequiresSupermajorityWeight(t *testing.T) {
	lk := linker.New(make(chan window.Window, 1), window.Window{AncientMode: window.GenerationMode})
	eng := NewEngine(twoNodeBook(), lk, testLogger(t))

	e1 := hashedEvent(t, 1, nil, nil)
	l1, err := lk.Link(e1)
	if err != nil {
		t.Fatal(err)
	}
	eng.AddEvent(l1)

	g2 := hashedEvent(t, 2, nil, l1.Descriptor())
	lg2, err := lk.Link(g2)
	if err != nil {
		t.Fatal(err)
	}
	eng.AddEvent(lg2)

	e2 := hashedEvent(t, 1, l1.Descriptor(), nil)
	l2, err := lk.Link(e2)
	if err != nil {
		t.Fatal(err)
	}
	eng.AddEvent(l2)

	e3 := hashedEvent(t, 1, l2.Descriptor(), lg2.Descriptor())
	l3, err := lk.Link(e3)
	if err != nil {
		t.Fatal(err)
	}
	eng.AddEvent(l3)

	if !eng.stronglySee(l3, l1) {
		t.Fatal("e3 should strongly-see creator 1's own genesis plus creator 2's corroboration")
	}
	if eng.stronglySee(lg2, l3) {
		t.Fatal("creator 2's genesis has no descendant path back through creator 1 reaching e3, so it should not strongly-see e3")
	}
}

func TestFindOrderEmitsRoundsInTimestampOrderAndSpreadsTies(t *testing.T) {
	lk := linker.New(make(chan window.Window, 1), window.Window{AncientMode: window.GenerationMode})
	eng := NewEngine(fourNodeBook(), lk, testLogger(t))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var links []*linker.Linked
	for i := 0; i < 3; i++ {
		e := hashedEvent(t, uint64(i+1), nil, nil)
		l, err := lk.Link(e)
		if err != nil {
			t.Fatal(err)
		}
		l.SetRoundReceived(0)
		// Two of the three share an identical consensus timestamp to
		// exercise the whitened-hash tiebreak and the timestamp spread.
		if i < 2 {
			l.SetConsensusTimestamp(base)
		} else {
			l.SetConsensusTimestamp(base.Add(time.Second))
		}
		links = append(links, l)
	}
	eng.undetermined = links

	rounds := eng.FindOrder()
	if len(rounds) != 1 {
		t.Fatalf("expected exactly 1 emitted round, got %d", len(rounds))
	}
	r := rounds[0]
	if len(r.Events) != 3 {
		t.Fatalf("expected 3 events in the round, got %d", len(r.Events))
	}
	for i := 1; i < len(r.Events); i++ {
		if !r.Events[i].ConsensusTimestamp().After(r.Events[i-1].ConsensusTimestamp()) {
			t.Fatalf("events %d and %d should have strictly increasing timestamps after spreading", i-1, i)
		}
	}
	if len(eng.undetermined) != 0 {
		t.Fatal("all decided events should have been drained from undetermined")
	}
}

func TestFindOrderLeavesUndecidedEventsPending(t *testing.T) {
	lk := linker.New(make(chan window.Window, 1), window.Window{AncientMode: window.GenerationMode})
	eng := NewEngine(fourNodeBook(), lk, testLogger(t))

	e := hashedEvent(t, 1, nil, nil)
	l, err := lk.Link(e)
	if err != nil {
		t.Fatal(err)
	}
	eng.undetermined = []*linker.Linked{l}

	rounds := eng.FindOrder()
	if rounds != nil {
		t.Fatal("an event with no round-received yet should not produce an emitted round")
	}
	if len(eng.undetermined) != 1 {
		t.Fatal("the undecided event should remain in the undetermined set")
	}
}
