package orphan

import (
	"testing"

	"github.com/swirlchain/swirlnode/cryptosig"
	"github.com/swirlchain/swirlnode/event"
	"github.com/swirlchain/swirlnode/window"
)

func hashedEvent(t *testing.T, creator uint64, self, other *event.Descriptor) *event.Event {
	t.Helper()
	e := event.New(creator, self, other, 0, nil)
	if _, err := e.Hash(cryptosig.NewSHA256Hasher()); err != nil {
		t.Fatal(err)
	}
	return e
}

func newBuffer() *Buffer {
	return New(make(chan window.Window, 1), window.Window{AncientMode: window.GenerationMode})
}

func TestOfferAdmitsEventWithNoParents(t *testing.T) {
	b := newBuffer()
	e := hashedEvent(t, 1, nil, nil)
	if ready := b.Offer(e); !ready {
		t.Fatal("an event with no parents should be admitted immediately")
	}
	if b.Len() != 0 {
		t.Fatalf("expected nothing buffered, got %d", b.Len())
	}
}

func TestOfferBuffersEventWithMissingParent(t *testing.T) {
	b := newBuffer()
	missing := &event.Descriptor{Hash: "0xmissing", Generation: 0, CreatorID: 1}
	e := hashedEvent(t, 1, missing, nil)

	if ready := b.Offer(e); ready {
		t.Fatal("an event naming an unseen parent should be buffered, not admitted")
	}
	if b.Len() != 1 {
		t.Fatalf("expected 1 buffered event, got %d", b.Len())
	}
}

func TestAdmitReleasesWaitingEventAndCascades(t *testing.T) {
	b := newBuffer()

	parent := hashedEvent(t, 1, nil, nil)
	child := hashedEvent(t, 1, parent.Descriptor(), nil)
	grandchild := hashedEvent(t, 1, child.Descriptor(), nil)

	if ready := b.Offer(child); ready {
		t.Fatal("child should be buffered: its self-parent is not yet admitted")
	}
	if ready := b.Offer(grandchild); ready {
		t.Fatal("grandchild should be buffered: its self-parent (child) is not yet admitted")
	}
	if b.Len() != 2 {
		t.Fatalf("expected 2 buffered events, got %d", b.Len())
	}

	released := b.Admit(parent.Hex())
	if len(released) != 2 {
		t.Fatalf("expected both child and grandchild released by cascade, got %d", len(released))
	}
	if released[0].Hex() != child.Hex() || released[1].Hex() != grandchild.Hex() {
		t.Fatalf("expected release order [child, grandchild], got %v", released)
	}
	if b.Len() != 0 {
		t.Fatalf("expected the buffer to be empty after the cascade, got %d", b.Len())
	}
}

func TestExpireAncientDropsEventsOutsideWindow(t *testing.T) {
	windows := make(chan window.Window, 1)
	b := New(windows, window.Window{AncientMode: window.GenerationMode})

	missing := &event.Descriptor{Hash: "0xmissing", Generation: 1, CreatorID: 1}
	stale := hashedEvent(t, 1, missing, nil) // generation 2, not ancient yet at offer time

	if ready := b.Offer(stale); ready {
		t.Fatal("expected the event to be buffered, not admitted")
	}

	// the window advances past stale's own generation while it's still
	// waiting on its (also now-ancient) parent
	b.current = window.Window{AncientMode: window.GenerationMode, MinNonAncientGenerationOrBirthRound: 5}

	expired := b.ExpireAncient()
	if expired != 1 {
		t.Fatalf("expected 1 expired event, got %d", expired)
	}
	if b.Len() != 0 {
		t.Fatalf("expected the buffer to be empty after expiry, got %d", b.Len())
	}
}

func TestOfferTreatsAlreadyAncientParentAsPresent(t *testing.T) {
	windows := make(chan window.Window, 1)
	b := New(windows, window.Window{AncientMode: window.GenerationMode, MinNonAncientGenerationOrBirthRound: 5})

	longGone := &event.Descriptor{Hash: "0xlonggone", Generation: 1, CreatorID: 1} // 1 < 5: ancient
	e := hashedEvent(t, 1, longGone, nil)

	if ready := b.Offer(e); !ready {
		t.Fatal("an event whose parent is already ancient should be admitted immediately, not buffered")
	}
	if b.Len() != 0 {
		t.Fatalf("expected nothing buffered, got %d", b.Len())
	}
}
