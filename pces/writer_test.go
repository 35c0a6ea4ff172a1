package pces

import (
	"os"
	"testing"
	"time"

	"github.com/swirlchain/swirlnode/event"
)

func stampedEvent(t *testing.T, seq uint64, self, other *event.Descriptor, birthRound uint64) *event.Event {
	t.Helper()
	e := event.New(1, self, other, birthRound, [][]byte{[]byte("tx")})
	e.SetStreamSequence(seq)
	return e
}

func newTestWriter(t *testing.T, limit RotationLimit) (*Writer, *Index) {
	t.Helper()
	dir := t.TempDir()
	ix, err := OpenIndex(dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ix.Close() })
	return NewWriter(dir, ix, GenerationMode, limit, NewDurabilityNexus()), ix
}

func TestWriterAppendAndCloseProducesReadableSegment(t *testing.T) {
	w, _ := newTestWriter(t, RotationLimit{})
	if err := w.Open(1, 0); err != nil {
		t.Fatal(err)
	}
	e := stampedEvent(t, 1, nil, nil, 0)
	if err := w.Append(e); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(w.segmentPath(1))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if _, err := ReadHeader(f); err != nil {
		t.Fatal(err)
	}
	rec, marker, err := ReadNext(f)
	if err != nil {
		t.Fatal(err)
	}
	if marker != nil || rec == nil {
		t.Fatal("expected exactly one record")
	}
	if rec.SeqNum != 1 {
		t.Fatalf("expected seqNum 1, got %d", rec.SeqNum)
	}
	if _, err := ReadFooter(f); err != nil {
		t.Fatalf("expected a footer after Close(): %v", err)
	}
}

func TestWriterAppendRejectsUnstampedEvent(t *testing.T) {
	w, _ := newTestWriter(t, RotationLimit{})
	if err := w.Open(1, 0); err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	e := event.New(1, nil, nil, 0, nil)
	if err := w.Append(e); err == nil {
		t.Fatal("expected Append to reject an event with no stream sequence number")
	}
}

func TestWriterRotatesWhenGenerationSpanExceeded(t *testing.T) {
	w, ix := newTestWriter(t, RotationLimit{MaxGenerationSpan: 1})
	if err := w.Open(1, 0); err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := w.Append(stampedEvent(t, 1, nil, nil, 0)); err != nil {
		t.Fatal(err)
	}
	// Generation 3 (a descriptor at generation 2, plus 1) exceeds the span-1
	// limit against the first event's generation 1, forcing a rotation.
	farParent := &event.Descriptor{Hash: "0xaa", Generation: 2, CreatorID: 1}
	if err := w.Append(stampedEvent(t, 2, farParent, nil, 0)); err != nil {
		t.Fatal(err)
	}

	metas, err := ix.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 2 {
		t.Fatalf("expected 2 segments after rotation, got %d", len(metas))
	}
	sealedCount := 0
	for _, m := range metas {
		if m.Sealed {
			sealedCount++
		}
	}
	if sealedCount != 1 {
		t.Fatalf("expected exactly 1 sealed segment, got %d", sealedCount)
	}
}

func TestWriterFlushRequestAdvancesDurabilityNexus(t *testing.T) {
	w, _ := newTestWriter(t, RotationLimit{})
	if err := w.Open(1, 0); err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := w.Append(stampedEvent(t, 1, nil, nil, 0)); err != nil {
		t.Fatal(err)
	}
	if err := w.FlushRequest(1); err != nil {
		t.Fatal(err)
	}
	if got := w.nexus.Latest(); got != 1 {
		t.Fatalf("expected durability nexus latest 1, got %d", got)
	}
}

func TestDurabilityNexusWaitDurableTimesOutWithoutAdvance(t *testing.T) {
	n := NewDurabilityNexus()
	if n.WaitDurable(5, 50*time.Millisecond) {
		t.Fatal("WaitDurable should time out when nothing ever advances past the target")
	}
}

func TestDurabilityNexusWaitDurableUnblocksOnAdvance(t *testing.T) {
	n := NewDurabilityNexus()
	done := make(chan bool, 1)
	go func() { done <- n.WaitDurable(5, time.Second) }()

	time.Sleep(10 * time.Millisecond)
	n.Advance(5)

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("expected WaitDurable to report true once advanced past the target")
		}
	case <-time.After(time.Second):
		t.Fatal("WaitDurable did not unblock after Advance")
	}
}
