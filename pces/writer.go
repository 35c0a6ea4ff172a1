// Writer implements the PCES Writer & Durability Nexus (spec §4.10).
// Grounded on the teacher's BadgerStore.SetEvent (append + durable handle
// ownership) generalized to segment files with explicit fsync gating, and
// on node.Core's own single-owner-of-the-store discipline ("PCES file
// handle: owned solely by the writer", spec §5).
package pces

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/swirlchain/swirlnode/event"
)

// RotationLimit bounds how much generation/birthRound span a single
// segment file may cover before the writer rotates to a new one.
type RotationLimit struct {
	MaxGenerationSpan uint64
	MaxBirthRoundSpan uint64
}

// Writer appends sequenced events to the current segment file and honors
// flush requests tied to a keystone event's sequence number.
type Writer struct {
	mu sync.Mutex

	dir    string
	index  *Index
	mode   AncientMode
	limit  RotationLimit

	file         *os.File
	header       SegmentHeader
	recordCount  uint64
	minGen       uint64
	maxGen       uint64
	minBR        uint64
	maxBR        uint64
	haveSpan     bool

	nexus *DurabilityNexus
}

func NewWriter(dir string, index *Index, mode AncientMode, limit RotationLimit, nexus *DurabilityNexus) *Writer {
	return &Writer{dir: dir, index: index, mode: mode, limit: limit, nexus: nexus}
}

func (w *Writer) segmentPath(firstSeq uint64) string {
	return filepath.Join(w.dir, fmt.Sprintf("segment-%020d.pces", firstSeq))
}

// Open starts (or resumes) a segment at firstSeq/minAncientID.
func (w *Writer) Open(firstSeq, minAncientID uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.openLocked(firstSeq, minAncientID)
}

func (w *Writer) openLocked(firstSeq, minAncientID uint64) error {
	path := w.segmentPath(firstSeq)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	h := SegmentHeader{FirstSeqNum: firstSeq, MinAncientID: minAncientID, AncientMode: w.mode}
	if err := WriteHeader(f, h); err != nil {
		f.Close()
		return err
	}
	w.file = f
	w.header = h
	w.recordCount = 0
	w.haveSpan = false
	return w.index.Put(SegmentMeta{Path: path, FirstSeqNum: firstSeq, MinAncientID: minAncientID})
}

// Append writes one stamped event as a PCES record (spec §4.10: "Appends
// each sequenced event to the current segment file").
func (w *Writer) Append(e *event.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	seq, ok := e.StreamSequence()
	if !ok {
		return fmt.Errorf("pces: event has no stream sequence number")
	}
	payload, err := e.Marshal()
	if err != nil {
		return err
	}
	if err := WriteRecord(w.file, payload, seq); err != nil {
		return err
	}
	w.recordCount++
	w.trackSpan(e)
	return w.rotateIfNeededLocked(seq)
}

func (w *Writer) trackSpan(e *event.Event) {
	gen, br := e.Generation(), e.BirthRound()
	if !w.haveSpan {
		w.minGen, w.maxGen, w.minBR, w.maxBR = gen, gen, br, br
		w.haveSpan = true
		return
	}
	if gen < w.minGen {
		w.minGen = gen
	}
	if gen > w.maxGen {
		w.maxGen = gen
	}
	if br < w.minBR {
		w.minBR = br
	}
	if br > w.maxBR {
		w.maxBR = br
	}
}

func (w *Writer) rotateIfNeededLocked(lastSeq uint64) error {
	if !w.haveSpan {
		return nil
	}
	exceedsGen := w.limit.MaxGenerationSpan > 0 && (w.maxGen-w.minGen) > w.limit.MaxGenerationSpan
	exceedsBR := w.limit.MaxBirthRoundSpan > 0 && (w.maxBR-w.minBR) > w.limit.MaxBirthRoundSpan
	if !exceedsGen && !exceedsBR {
		return nil
	}
	if err := w.sealLocked(); err != nil {
		return err
	}
	return w.openLocked(lastSeq+1, w.minAncientIDLocked())
}

func (w *Writer) minAncientIDLocked() uint64 {
	if w.mode == BirthRoundMode {
		return w.minBR
	}
	return w.minGen
}

func (w *Writer) maxAncientIDLocked() uint64 {
	if w.mode == BirthRoundMode {
		return w.maxBR
	}
	return w.maxGen
}

func (w *Writer) sealLocked() error {
	if w.file == nil {
		return nil
	}
	if err := WriteFooter(w.file, Footer{RecordCount: w.recordCount, MaxAncientID: w.maxAncientIDLocked()}); err != nil {
		return err
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	path := w.file.Name()
	if err := w.file.Close(); err != nil {
		return err
	}
	return w.index.Put(SegmentMeta{
		Path:         path,
		FirstSeqNum:  w.header.FirstSeqNum,
		LastSeqNum:   w.header.FirstSeqNum + w.recordCount - 1,
		MinAncientID: w.header.MinAncientID,
		MaxAncientID: w.maxAncientIDLocked(),
		Sealed:       true,
	})
}

// FlushRequest forces an fsync and advances the durability nexus's
// latestDurableSequenceNumber to at least keystoneSeq — the trigger the
// consensus engine sends on each decided round's keystone event (spec
// §4.9/§4.10).
func (w *Writer) FlushRequest(keystoneSeq uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return fmt.Errorf("pces: writer has no open segment")
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	w.nexus.Advance(keystoneSeq)
	return nil
}

// Discontinuity closes the current file, records a marker, and opens a
// fresh segment starting at nextSeq (spec §4.10's reconnect handling).
func (w *Writer) Discontinuity(nextSeq uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		if err := WriteDiscontinuity(w.file, DiscontinuityMarker{NextSeqNum: nextSeq}); err != nil {
			return err
		}
		if err := w.sealLocked(); err != nil {
			return err
		}
	}
	return w.openLocked(nextSeq, w.minAncientIDLocked())
}

// Prune deletes segment files fully below minimumAncientIdentifierToStore,
// the state-file manager's recovery floor (spec §4.10's deletion rule).
func (w *Writer) Prune(minimumAncientID uint64) error {
	toDelete, err := w.index.DeleteBefore(minimumAncientID)
	if err != nil {
		return err
	}
	for _, m := range toDelete {
		if err := os.Remove(m.Path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sealLocked()
}

// DurabilityNexus holds the single authoritative
// latestDurableSequenceNumber spec §4.10 describes, gating application-side
// submission of a consensus round until its causing events are durable.
type DurabilityNexus struct {
	mu          sync.Mutex
	latest      uint64
	subscribers []chan uint64
}

func NewDurabilityNexus() *DurabilityNexus {
	return &DurabilityNexus{}
}

func (n *DurabilityNexus) Advance(seq uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if seq <= n.latest {
		return
	}
	n.latest = seq
	for _, ch := range n.subscribers {
		select {
		case ch <- seq:
		default:
		}
	}
}

func (n *DurabilityNexus) Latest() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.latest
}

func (n *DurabilityNexus) Subscribe() <-chan uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch := make(chan uint64, 4)
	n.subscribers = append(n.subscribers, ch)
	return ch
}

// WaitDurable blocks until latestDurableSequenceNumber >= seq or timeout
// elapses, the gate application-side round submission uses (spec §4.10).
func (n *DurabilityNexus) WaitDurable(seq uint64, timeout time.Duration) bool {
	if n.Latest() >= seq {
		return true
	}
	ch := n.Subscribe()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case got := <-ch:
			if got >= seq {
				return true
			}
		case <-deadline.C:
			return n.Latest() >= seq
		}
	}
}
