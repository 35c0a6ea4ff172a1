// Replayer implements the PCES Replayer (spec §4.11): single-shot at
// startup, direct scheduler, walking durable segments from the last
// persisted state's window forward and forwarding each event into the
// hasher input exactly as a gossip event would be. Grounded on the
// teacher's JoinGameRequest/FastForward replay-from-snapshot pattern
// (node/*), generalized to a segment-file iterator.
package pces

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/swirlchain/swirlnode/event"
)

// Forward is called once per replayed event, in stream-sequence order.
type Forward func(e *event.Event) error

type Replayer struct {
	index *Index
}

func NewReplayer(index *Index) *Replayer {
	return &Replayer{index: index}
}

// Replay walks every indexed segment whose records fall at or after
// fromSeq, decoding and forwarding each one. A discontinuity marker
// forwards nothing and replay goes on with the records after it in the
// same segment. A truncated record ends replay of that segment, since it
// is the newest data left by an unclean shutdown.
func (r *Replayer) Replay(fromSeq uint64, fwd Forward) (lastSeq uint64, err error) {
	segments, err := r.index.List()
	if err != nil {
		return 0, err
	}
	sort.Slice(segments, func(i, j int) bool { return segments[i].FirstSeqNum < segments[j].FirstSeqNum })

	lastSeq = fromSeq
	for _, seg := range segments {
		if seg.LastSeqNum != 0 && seg.LastSeqNum < fromSeq {
			continue
		}
		n, err := r.replaySegment(seg, fromSeq, fwd)
		if err != nil {
			return lastSeq, err
		}
		if n > lastSeq {
			lastSeq = n
		}
	}
	return lastSeq, nil
}

func (r *Replayer) replaySegment(seg SegmentMeta, fromSeq uint64, fwd Forward) (uint64, error) {
	f, err := os.Open(seg.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()

	if _, err := ReadHeader(f); err != nil {
		return 0, fmt.Errorf("pces: segment %s: %w", seg.Path, err)
	}

	var last uint64
	for {
		rec, disc, err := ReadNext(f)
		switch {
		case err == io.EOF:
			return last, nil
		case err == ErrTruncated:
			// unclean shutdown mid-record: stop here, this is the newest data.
			return last, nil
		case err != nil:
			return last, err
		case disc != nil:
			// derivation state resets at the marker; nothing to forward.
			continue
		}
		if rec.SeqNum < fromSeq {
			continue
		}
		e, err := event.Unmarshal(rec.Payload)
		if err != nil {
			return last, fmt.Errorf("pces: segment %s seq %d: %w", seg.Path, rec.SeqNum, err)
		}
		e.SetStreamSequence(rec.SeqNum)
		if err := fwd(e); err != nil {
			return last, err
		}
		last = rec.SeqNum
	}
}
