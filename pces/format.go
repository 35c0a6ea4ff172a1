// Package pces implements the Pre-Consensus Event Stream: the sequencer
// that stamps each linked event with a monotone stream sequence number, the
// durable segment-file writer and its fsync-gated durability nexus, and the
// startup replayer. Wire format is spec §6's PCES segment layout; grounded
// on the teacher's hashgraph/badger_store.go for the "durable store with a
// small on-disk index" pattern, generalized from a single badger DB holding
// every event to an append-only segment file per rotation, indexed in
// badger by segment metadata only.
package pces

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

const (
	magic         uint32 = 0x50434553 // "PCES"
	formatVersion uint32 = 1
)

// AncientMode mirrors window.AncientMode's two values as an on-disk byte,
// kept independent of the window package so the wire format doesn't need
// to import it.
type AncientMode uint8

const (
	GenerationMode AncientMode = 0
	BirthRoundMode AncientMode = 1
)

// SegmentHeader is the fixed-size header spec §6 defines for every segment
// file: magic | formatVersion | firstSeqNum | minAncientId | ancientMode.
type SegmentHeader struct {
	FirstSeqNum  uint64
	MinAncientID uint64
	AncientMode  AncientMode
}

func WriteHeader(w io.Writer, h SegmentHeader) error {
	buf := make([]byte, 4+4+8+8+1)
	binary.BigEndian.PutUint32(buf[0:4], magic)
	binary.BigEndian.PutUint32(buf[4:8], formatVersion)
	binary.BigEndian.PutUint64(buf[8:16], h.FirstSeqNum)
	binary.BigEndian.PutUint64(buf[16:24], h.MinAncientID)
	buf[24] = byte(h.AncientMode)
	_, err := w.Write(buf)
	return err
}

func ReadHeader(r io.Reader) (SegmentHeader, error) {
	buf := make([]byte, 4+4+8+8+1)
	if _, err := io.ReadFull(r, buf); err != nil {
		return SegmentHeader{}, err
	}
	if got := binary.BigEndian.Uint32(buf[0:4]); got != magic {
		return SegmentHeader{}, fmt.Errorf("pces: bad magic %x", got)
	}
	if got := binary.BigEndian.Uint32(buf[4:8]); got != formatVersion {
		return SegmentHeader{}, fmt.Errorf("pces: unsupported format version %d", got)
	}
	return SegmentHeader{
		FirstSeqNum:  binary.BigEndian.Uint64(buf[8:16]),
		MinAncientID: binary.BigEndian.Uint64(buf[16:24]),
		AncientMode:  AncientMode(buf[24]),
	}, nil
}

// WriteRecord appends one record: len(u32) | event-proto-bytes(len) |
// seqNum(u64) | crc32(u32), the crc covering the payload and seqNum.
func WriteRecord(w io.Writer, payload []byte, seqNum uint64) error {
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(payload)))

	seqBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(seqBuf, seqNum)

	crc := crc32.NewIEEE()
	crc.Write(payload)
	crc.Write(seqBuf)
	crcBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(crcBuf, crc.Sum32())

	for _, b := range [][]byte{lenBuf, payload, seqBuf, crcBuf} {
		if _, err := w.Write(b); err != nil {
			return err
		}
	}
	return nil
}

// Record is one decoded PCES record.
type Record struct {
	Payload []byte
	SeqNum  uint64
}

// ErrTruncated signals the final record in a segment was incomplete —
// expected after an unclean shutdown; replay stops here rather than
// erroring (spec §6: "replay tolerates a truncated final record").
var ErrTruncated = fmt.Errorf("pces: truncated record")

// ReadNext reads either a normal record or a discontinuity marker,
// distinguishing them by the sentinel length value WriteDiscontinuity
// writes. Exactly one of the two return values is non-nil on success.
func ReadNext(r io.Reader) (*Record, *DiscontinuityMarker, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		if err == io.EOF {
			return nil, nil, io.EOF
		}
		return nil, nil, ErrTruncated
	}
	n := binary.BigEndian.Uint32(lenBuf)

	if n == discontinuityLenMarker {
		seqBuf := make([]byte, 8)
		if _, err := io.ReadFull(r, seqBuf); err != nil {
			return nil, nil, ErrTruncated
		}
		return nil, &DiscontinuityMarker{NextSeqNum: binary.BigEndian.Uint64(seqBuf)}, nil
	}

	rec, err := readRecordBody(r, n)
	if err != nil {
		return nil, nil, err
	}
	return &rec, nil, nil
}

func readRecordBody(r io.Reader, n uint32) (Record, error) {
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Record{}, ErrTruncated
	}

	seqBuf := make([]byte, 8)
	if _, err := io.ReadFull(r, seqBuf); err != nil {
		return Record{}, ErrTruncated
	}
	seqNum := binary.BigEndian.Uint64(seqBuf)

	crcBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, crcBuf); err != nil {
		return Record{}, ErrTruncated
	}
	wantCRC := binary.BigEndian.Uint32(crcBuf)

	crc := crc32.NewIEEE()
	crc.Write(payload)
	crc.Write(seqBuf)
	if crc.Sum32() != wantCRC {
		return Record{}, ErrTruncated
	}

	return Record{Payload: payload, SeqNum: seqNum}, nil
}

// Footer is written only on a clean close; its absence signals a crash.
type Footer struct {
	RecordCount uint64
	MaxAncientID uint64
}

func WriteFooter(w io.Writer, f Footer) error {
	buf := make([]byte, 8+8)
	binary.BigEndian.PutUint64(buf[0:8], f.RecordCount)
	binary.BigEndian.PutUint64(buf[8:16], f.MaxAncientID)

	crc := crc32.NewIEEE()
	crc.Write(buf)
	crcBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(crcBuf, crc.Sum32())

	if _, err := w.Write(buf); err != nil {
		return err
	}
	_, err := w.Write(crcBuf)
	return err
}

func ReadFooter(r io.Reader) (Footer, error) {
	buf := make([]byte, 8+8)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Footer{}, err
	}
	crcBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, crcBuf); err != nil {
		return Footer{}, err
	}
	crc := crc32.NewIEEE()
	crc.Write(buf)
	if crc.Sum32() != binary.BigEndian.Uint32(crcBuf) {
		return Footer{}, fmt.Errorf("pces: footer crc mismatch")
	}
	return Footer{
		RecordCount:  binary.BigEndian.Uint64(buf[0:8]),
		MaxAncientID: binary.BigEndian.Uint64(buf[8:16]),
	}, nil
}

// DiscontinuityMarker is written in place of a normal record when the
// writer is told to break the stream (e.g. a reconnect). Its sequence
// number is the first sequence number that follows the break; replay uses
// it to reset derivation state (spec §4.10's "Discontinuity").
type DiscontinuityMarker struct {
	NextSeqNum uint64
}

const discontinuityLenMarker uint32 = 0xFFFFFFFF

func WriteDiscontinuity(w io.Writer, m DiscontinuityMarker) error {
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, discontinuityLenMarker)
	seqBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(seqBuf, m.NextSeqNum)
	if _, err := w.Write(lenBuf); err != nil {
		return err
	}
	_, err := w.Write(seqBuf)
	return err
}
