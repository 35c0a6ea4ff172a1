package pces

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger"
)

// SegmentMeta is one segment file's index entry: enough to find it again on
// restart without re-scanning every file's header.
type SegmentMeta struct {
	Path         string
	FirstSeqNum  uint64
	LastSeqNum   uint64
	MinAncientID uint64
	MaxAncientID uint64
	Sealed       bool // true once the footer has been written
}

func segmentKey(firstSeq uint64) []byte {
	return []byte(fmt.Sprintf("segment:%020d", firstSeq))
}

// Index is the small on-disk catalogue of PCES segment files, backed by
// badger in the same style as the teacher's BadgerStore — a durable
// key/value side-index next to the actual payload storage (here, the
// segment files themselves rather than badger's value log).
type Index struct {
	db *badger.DB
}

func OpenIndex(dir string) (*Index, error) {
	opts := badger.DefaultOptions(dir)
	opts.SyncWrites = false
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Index{db: db}, nil
}

func (ix *Index) Close() error {
	return ix.db.Close()
}

func (ix *Index) Put(meta SegmentMeta) error {
	buf, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return ix.db.Update(func(txn *badger.Txn) error {
		return txn.Set(segmentKey(meta.FirstSeqNum), buf)
	})
}

// List returns every known segment, ordered by FirstSeqNum, for the
// replayer to walk in order.
func (ix *Index) List() ([]SegmentMeta, error) {
	var metas []SegmentMeta
	err := ix.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte("segment:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var m SegmentMeta
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			})
			if err != nil {
				return err
			}
			metas = append(metas, m)
		}
		return nil
	})
	return metas, err
}

// DeleteBefore removes index entries for every sealed segment whose
// MaxAncientID is below minimumAncientIdentifierToStore (spec §4.10's
// deletion gate). Callers are responsible for unlinking the underlying
// files only after the index entry is gone.
func (ix *Index) DeleteBefore(minimumAncientID uint64) ([]SegmentMeta, error) {
	all, err := ix.List()
	if err != nil {
		return nil, err
	}
	var toDelete []SegmentMeta
	err = ix.db.Update(func(txn *badger.Txn) error {
		for _, m := range all {
			if m.Sealed && m.MaxAncientID < minimumAncientID {
				if err := txn.Delete(segmentKey(m.FirstSeqNum)); err != nil {
					return err
				}
				toDelete = append(toDelete, m)
			}
		}
		return nil
	})
	return toDelete, err
}
