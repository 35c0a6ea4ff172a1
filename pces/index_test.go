package pces

import "testing"

func TestIndexPutAndListOrdersByFirstSeqNum(t *testing.T) {
	ix, err := OpenIndex(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer ix.Close()

	metas := []SegmentMeta{
		{Path: "seg-20", FirstSeqNum: 20, LastSeqNum: 29, Sealed: true, MaxAncientID: 5},
		{Path: "seg-1", FirstSeqNum: 1, LastSeqNum: 10, Sealed: true, MaxAncientID: 1},
		{Path: "seg-11", FirstSeqNum: 11, LastSeqNum: 19, Sealed: false, MaxAncientID: 3},
	}
	for _, m := range metas {
		if err := ix.Put(m); err != nil {
			t.Fatal(err)
		}
	}

	got, err := ix.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].FirstSeqNum <= got[i-1].FirstSeqNum {
			t.Fatalf("expected entries ordered by FirstSeqNum, got %+v", got)
		}
	}
}

func TestIndexDeleteBeforeOnlyRemovesSealedBelowThreshold(t *testing.T) {
	ix, err := OpenIndex(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer ix.Close()

	sealedOld := SegmentMeta{Path: "old", FirstSeqNum: 1, Sealed: true, MaxAncientID: 1}
	sealedNew := SegmentMeta{Path: "new", FirstSeqNum: 2, Sealed: true, MaxAncientID: 100}
	unsealedOld := SegmentMeta{Path: "unsealed", FirstSeqNum: 3, Sealed: false, MaxAncientID: 1}
	for _, m := range []SegmentMeta{sealedOld, sealedNew, unsealedOld} {
		if err := ix.Put(m); err != nil {
			t.Fatal(err)
		}
	}

	deleted, err := ix.DeleteBefore(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(deleted) != 1 || deleted[0].Path != "old" {
		t.Fatalf("expected only the sealed, below-threshold segment deleted, got %+v", deleted)
	}

	remaining, err := ix.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 2 {
		t.Fatalf("expected 2 remaining entries, got %d", len(remaining))
	}
}
