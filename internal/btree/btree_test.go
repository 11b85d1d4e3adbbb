package btree

import (
	"path/filepath"
	"testing"

	"github.com/relstore/reldb/internal/pager"
)

func newTestTree(t *testing.T) *BTree {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.idx")
	disk, err := pager.OpenDiskManager(path)
	if err != nil {
		t.Fatalf("OpenDiskManager: %v", err)
	}
	t.Cleanup(func() { disk.Close() })
	pool := pager.NewBufferPool(disk, 64)
	tree, err := Create(pool)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return tree
}

func rid(n int) pager.RowID {
	return pager.RowID{PageID: pager.PageID(n), SlotID: pager.SlotID(n % 7)}
}

func TestBTreeInsertAndSearch(t *testing.T) {
	tree := newTestTree(t)
	for i := int64(0); i < 20; i++ {
		if err := tree.Insert(i, rid(int(i))); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	for i := int64(0); i < 20; i++ {
		v, ok, err := tree.Search(i)
		if err != nil || !ok {
			t.Fatalf("Search(%d) = %v,%v,%v", i, v, ok, err)
		}
		if v != rid(int(i)) {
			t.Fatalf("Search(%d) = %v, want %v", i, v, rid(int(i)))
		}
	}
	if _, ok, err := tree.Search(999); err != nil || ok {
		t.Fatalf("Search(999) expected not found, got %v,%v", ok, err)
	}
}

func TestBTreeInsertReplacesExistingKey(t *testing.T) {
	tree := newTestTree(t)
	if err := tree.Insert(1, rid(1)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tree.Insert(1, rid(2)); err != nil {
		t.Fatalf("Insert replace: %v", err)
	}
	v, ok, err := tree.Search(1)
	if err != nil || !ok {
		t.Fatalf("Search(1) = %v,%v,%v", v, ok, err)
	}
	if v != rid(2) {
		t.Fatalf("expected replaced value %v, got %v", rid(2), v)
	}
}

func TestBTreeRangeScanAcrossLeaves(t *testing.T) {
	tree := newTestTree(t)
	for i := int64(1); i <= 20; i++ {
		if err := tree.Insert(i, rid(int(i))); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	entries, err := tree.RangeScan(5, 15)
	if err != nil {
		t.Fatalf("RangeScan: %v", err)
	}
	if len(entries) != 11 {
		t.Fatalf("expected 11 entries, got %d", len(entries))
	}
	for i, e := range entries {
		want := int64(5 + i)
		if e.Key != want {
			t.Fatalf("entry %d: key %d, want %d", i, e.Key, want)
		}
		if e.Value != rid(int(want)) {
			t.Fatalf("entry %d: value %v, want %v", i, e.Value, rid(int(want)))
		}
	}
}

func TestBTreeOrderingAfterManyInserts(t *testing.T) {
	tree := newTestTree(t)
	keys := []int64{50, 10, 90, 30, 70, 20, 80, 40, 60, 5, 15, 25, 35, 45, 55, 65, 75, 85, 95, 1}
	for _, k := range keys {
		if err := tree.Insert(k, rid(int(k))); err != nil {
			t.Fatalf("Insert(%d): %v", k, err)
		}
	}
	entries, err := tree.RangeScan(-1000, 1000)
	if err != nil {
		t.Fatalf("RangeScan: %v", err)
	}
	if len(entries) != len(keys) {
		t.Fatalf("expected %d entries, got %d", len(keys), len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Key >= entries[i].Key {
			t.Fatalf("entries not strictly increasing at %d: %d >= %d", i, entries[i-1].Key, entries[i].Key)
		}
	}
}

func TestBTreeDeleteRemovesKey(t *testing.T) {
	tree := newTestTree(t)
	for i := int64(0); i < 20; i++ {
		if err := tree.Insert(i, rid(int(i))); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	if err := tree.Delete(10); err != nil {
		t.Fatalf("Delete(10): %v", err)
	}
	if _, ok, err := tree.Search(10); err != nil || ok {
		t.Fatalf("Search(10) after delete expected not found, got %v,%v", ok, err)
	}
	for _, i := range []int64{0, 9, 11, 19} {
		if _, ok, err := tree.Search(i); err != nil || !ok {
			t.Fatalf("Search(%d) after deleting 10 expected found, got %v,%v", i, ok, err)
		}
	}
}

func TestBTreeDeleteMissingKeyIsNoOp(t *testing.T) {
	tree := newTestTree(t)
	if err := tree.Insert(1, rid(1)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tree.Delete(999); err != nil {
		t.Fatalf("Delete(999): %v", err)
	}
	if _, ok, err := tree.Search(1); err != nil || !ok {
		t.Fatalf("Search(1) expected still present, got %v,%v", ok, err)
	}
}

func TestBTreeEmptyRangeScan(t *testing.T) {
	tree := newTestTree(t)
	for i := int64(1); i <= 5; i++ {
		tree.Insert(i, rid(int(i)))
	}
	entries, err := tree.RangeScan(100, 200)
	if err != nil {
		t.Fatalf("RangeScan: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries in an out-of-range scan, got %d", len(entries))
	}
}
