package hashindex

import (
	"testing"

	"github.com/relstore/reldb/internal/pager"
)

func TestHashIndexInsertAndGet(t *testing.T) {
	h := New()
	r1 := pager.RowID{PageID: 1, SlotID: 0}
	r2 := pager.RowID{PageID: 2, SlotID: 1}
	h.Insert(5, r1)
	h.Insert(5, r2)

	got := h.Get(5)
	if len(got) != 2 {
		t.Fatalf("expected 2 values for duplicate key, got %d", len(got))
	}
	if got[0] != r1 || got[1] != r2 {
		t.Fatalf("unexpected values: %v", got)
	}
}

func TestHashIndexGetMissingKey(t *testing.T) {
	h := New()
	if got := h.Get(42); len(got) != 0 {
		t.Fatalf("expected no values for missing key, got %v", got)
	}
}

func TestHashIndexDelete(t *testing.T) {
	h := New()
	r1 := pager.RowID{PageID: 1, SlotID: 0}
	r2 := pager.RowID{PageID: 2, SlotID: 0}
	h.Insert(7, r1)
	h.Insert(7, r2)

	h.Delete(7, r1)
	got := h.Get(7)
	if len(got) != 1 || got[0] != r2 {
		t.Fatalf("expected only r2 left, got %v", got)
	}
}

func TestHashIndexManyKeysDistributeAcrossBuckets(t *testing.T) {
	h := New()
	for i := int64(0); i < 500; i++ {
		h.Insert(i, pager.RowID{PageID: pager.PageID(i), SlotID: 0})
	}
	for i := int64(0); i < 500; i++ {
		got := h.Get(i)
		if len(got) != 1 || got[0].PageID != pager.PageID(i) {
			t.Fatalf("key %d: got %v", i, got)
		}
	}
}
