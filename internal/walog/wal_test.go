package walog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/relstore/reldb/internal/pager"
	"github.com/relstore/reldb/internal/types"
)

func TestWALAppendReadAllInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Close()

	rowID := pager.RowID{PageID: 3, SlotID: 1}
	records := []Record{
		Begin(1),
		Insert(1, "users", rowID, []types.Value{types.Integer(1), types.String("Alice")}),
		Update(1, "users", rowID,
			[]types.Value{types.Integer(1), types.String("Alice")},
			[]types.Value{types.Integer(1), types.String("Alicia")}),
		Delete(1, "users", rowID, []types.Value{types.Integer(1), types.String("Alicia")}),
		Commit(1),
	}
	for _, rec := range records {
		if err := w.Append(rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := w.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != len(records) {
		t.Fatalf("expected %d records, got %d", len(records), len(got))
	}
	for i, rec := range records {
		if got[i].Tag != rec.Tag || got[i].TxnID != rec.TxnID {
			t.Fatalf("record %d: got %+v, want %+v", i, got[i], rec)
		}
	}
	if got[1].Table != "users" || got[1].Values[1].Str != "Alice" {
		t.Fatalf("insert record payload mismatch: %+v", got[1])
	}
	if got[2].Before[1].Str != "Alice" || got[2].After[1].Str != "Alicia" {
		t.Fatalf("update record before/after mismatch: %+v", got[2])
	}
}

func TestWALRecordSerializeDeserializeRoundTrip(t *testing.T) {
	rowID := pager.RowID{PageID: 9, SlotID: 4}
	rec := Insert(7, "orders", rowID, []types.Value{types.Integer(1), types.Null(), types.Boolean(true)})
	body := rec.Serialize()
	got, err := Deserialize(body)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if got.Tag != TagInsert || got.TxnID != 7 || got.Table != "orders" || got.RowID != rowID {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if !got.Values[1].IsNull() || got.Values[2].Bool != true {
		t.Fatalf("value round trip mismatch: %+v", got.Values)
	}
}

func TestWALReadAllDiscardsPartialTailRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := w.Append(Begin(1)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Append(Commit(1)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	w.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if err := os.Truncate(path, info.Size()-3); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	w2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer w2.Close()
	got, err := w2.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll after truncation: %v", err)
	}
	if len(got) != 1 || got[0].Tag != TagBegin {
		t.Fatalf("expected only the Begin record to survive, got %+v", got)
	}
}

func TestWALTruncateResetsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Close()

	w.Append(Begin(1))
	w.Append(Commit(1))
	if err := w.Truncate(); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	got, err := w.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty log after truncate, got %d records", len(got))
	}
}
