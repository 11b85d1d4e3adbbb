package heap

import (
	"path/filepath"
	"testing"

	"github.com/relstore/reldb/internal/pager"
	"github.com/relstore/reldb/internal/types"
)

func smallSchema(t *testing.T) types.Schema {
	t.Helper()
	schema, err := types.NewSchema([]types.Column{
		{Name: "id", Type: types.TypeInteger},
		{Name: "name", Type: types.TypeString},
	})
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	return schema
}

func TestHeapCreateInsertGet(t *testing.T) {
	schema := smallSchema(t)
	path := filepath.Join(t.TempDir(), "users.tbl")
	table, err := Create(path, "users", schema, 16)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer table.Close()

	id1, err := table.Insert(Version{Values: []types.Value{types.Integer(1), types.String("Alice")}})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	id2, err := table.Insert(Version{Values: []types.Value{types.Integer(2), types.String("Bob")}})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	v1, ok, err := table.Get(id1)
	if err != nil || !ok {
		t.Fatalf("Get(id1): %v, %v", v1, err)
	}
	if v1.Values[1].Str != "Alice" {
		t.Fatalf("expected Alice, got %v", v1.Values[1])
	}
	v2, ok, err := table.Get(id2)
	if err != nil || !ok || v2.Values[1].Str != "Bob" {
		t.Fatalf("Get(id2) = %v,%v,%v", v2, ok, err)
	}
}

func TestHeapReopenPreservesSchemaAndRows(t *testing.T) {
	schema := smallSchema(t)
	path := filepath.Join(t.TempDir(), "users.tbl")
	table, err := Create(path, "users", schema, 16)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	id, err := table.Insert(Version{Values: []types.Value{types.Integer(5), types.String("Carl")}})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := table.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path, 16)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reopened.Close()
	if reopened.Name != "users" || reopened.Schema.ColumnCount() != 2 {
		t.Fatalf("unexpected reopened metadata: %+v", reopened)
	}
	v, ok, err := reopened.Get(id)
	if err != nil || !ok || v.Values[1].Str != "Carl" {
		t.Fatalf("Get after reopen = %v,%v,%v", v, ok, err)
	}
}

func TestHeapScanVisitsAllRowsInPhysicalOrder(t *testing.T) {
	schema := smallSchema(t)
	path := filepath.Join(t.TempDir(), "users.tbl")
	table, err := Create(path, "users", schema, 16)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer table.Close()

	want := []string{"Alice", "Bob", "Carl"}
	for i, name := range want {
		if _, err := table.Insert(Version{Values: []types.Value{types.Integer(int64(i)), types.String(name)}}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	var got []string
	err = table.Scan(func(id pager.RowID, v Version) (bool, error) {
		got = append(got, v.Values[1].Str)
		return true, nil
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("row %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestHeapDeleteTombstonesRow(t *testing.T) {
	schema := smallSchema(t)
	path := filepath.Join(t.TempDir(), "users.tbl")
	table, err := Create(path, "users", schema, 16)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer table.Close()

	id, err := table.Insert(Version{Values: []types.Value{types.Integer(1), types.String("Gone")}})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := table.Delete(id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, ok, err := table.Get(id)
	if err != nil {
		t.Fatalf("Get after delete: %v", err)
	}
	if ok {
		t.Fatalf("expected tombstoned row to read as absent")
	}
}

func TestHeapUpdateInPlaceSignalsGrowthViaPageFull(t *testing.T) {
	schema := smallSchema(t)
	path := filepath.Join(t.TempDir(), "users.tbl")
	table, err := Create(path, "users", schema, 16)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer table.Close()

	id, err := table.Insert(Version{Values: []types.Value{types.Integer(1), types.String("A")}})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	err = table.UpdateInPlace(id, Version{Values: []types.Value{types.Integer(1), types.String("A very much longer replacement name")}})
	if err != pager.ErrPageFull {
		t.Fatalf("expected ErrPageFull on in-place growth, got %v", err)
	}
}
