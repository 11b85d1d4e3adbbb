package heap

import (
	"math/big"
	"testing"

	"github.com/relstore/reldb/internal/types"
)

func testSchema(t *testing.T) types.Schema {
	t.Helper()
	schema, err := types.NewSchema([]types.Column{
		{Name: "id", Type: types.TypeInteger},
		{Name: "name", Type: types.TypeString},
		{Name: "score", Type: types.TypeFloat},
		{Name: "active", Type: types.TypeBoolean},
		{Name: "weight", Type: types.TypeUnsigned},
		{Name: "born", Type: types.TypeDate},
		{Name: "seen", Type: types.TypeTimestamp},
		{Name: "price", Type: types.TypeDecimal},
		{Name: "nickname", Type: types.TypeString},
	})
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	return schema
}

func TestEncodeDecodeRowRoundTrip(t *testing.T) {
	schema := testSchema(t)
	v := Version{
		XMin: 3,
		XMax: 0,
		Values: []types.Value{
			types.Integer(42),
			types.String("Alice"),
			types.Float(2.5),
			types.Boolean(true),
			types.Unsigned(7),
			types.Date(100),
			types.Timestamp(123456789),
			types.DecimalValue(big.NewRat(5, 2)),
			types.Null(),
		},
	}
	data, err := EncodeRow(schema, v)
	if err != nil {
		t.Fatalf("EncodeRow: %v", err)
	}
	got, err := DecodeRow(schema, data)
	if err != nil {
		t.Fatalf("DecodeRow: %v", err)
	}
	if got.XMin != v.XMin || got.XMax != v.XMax {
		t.Fatalf("MVCC header mismatch: %+v vs %+v", got, v)
	}
	for i := range v.Values {
		if !types.Equal(got.Values[i], v.Values[i]) && !(v.Values[i].IsNull() && got.Values[i].IsNull()) {
			t.Fatalf("column %d mismatch: got %v want %v", i, got.Values[i], v.Values[i])
		}
	}
}

func TestEncodeRowRejectsWrongColumnCount(t *testing.T) {
	schema := testSchema(t)
	_, err := EncodeRow(schema, Version{Values: []types.Value{types.Integer(1)}})
	if err == nil {
		t.Fatalf("expected error for column-count mismatch")
	}
}

func TestDecodeRowPadsMissingTrailingColumnsWithNull(t *testing.T) {
	narrowSchema, err := types.NewSchema([]types.Column{{Name: "id", Type: types.TypeInteger}})
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	data, err := EncodeRow(narrowSchema, Version{Values: []types.Value{types.Integer(9)}})
	if err != nil {
		t.Fatalf("EncodeRow: %v", err)
	}

	widerSchema, err := types.NewSchema([]types.Column{
		{Name: "id", Type: types.TypeInteger},
		{Name: "note", Type: types.TypeString},
	})
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	got, err := DecodeRow(widerSchema, data)
	if err != nil {
		t.Fatalf("DecodeRow against wider schema: %v", err)
	}
	if len(got.Values) != 2 {
		t.Fatalf("expected 2 decoded values, got %d", len(got.Values))
	}
	if !got.Values[1].IsNull() {
		t.Fatalf("expected column added after this version was written to decode as Null")
	}
}
