// Package heap implements heap tables: page-0 metadata (table name and
// schema), row version encode/decode, insert/get/update/delete against a
// buffer pool, and a sequential scan iterator.
package heap

import (
	"fmt"
	"math"
	"math/big"

	"github.com/relstore/reldb/internal/pagecodec"
	"github.com/relstore/reldb/internal/types"
)

// Version is one physical row version: MVCC bounds plus column values.
// XMax of 0 means "not yet deleted/superseded".
type Version struct {
	XMin   uint64
	XMax   uint64
	Values []types.Value
}

// EncodeRow serializes a row version as xmin:u64, xmax:u64,
// column_count:u16, then per column an is_null:u8 followed by the
// payload (only present when not null), typed per schema's declared
// DataType.
func EncodeRow(schema types.Schema, v Version) ([]byte, error) {
	if len(v.Values) != schema.ColumnCount() {
		return nil, fmt.Errorf("heap: row has %d values, schema has %d columns", len(v.Values), schema.ColumnCount())
	}
	w := pagecodec.NewWriter(nil)
	w.U64(v.XMin)
	w.U64(v.XMax)
	w.U16(uint16(len(v.Values)))
	for i, val := range v.Values {
		col, _ := schema.Column(i)
		if val.IsNull() {
			w.U8(1)
			continue
		}
		w.U8(0)
		if err := encodeValue(w, col.Type, val); err != nil {
			return nil, fmt.Errorf("heap: column %q: %w", col.Name, err)
		}
	}
	return w.Bytes(), nil
}

func encodeValue(w *pagecodec.Writer, dt types.DataType, v types.Value) error {
	switch dt {
	case types.TypeInteger:
		i, ok := asInt64(v)
		if !ok {
			return fmt.Errorf("expected integer-compatible value, got %s", v.Kind)
		}
		w.I64(i)
	case types.TypeUnsigned:
		u, ok := asUint64(v)
		if !ok {
			return fmt.Errorf("expected unsigned-compatible value, got %s", v.Kind)
		}
		w.U64(u)
	case types.TypeFloat:
		f, ok := asFloat64(v)
		if !ok {
			return fmt.Errorf("expected float-compatible value, got %s", v.Kind)
		}
		w.F64(f)
	case types.TypeBoolean:
		w.Bool(v.Bool)
	case types.TypeString:
		w.RawString(v.Str)
	case types.TypeDate:
		w.U32(uint32(v.Days))
	case types.TypeTimestamp:
		w.I64(v.Nanos)
	case types.TypeDecimal:
		s := "0"
		if v.Decimal != nil {
			s = v.Decimal.RatString()
		} else if v.Kind == types.KindInteger {
			s = fmt.Sprintf("%d", v.Int)
		} else if v.Kind == types.KindFloat {
			s = fmt.Sprintf("%v", v.Float)
		}
		w.RawString(s)
	default:
		return fmt.Errorf("unknown column type %v", dt)
	}
	return nil
}

func asInt64(v types.Value) (int64, bool) {
	switch v.Kind {
	case types.KindInteger:
		return v.Int, true
	case types.KindUnsigned:
		if v.Uint <= math.MaxInt64 {
			return int64(v.Uint), true
		}
	}
	return 0, false
}

func asUint64(v types.Value) (uint64, bool) {
	switch v.Kind {
	case types.KindUnsigned:
		return v.Uint, true
	case types.KindInteger:
		if v.Int >= 0 {
			return uint64(v.Int), true
		}
	}
	return 0, false
}

func asFloat64(v types.Value) (float64, bool) {
	switch v.Kind {
	case types.KindFloat:
		return v.Float, true
	case types.KindInteger:
		return float64(v.Int), true
	case types.KindUnsigned:
		return float64(v.Uint), true
	}
	return 0, false
}

// DecodeRow parses a row version. If the stored column_count is less than
// schema's (an older version written before an ALTER TABLE ADD COLUMN),
// the missing trailing columns are padded with Null.
func DecodeRow(schema types.Schema, data []byte) (Version, error) {
	r := pagecodec.NewReader(data)
	xmin, err := r.U64()
	if err != nil {
		return Version{}, err
	}
	xmax, err := r.U64()
	if err != nil {
		return Version{}, err
	}
	storedCount, err := r.U16()
	if err != nil {
		return Version{}, err
	}
	values := make([]types.Value, 0, schema.ColumnCount())
	for i := 0; i < int(storedCount); i++ {
		isNull, err := r.U8()
		if err != nil {
			return Version{}, err
		}
		if isNull != 0 {
			values = append(values, types.Null())
			continue
		}
		col, ok := schema.Column(i)
		if !ok {
			return Version{}, fmt.Errorf("heap: stored column %d beyond current schema width", i)
		}
		v, err := decodeValue(r, col.Type)
		if err != nil {
			return Version{}, fmt.Errorf("heap: column %q: %w", col.Name, err)
		}
		values = append(values, v)
	}
	for len(values) < schema.ColumnCount() {
		values = append(values, types.Null())
	}
	return Version{XMin: xmin, XMax: xmax, Values: values}, nil
}

func decodeValue(r *pagecodec.Reader, dt types.DataType) (types.Value, error) {
	switch dt {
	case types.TypeInteger:
		i, err := r.I64()
		return types.Integer(i), err
	case types.TypeUnsigned:
		u, err := r.U64()
		return types.Unsigned(u), err
	case types.TypeFloat:
		f, err := r.F64()
		return types.Float(f), err
	case types.TypeBoolean:
		b, err := r.Bool()
		return types.Boolean(b), err
	case types.TypeString:
		s, err := r.RawString()
		return types.String(s), err
	case types.TypeDate:
		d, err := r.U32()
		return types.Date(int32(d)), err
	case types.TypeTimestamp:
		n, err := r.I64()
		return types.Timestamp(n), err
	case types.TypeDecimal:
		s, err := r.RawString()
		if err != nil {
			return types.Value{}, err
		}
		rat, ok := new(big.Rat).SetString(s)
		if !ok {
			return types.Value{}, fmt.Errorf("corrupt decimal literal %q", s)
		}
		return types.DecimalValue(rat), nil
	default:
		return types.Value{}, fmt.Errorf("unknown column type %v", dt)
	}
}
