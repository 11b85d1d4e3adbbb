// Package walog implements a logical write-ahead log: Begin/Commit/
// Rollback transaction-control records and Insert/Update/Delete
// row-change records, length-prefixed on an append-only file. It
// reconstructs only transaction *state* on recovery — row pages are
// fsync'd on commit via the buffer pool, so redo/undo of page contents is
// not part of this log's job.
package walog

import (
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/relstore/reldb/internal/pager"
	"github.com/relstore/reldb/internal/pagecodec"
	"github.com/relstore/reldb/internal/types"
)

// TxnID is a monotonically increasing transaction identifier.
type TxnID uint64

// RecordTag discriminates WAL record kinds.
type RecordTag uint8

const (
	TagBegin RecordTag = iota
	TagCommit
	TagRollback
	TagInsert
	TagUpdate
	TagDelete
)

// Record is the tagged union of WAL record kinds.
type Record struct {
	Tag    RecordTag
	TxnID  TxnID
	Table  string
	RowID  pager.RowID
	Before []types.Value
	After  []types.Value
	// Values holds the row payload for Insert/Delete records (the single
	// value list both record kinds need).
	Values []types.Value
}

// valueTag gives each value kind a stable on-disk WAL tag, covering
// Date/Timestamp/Decimal alongside the row format's other fixed-width
// encodings.
type valueTag uint8

const (
	vtInteger valueTag = iota
	vtUnsigned
	vtFloat
	vtBoolean
	vtString
	vtNull
	vtDate
	vtTimestamp
	vtDecimal
)

func writeValue(w *pagecodec.Writer, v types.Value) {
	switch v.Kind {
	case types.KindNull:
		w.U8(uint8(vtNull))
	case types.KindInteger:
		w.U8(uint8(vtInteger))
		w.I64(v.Int)
	case types.KindUnsigned:
		w.U8(uint8(vtUnsigned))
		w.U64(v.Uint)
	case types.KindFloat:
		w.U8(uint8(vtFloat))
		w.F64(v.Float)
	case types.KindBoolean:
		w.U8(uint8(vtBoolean))
		w.Bool(v.Bool)
	case types.KindString:
		w.U8(uint8(vtString))
		w.RawString(v.Str)
	case types.KindDate:
		w.U8(uint8(vtDate))
		w.U32(uint32(v.Days))
	case types.KindTimestamp:
		w.U8(uint8(vtTimestamp))
		w.I64(v.Nanos)
	case types.KindDecimal:
		w.U8(uint8(vtDecimal))
		s := "0"
		if v.Decimal != nil {
			s = v.Decimal.RatString()
		}
		w.RawString(s)
	default:
		w.U8(uint8(vtNull))
	}
}

func readValue(r *pagecodec.Reader) (types.Value, error) {
	tag, err := r.U8()
	if err != nil {
		return types.Value{}, err
	}
	switch valueTag(tag) {
	case vtNull:
		return types.Null(), nil
	case vtInteger:
		i, err := r.I64()
		return types.Integer(i), err
	case vtUnsigned:
		u, err := r.U64()
		return types.Unsigned(u), err
	case vtFloat:
		f, err := r.F64()
		return types.Float(f), err
	case vtBoolean:
		b, err := r.Bool()
		return types.Boolean(b), err
	case vtString:
		s, err := r.RawString()
		return types.String(s), err
	case vtDate:
		d, err := r.U32()
		return types.Date(int32(d)), err
	case vtTimestamp:
		n, err := r.I64()
		return types.Timestamp(n), err
	case vtDecimal:
		s, err := r.RawString()
		if err != nil {
			return types.Value{}, err
		}
		rat, ok := new(big.Rat).SetString(s)
		if !ok {
			return types.Value{}, fmt.Errorf("walog: invalid decimal %q", s)
		}
		return types.DecimalValue(rat), nil
	default:
		return types.Value{}, fmt.Errorf("walog: unknown value tag 0x%02x", tag)
	}
}

func writeValues(w *pagecodec.Writer, vs []types.Value) {
	w.U32(uint32(len(vs)))
	for _, v := range vs {
		writeValue(w, v)
	}
}

func readValues(r *pagecodec.Reader) ([]types.Value, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	out := make([]types.Value, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := readValue(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func writeRowID(w *pagecodec.Writer, id pager.RowID) {
	w.U32(uint32(id.PageID))
	w.U16(uint16(id.SlotID))
}

func readRowID(r *pagecodec.Reader) (pager.RowID, error) {
	p, err := r.U32()
	if err != nil {
		return pager.RowID{}, err
	}
	s, err := r.U16()
	if err != nil {
		return pager.RowID{}, err
	}
	return pager.RowID{PageID: pager.PageID(p), SlotID: pager.SlotID(s)}, nil
}

// Serialize encodes a Record's body (tag + txn_id + tag-specific payload;
// length-prefixing happens at the file layer).
func (rec Record) Serialize() []byte {
	w := pagecodec.NewWriter(nil)
	w.U8(uint8(rec.Tag))
	w.U64(uint64(rec.TxnID))
	switch rec.Tag {
	case TagBegin, TagCommit, TagRollback:
		// txn_id only
	case TagInsert, TagDelete:
		w.RawString(rec.Table)
		writeRowID(w, rec.RowID)
		writeValues(w, rec.Values)
	case TagUpdate:
		w.RawString(rec.Table)
		writeRowID(w, rec.RowID)
		writeValues(w, rec.Before)
		writeValues(w, rec.After)
	}
	return w.Bytes()
}

// Deserialize decodes a Record's body.
func Deserialize(data []byte) (Record, error) {
	r := pagecodec.NewReader(data)
	tag, err := r.U8()
	if err != nil {
		return Record{}, err
	}
	txnID, err := r.U64()
	if err != nil {
		return Record{}, err
	}
	rec := Record{Tag: RecordTag(tag), TxnID: TxnID(txnID)}

	switch rec.Tag {
	case TagBegin, TagCommit, TagRollback:
		return rec, nil
	case TagInsert, TagDelete:
		table, err := r.RawString()
		if err != nil {
			return Record{}, err
		}
		rowID, err := readRowID(r)
		if err != nil {
			return Record{}, err
		}
		values, err := readValues(r)
		if err != nil {
			return Record{}, err
		}
		rec.Table, rec.RowID, rec.Values = table, rowID, values
		return rec, nil
	case TagUpdate:
		table, err := r.RawString()
		if err != nil {
			return Record{}, err
		}
		rowID, err := readRowID(r)
		if err != nil {
			return Record{}, err
		}
		before, err := readValues(r)
		if err != nil {
			return Record{}, err
		}
		after, err := readValues(r)
		if err != nil {
			return Record{}, err
		}
		rec.Table, rec.RowID, rec.Before, rec.After = table, rowID, before, after
		return rec, nil
	default:
		return Record{}, fmt.Errorf("walog: invalid record tag %d", tag)
	}
}

// Begin, Commit, Rollback, Insert, Update, Delete are convenience
// constructors for the six record shapes.
func Begin(txn TxnID) Record    { return Record{Tag: TagBegin, TxnID: txn} }
func Commit(txn TxnID) Record   { return Record{Tag: TagCommit, TxnID: txn} }
func Rollback(txn TxnID) Record { return Record{Tag: TagRollback, TxnID: txn} }

func Insert(txn TxnID, table string, rowID pager.RowID, values []types.Value) Record {
	return Record{Tag: TagInsert, TxnID: txn, Table: table, RowID: rowID, Values: values}
}

func Update(txn TxnID, table string, rowID pager.RowID, before, after []types.Value) Record {
	return Record{Tag: TagUpdate, TxnID: txn, Table: table, RowID: rowID, Before: before, After: after}
}

func Delete(txn TxnID, table string, rowID pager.RowID, values []types.Value) Record {
	return Record{Tag: TagDelete, TxnID: txn, Table: table, RowID: rowID, Values: values}
}

// File is an append-only WAL file kept open for the executor's lifetime.
// Durability contract: Append returns only after the record is durably
// present on disk.
type File struct {
	path string
	f    *os.File
}

// Open opens (creating if necessary) the WAL file at path.
func Open(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("walog: open %s: %w", path, err)
	}
	return &File{path: path, f: f}, nil
}

// Append encodes, length-prefixes, writes, and flushes rec. A commit
// record must complete this call before the caller acknowledges the
// transaction as committed.
func (w *File) Append(rec Record) error {
	body := rec.Serialize()
	lw := pagecodec.NewWriter(make([]byte, 0, 4+len(body)))
	lw.U32(uint32(len(body)))
	lw.Raw(body)
	if _, err := w.f.Write(lw.Bytes()); err != nil {
		return fmt.Errorf("walog: append: %w", err)
	}
	return w.f.Sync()
}

// ReadAll replays every whole record in the file in order, stopping at a
// clean EOF or discarding at most one partial tail record on a short
// read.
func (w *File) ReadAll() ([]Record, error) {
	f, err := os.Open(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var records []Record
	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(f, lenBuf[:]); err != nil {
			if err == io.EOF {
				break
			}
			if err == io.ErrUnexpectedEOF {
				break
			}
			return nil, err
		}
		n := int(lenBuf[0]) | int(lenBuf[1])<<8 | int(lenBuf[2])<<16 | int(lenBuf[3])<<24
		body := make([]byte, n)
		if _, err := io.ReadFull(f, body); err != nil {
			break
		}
		rec, err := Deserialize(body)
		if err != nil {
			return nil, fmt.Errorf("walog: corrupt record: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Truncate sets the WAL file length to zero (checkpoint).
func (w *File) Truncate() error {
	return w.f.Truncate(0)
}

// Close closes the underlying file handle.
func (w *File) Close() error {
	return w.f.Close()
}
