// Package pagecodec provides little-endian primitive encode/decode helpers
// shared by the page, row, B+Tree node, and WAL record formats. It keeps
// the wire layout in one place instead of scattering binary.LittleEndian
// calls across every package that touches disk.
package pagecodec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Writer appends fixed- and variable-width values to a growable buffer.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with buf as its initial backing slice.
func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf}
}

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) U8(v uint8)   { w.buf = append(w.buf, v) }
func (w *Writer) Bool(v bool) {
	if v {
		w.U8(1)
	} else {
		w.U8(0)
	}
}

func (w *Writer) U16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) U32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) U64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) I64(v int64) { w.U64(uint64(v)) }

func (w *Writer) F64(v float64) { w.U64(math.Float64bits(v)) }

// RawString writes a u32-length-prefixed UTF-8 string. Used by row and WAL
// encoding, which both specify a 4-byte length prefix for strings.
func (w *Writer) RawString(s string) {
	w.U32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *Writer) Raw(b []byte) { w.buf = append(w.buf, b...) }

// Reader consumes fixed- and variable-width values from a fixed buffer,
// tracking an offset and surfacing truncation as errors instead of panics.
type Reader struct {
	buf []byte
	off int
}

// NewReader returns a Reader positioned at the start of buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Offset returns the current read cursor.
func (r *Reader) Offset() int { return r.off }

// Remaining reports how many bytes are left unread.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

func (r *Reader) need(n int) error {
	if r.off+n > len(r.buf) {
		return fmt.Errorf("pagecodec: truncated read: need %d bytes at offset %d, have %d", n, r.off, len(r.buf))
	}
	return nil
}

func (r *Reader) U8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

func (r *Reader) Bool() (bool, error) {
	v, err := r.U8()
	return v != 0, err
}

func (r *Reader) U16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.off : r.off+2])
	r.off += 2
	return v, nil
}

func (r *Reader) U32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off : r.off+4])
	r.off += 4
	return v, nil
}

func (r *Reader) U64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off : r.off+8])
	r.off += 8
	return v, nil
}

func (r *Reader) I64() (int64, error) {
	v, err := r.U64()
	return int64(v), err
}

func (r *Reader) F64() (float64, error) {
	v, err := r.U64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

func (r *Reader) RawString() (string, error) {
	n, err := r.U32()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.buf[r.off : r.off+int(n)])
	r.off += int(n)
	return s, nil
}

func (r *Reader) Raw(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}
