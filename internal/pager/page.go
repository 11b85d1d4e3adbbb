// Package pager implements the on-disk slotted-page format, a per-file
// disk manager, and a bounded buffer pool with pin/dirty/LRU eviction.
// Every other storage component (heap tables, the B+Tree index) reads and
// writes pages exclusively through a BufferPool.
package pager

import (
	"fmt"

	"github.com/relstore/reldb/internal/pagecodec"
)

// PageSize is the fixed size of every page on disk, 8KB.
const PageSize = 8192

// PageHeaderSize is the fixed header: page_type(2) + page_id(4) +
// row_count(2) + free_space_offset(2).
const PageHeaderSize = 10

// SlotEntrySize is the size of one slot-directory entry: offset(2) + length(2).
const SlotEntrySize = 4

// PageID identifies a page by its offset-in-pages from the start of its file.
type PageID uint32

// SlotID indexes a slot within a page's slot directory.
type SlotID uint16

// RowID is a stable row identifier: the page holding the row version plus
// the slot within that page. RowIds never change for the lifetime of a
// row version — deletes and relocations create new versions rather than
// moving a RowId's slot.
type RowID struct {
	PageID PageID
	SlotID SlotID
}

func (r RowID) String() string { return fmt.Sprintf("(%d,%d)", r.PageID, r.SlotID) }

// PageType tags the structural format of a page's contents.
type PageType uint16

const (
	PageHeap PageType = iota
	PageBTreeInternal
	PageBTreeLeaf
)

func (t PageType) String() string {
	switch t {
	case PageHeap:
		return "Heap"
	case PageBTreeInternal:
		return "BTreeInternal"
	case PageBTreeLeaf:
		return "BTreeLeaf"
	default:
		return fmt.Sprintf("PageType(%d)", uint16(t))
	}
}

// ErrPageFull is returned by page mutation methods when insufficient
// space remains for the requested write.
var ErrPageFull = fmt.Errorf("pager: page full")

// ErrInvalidSlot is returned when a SlotID is out of range.
var ErrInvalidSlot = fmt.Errorf("pager: invalid slot id")

type slotEntry struct {
	offset uint16
	length uint16 // 0 means tombstone
}

// Page is a fixed 8192-byte slotted page: a forward-growing slot
// directory and backward-growing row payloads/§4.1.
type Page struct {
	pageType        PageType
	pageID          PageID
	rowCount        uint16
	freeSpaceOffset uint16
	data            [PageSize]byte
}

// New creates a zeroed, empty page of the given type and id.
func New(id PageID, pageType PageType) *Page {
	p := &Page{
		pageType:        pageType,
		pageID:          id,
		rowCount:        0,
		freeSpaceOffset: PageSize,
	}
	p.writeHeader()
	return p
}

func (p *Page) ID() PageID       { return p.pageID }
func (p *Page) Type() PageType   { return p.pageType }
func (p *Page) RowCount() uint16 { return p.rowCount }

func (p *Page) writeHeader() {
	w := pagecodec.NewWriter(p.data[:0])
	w.U16(uint16(p.pageType))
	w.U32(uint32(p.pageID))
	w.U16(p.rowCount)
	w.U16(p.freeSpaceOffset)
	// Writer appended into p.data's backing array starting at 0; the
	// slice header it returns aliases p.data, so no copy-back is needed.
}

func (p *Page) readHeader() error {
	r := pagecodec.NewReader(p.data[:PageHeaderSize])
	pt, err := r.U16()
	if err != nil {
		return err
	}
	id, err := r.U32()
	if err != nil {
		return err
	}
	rc, err := r.U16()
	if err != nil {
		return err
	}
	fso, err := r.U16()
	if err != nil {
		return err
	}
	p.pageType = PageType(pt)
	p.pageID = PageID(id)
	p.rowCount = rc
	p.freeSpaceOffset = fso
	return nil
}

func slotOffset(slot SlotID) int {
	return PageHeaderSize + int(slot)*SlotEntrySize
}

func (p *Page) readSlot(slot SlotID) (slotEntry, bool) {
	if slot >= SlotID(p.rowCount) {
		return slotEntry{}, false
	}
	off := slotOffset(slot)
	return slotEntry{
		offset: uint16(p.data[off]) | uint16(p.data[off+1])<<8,
		length: uint16(p.data[off+2]) | uint16(p.data[off+3])<<8,
	}, true
}

func (p *Page) writeSlot(slot SlotID, e slotEntry) {
	off := slotOffset(slot)
	p.data[off] = byte(e.offset)
	p.data[off+1] = byte(e.offset >> 8)
	p.data[off+2] = byte(e.length)
	p.data[off+3] = byte(e.length >> 8)
}

// FreeSpace returns the number of bytes available for a new slot entry
// plus its payload.
func (p *Page) FreeSpace() int {
	directoryEnd := PageHeaderSize + int(p.rowCount)*SlotEntrySize
	dataStart := int(p.freeSpaceOffset)
	if dataStart < directoryEnd {
		return 0
	}
	return dataStart - directoryEnd
}

// AddRow appends a new slot and payload, growing the slot directory
// forward and the payload region backward. Returns ErrPageFull if the
// page cannot fit 4+len(data) more bytes.
func (p *Page) AddRow(data []byte) (SlotID, error) {
	required := SlotEntrySize + len(data)
	if p.FreeSpace() < required {
		return 0, ErrPageFull
	}
	newOffset := int(p.freeSpaceOffset) - len(data)
	copy(p.data[newOffset:newOffset+len(data)], data)

	slot := SlotID(p.rowCount)
	p.writeSlot(slot, slotEntry{offset: uint16(newOffset), length: uint16(len(data))})

	p.rowCount++
	p.freeSpaceOffset = uint16(newOffset)
	p.writeHeader()
	return slot, nil
}

// UpdateRow overwrites an existing slot's payload in place. The new
// payload must fit within the slot's current length; growth must be
// handled by the caller (insert a new version elsewhere).
func (p *Page) UpdateRow(slot SlotID, data []byte) error {
	e, ok := p.readSlot(slot)
	if !ok {
		return ErrInvalidSlot
	}
	if len(data) > int(e.length) {
		return ErrPageFull
	}
	start := int(e.offset)
	copy(p.data[start:start+len(data)], data)
	for i := start + len(data); i < start+int(e.length); i++ {
		p.data[i] = 0
	}
	p.writeSlot(slot, slotEntry{offset: e.offset, length: uint16(len(data))})
	return nil
}

// GetRow returns the payload bytes for slot, or (nil, false) if the slot
// is out of range or tombstoned (length 0).
func (p *Page) GetRow(slot SlotID) ([]byte, bool) {
	e, ok := p.readSlot(slot)
	if !ok || e.length == 0 {
		return nil, false
	}
	start := int(e.offset)
	return p.data[start : start+int(e.length)], true
}

// DeleteRow tombstones a slot by zeroing its length. The offset is kept
// for auditability; space is reclaimed only by vacuum+rewrite.
func (p *Page) DeleteRow(slot SlotID) error {
	e, ok := p.readSlot(slot)
	if !ok {
		return ErrInvalidSlot
	}
	p.writeSlot(slot, slotEntry{offset: e.offset, length: 0})
	return nil
}

// ToBytes returns the page's raw 8192-byte image.
func (p *Page) ToBytes() []byte {
	return p.data[:]
}

// FromBytes decodes a page from an exact PageSize-byte image.
func FromBytes(b []byte) (*Page, error) {
	if len(b) != PageSize {
		return nil, fmt.Errorf("pager: invalid page size: expected %d, got %d", PageSize, len(b))
	}
	p := &Page{}
	copy(p.data[:], b)
	if err := p.readHeader(); err != nil {
		return nil, fmt.Errorf("pager: corrupt page header: %w", err)
	}
	return p, nil
}
