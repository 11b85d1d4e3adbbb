package heap

import (
	"fmt"

	"github.com/relstore/reldb/internal/pager"
	"github.com/relstore/reldb/internal/pagecodec"
	"github.com/relstore/reldb/internal/types"
)

// metadataPageID is the fixed page holding a table's name and schema.
const metadataPageID pager.PageID = 0

// Table is a heap-organized table: an append-mostly sequence of 8KB
// pages, with page 0 reserved for the table's name and schema and pages
// 1.. holding row versions.
type Table struct {
	Name     string
	Schema   types.Schema
	pool     *pager.BufferPool
	disk     *pager.DiskManager
	lastPage pager.PageID
}

// Create initializes a new heap file at path: a metadata page followed
// by one empty data page.
func Create(path, name string, schema types.Schema, bufferFrames int) (*Table, error) {
	disk, err := pager.OpenDiskManager(path)
	if err != nil {
		return nil, err
	}
	n, err := disk.NumPages()
	if err != nil {
		return nil, err
	}
	if n != 0 {
		return nil, fmt.Errorf("heap: %s already contains data, cannot create", path)
	}
	pool := pager.NewBufferPool(disk, bufferFrames)

	meta, err := pool.NewPage(pager.PageHeap)
	if err != nil {
		return nil, err
	}
	if meta.ID() != metadataPageID {
		return nil, fmt.Errorf("heap: expected metadata page 0, got %d", meta.ID())
	}
	if _, err := meta.AddRow(encodeMetadata(name, schema)); err != nil {
		return nil, fmt.Errorf("heap: metadata too large for one page: %w", err)
	}
	pool.UnpinPage(meta.ID(), true)

	first, err := pool.NewPage(pager.PageHeap)
	if err != nil {
		return nil, err
	}
	pool.UnpinPage(first.ID(), false)

	if err := pool.FlushAll(); err != nil {
		return nil, err
	}
	return &Table{Name: name, Schema: schema, pool: pool, disk: disk, lastPage: first.ID()}, nil
}

// Open reopens an existing heap file, reading back its name and schema
// from the metadata page and resuming inserts at the last data page.
func Open(path string, bufferFrames int) (*Table, error) {
	disk, err := pager.OpenDiskManager(path)
	if err != nil {
		return nil, err
	}
	n, err := disk.NumPages()
	if err != nil {
		return nil, err
	}
	if n < 2 {
		return nil, fmt.Errorf("heap: %s has no data pages", path)
	}
	pool := pager.NewBufferPool(disk, bufferFrames)

	meta, err := pool.FetchPage(metadataPageID)
	if err != nil {
		return nil, err
	}
	raw, ok := meta.GetRow(0)
	if !ok {
		pool.UnpinPage(metadataPageID, false)
		return nil, fmt.Errorf("heap: %s: missing metadata row", path)
	}
	name, schema, err := decodeMetadata(raw)
	pool.UnpinPage(metadataPageID, false)
	if err != nil {
		return nil, err
	}

	return &Table{Name: name, Schema: schema, pool: pool, disk: disk, lastPage: n - 1}, nil
}

func encodeMetadata(name string, schema types.Schema) []byte {
	w := pagecodec.NewWriter(nil)
	w.RawString(name)
	w.U16(uint16(schema.ColumnCount()))
	for i := 0; i < schema.ColumnCount(); i++ {
		col, _ := schema.Column(i)
		w.RawString(col.Name)
		w.U8(uint8(col.Type))
		w.U8(uint8(col.Constraints))
		if col.References != nil {
			w.U8(1)
			w.RawString(col.References.Table)
			w.RawString(col.References.Column)
		} else {
			w.U8(0)
		}
	}
	return w.Bytes()
}

func decodeMetadata(data []byte) (string, types.Schema, error) {
	r := pagecodec.NewReader(data)
	name, err := r.RawString()
	if err != nil {
		return "", types.Schema{}, err
	}
	count, err := r.U16()
	if err != nil {
		return "", types.Schema{}, err
	}
	cols := make([]types.Column, 0, count)
	for i := 0; i < int(count); i++ {
		colName, err := r.RawString()
		if err != nil {
			return "", types.Schema{}, err
		}
		dt, err := r.U8()
		if err != nil {
			return "", types.Schema{}, err
		}
		cons, err := r.U8()
		if err != nil {
			return "", types.Schema{}, err
		}
		hasRef, err := r.U8()
		if err != nil {
			return "", types.Schema{}, err
		}
		col := types.Column{Name: colName, Type: types.DataType(dt), Constraints: types.Constraint(cons)}
		if hasRef != 0 {
			refTable, err := r.RawString()
			if err != nil {
				return "", types.Schema{}, err
			}
			refCol, err := r.RawString()
			if err != nil {
				return "", types.Schema{}, err
			}
			col.References = &types.Reference{Table: refTable, Column: refCol}
		}
		cols = append(cols, col)
	}
	schema, err := types.NewSchema(cols)
	if err != nil {
		return "", types.Schema{}, err
	}
	return name, schema, nil
}

// ApplySchema persists an evolved schema (ALTER TABLE) to the metadata
// page, leaving existing row versions untouched — DecodeRow pads any row
// narrower than the new schema with Null.
func (t *Table) ApplySchema(schema types.Schema) error {
	meta, err := t.pool.FetchPage(metadataPageID)
	if err != nil {
		return err
	}
	defer t.pool.UnpinPage(metadataPageID, true)
	data := encodeMetadata(t.Name, schema)
	if err := meta.UpdateRow(0, data); err != nil {
		if err != pager.ErrPageFull {
			return err
		}
		// A widened schema's metadata row may have grown past its slot;
		// same-page in-place growth isn't supported, so recreate the slot.
		fresh := pager.New(metadataPageID, pager.PageHeap)
		if _, err := fresh.AddRow(data); err != nil {
			return fmt.Errorf("heap: schema metadata too large for one page: %w", err)
		}
		*meta = *fresh
	}
	t.Schema = schema
	return nil
}

// Rename rewrites the metadata page with a new table name, for RENAME
// TABLE; the caller is responsible for moving the underlying file and
// updating any catalog/index references to the new name.
func (t *Table) Rename(name string) error {
	meta, err := t.pool.FetchPage(metadataPageID)
	if err != nil {
		return err
	}
	defer t.pool.UnpinPage(metadataPageID, true)
	data := encodeMetadata(name, t.Schema)
	if err := meta.UpdateRow(0, data); err != nil {
		if err != pager.ErrPageFull {
			return err
		}
		// A longer name outgrows the slot; recreate it as for ApplySchema.
		fresh := pager.New(metadataPageID, pager.PageHeap)
		if _, err := fresh.AddRow(data); err != nil {
			return fmt.Errorf("heap: renamed metadata too large for one page: %w", err)
		}
		*meta = *fresh
	}
	t.Name = name
	return nil
}

// Insert appends a new row version, trying the last known data page
// first and allocating a fresh page on overflow.
func (t *Table) Insert(v Version) (pager.RowID, error) {
	data, err := EncodeRow(t.Schema, v)
	if err != nil {
		return pager.RowID{}, err
	}

	page, err := t.pool.FetchPage(t.lastPage)
	if err != nil {
		return pager.RowID{}, err
	}
	slot, err := page.AddRow(data)
	if err == nil {
		id := pager.RowID{PageID: page.ID(), SlotID: slot}
		t.pool.UnpinPage(page.ID(), true)
		return id, nil
	}
	t.pool.UnpinPage(page.ID(), false)
	if err != pager.ErrPageFull {
		return pager.RowID{}, err
	}

	fresh, err := t.pool.NewPage(pager.PageHeap)
	if err != nil {
		return pager.RowID{}, err
	}
	slot, err = fresh.AddRow(data)
	if err != nil {
		t.pool.UnpinPage(fresh.ID(), false)
		return pager.RowID{}, fmt.Errorf("heap: row too large for an empty page: %w", err)
	}
	t.lastPage = fresh.ID()
	id := pager.RowID{PageID: fresh.ID(), SlotID: slot}
	t.pool.UnpinPage(fresh.ID(), true)
	return id, nil
}

// Get fetches and decodes the row version stored at id.
func (t *Table) Get(id pager.RowID) (Version, bool, error) {
	page, err := t.pool.FetchPage(id.PageID)
	if err != nil {
		return Version{}, false, err
	}
	defer t.pool.UnpinPage(id.PageID, false)
	raw, ok := page.GetRow(id.SlotID)
	if !ok {
		return Version{}, false, nil
	}
	v, err := DecodeRow(t.Schema, raw)
	if err != nil {
		return Version{}, false, err
	}
	return v, true, nil
}

// UpdateInPlace overwrites a row version at id, used to stamp xmax on the
// old version or to grow/shrink within a slot's already-allocated length.
// Encoded data that no longer fits the slot's current length returns
// pager.ErrPageFull. The executor's UPDATE never grows a slot: it stamps
// xmax on the old version (same size) and inserts the new version.
func (t *Table) UpdateInPlace(id pager.RowID, v Version) error {
	page, err := t.pool.FetchPage(id.PageID)
	if err != nil {
		return err
	}
	defer t.pool.UnpinPage(id.PageID, true)
	data, err := EncodeRow(t.Schema, v)
	if err != nil {
		return err
	}
	return page.UpdateRow(id.SlotID, data)
}

// Delete tombstones the slot at id.
func (t *Table) Delete(id pager.RowID) error {
	page, err := t.pool.FetchPage(id.PageID)
	if err != nil {
		return err
	}
	defer t.pool.UnpinPage(id.PageID, true)
	return page.DeleteRow(id.SlotID)
}

// Scan walks every row version across every data page in page order,
// invoking fn for each. No pin is held across calls to fn: each page's
// rows are decoded up front, then the page is unpinned before fn runs.
// fn returning false stops the scan early.
func (t *Table) Scan(fn func(id pager.RowID, v Version) (bool, error)) error {
	n, err := t.disk.NumPages()
	if err != nil {
		return err
	}
	for pid := metadataPageID + 1; pid < n; pid++ {
		page, err := t.pool.FetchPage(pid)
		if err != nil {
			return err
		}
		rowCount := page.RowCount()
		type decoded struct {
			id pager.RowID
			v  Version
		}
		rows := make([]decoded, 0, rowCount)
		var decodeErr error
		for s := pager.SlotID(0); s < pager.SlotID(rowCount); s++ {
			raw, ok := page.GetRow(s)
			if !ok {
				continue
			}
			v, err := DecodeRow(t.Schema, raw)
			if err != nil {
				decodeErr = err
				break
			}
			rows = append(rows, decoded{id: pager.RowID{PageID: pid, SlotID: s}, v: v})
		}
		t.pool.UnpinPage(pid, false)
		if decodeErr != nil {
			return decodeErr
		}
		for _, r := range rows {
			cont, err := fn(r.id, r.v)
			if err != nil {
				return err
			}
			if !cont {
				return nil
			}
		}
	}
	return nil
}

// Flush writes every dirty page to disk.
func (t *Table) Flush() error {
	return t.pool.FlushAll()
}

// Close flushes and closes the underlying buffer pool and file.
func (t *Table) Close() error {
	return t.pool.Close()
}
