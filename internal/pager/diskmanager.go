package pager

import (
	"fmt"
	"os"
)

// DiskManager owns a single table or index file and performs
// page-aligned reads and writes against it.
type DiskManager struct {
	file *os.File
}

// OpenDiskManager opens (creating if necessary) the file at path.
func OpenDiskManager(path string) (*DiskManager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("pager: open %s: %w", path, err)
	}
	return &DiskManager{file: f}, nil
}

// NumPages returns the number of whole pages currently in the file.
func (d *DiskManager) NumPages() (PageID, error) {
	info, err := d.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("pager: stat: %w", err)
	}
	return PageID(info.Size() / PageSize), nil
}

// AllocatePage extends the file by one zeroed page of the given type and
// returns its new id, captured before the extension.
func (d *DiskManager) AllocatePage(pageType PageType) (*Page, error) {
	id, err := d.NumPages()
	if err != nil {
		return nil, err
	}
	page := New(id, pageType)
	if err := d.WritePage(page); err != nil {
		return nil, err
	}
	return page, nil
}

// ReadPage seeks to id*PageSize and reads exactly one page.
func (d *DiskManager) ReadPage(id PageID) (*Page, error) {
	buf := make([]byte, PageSize)
	n, err := d.file.ReadAt(buf, int64(id)*PageSize)
	if err != nil {
		return nil, fmt.Errorf("pager: read page %d: %w", id, err)
	}
	if n != PageSize {
		return nil, fmt.Errorf("pager: short read on page %d: got %d bytes", id, n)
	}
	return FromBytes(buf)
}

// WritePage writes page's image at its own offset and syncs the data to
// stable storage.
func (d *DiskManager) WritePage(page *Page) error {
	_, err := d.file.WriteAt(page.ToBytes(), int64(page.ID())*PageSize)
	if err != nil {
		return fmt.Errorf("pager: write page %d: %w", page.ID(), err)
	}
	return d.file.Sync()
}

// Flush syncs file metadata (directory entry, size) to stable storage.
func (d *DiskManager) Flush() error {
	return d.file.Sync()
}

// Close closes the underlying file handle.
func (d *DiskManager) Close() error {
	return d.file.Close()
}
