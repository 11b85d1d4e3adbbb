package pager

import (
	"path/filepath"
	"testing"
)

func TestDiskManagerAllocateReadWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.dat")
	d, err := OpenDiskManager(path)
	if err != nil {
		t.Fatalf("OpenDiskManager: %v", err)
	}
	defer d.Close()

	p0, err := d.AllocatePage(PageHeap)
	if err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}
	if p0.ID() != 0 {
		t.Fatalf("expected first page id 0, got %d", p0.ID())
	}
	p1, err := d.AllocatePage(PageHeap)
	if err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}
	if p1.ID() != 1 {
		t.Fatalf("expected second page id 1, got %d", p1.ID())
	}

	p0.AddRow([]byte("metadata"))
	if err := d.WritePage(p0); err != nil {
		t.Fatalf("WritePage: %v", err)
	}

	readBack, err := d.ReadPage(0)
	if err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	row, ok := readBack.GetRow(0)
	if !ok || string(row) != "metadata" {
		t.Fatalf("expected 'metadata', got %q,%v", row, ok)
	}

	n, err := d.NumPages()
	if err != nil {
		t.Fatalf("NumPages: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 pages, got %d", n)
	}
}

func TestDiskManagerReadPageOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.dat")
	d, err := OpenDiskManager(path)
	if err != nil {
		t.Fatalf("OpenDiskManager: %v", err)
	}
	defer d.Close()

	if _, err := d.ReadPage(3); err == nil {
		t.Fatalf("expected error reading past end of empty file")
	}
}
