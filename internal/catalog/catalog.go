// Package catalog tracks which tables and indexes exist, their on-disk
// locations, and their schemas — narrowed to just the table/index
// metadata this storage engine needs, not a general introspection
// catalog covering views or functions.
package catalog

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/relstore/reldb/internal/types"
)

// IndexKind names which index structure backs an IndexEntry.
type IndexKind uint8

const (
	IndexBTree IndexKind = iota
	IndexHash
)

func (k IndexKind) String() string {
	if k == IndexHash {
		return "HASH"
	}
	return "BTREE"
}

// ParseIndexKind parses the String() form back into an IndexKind, for
// loading persisted index definitions.
func ParseIndexKind(s string) (IndexKind, error) {
	switch s {
	case "BTREE":
		return IndexBTree, nil
	case "HASH":
		return IndexHash, nil
	default:
		return 0, fmt.Errorf("catalog: unknown index kind %q", s)
	}
}

// TableEntry records where a table's heap file lives and its current
// schema.
type TableEntry struct {
	Name      string
	Path      string
	Schema    types.Schema
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IndexEntry records an index's structural kind and the table/column it
// covers. Neither index kind persists a root page id across a reopen:
// BTree indexes are reconstructed by re-scanning their table's heap file
// into a fresh on-disk tree (see IndexDef/SaveIndexDefs), and hash
// indexes are rebuilt in memory the same way every time.
type IndexEntry struct {
	Name      string
	Table     string
	Column    string
	Kind      IndexKind
	Unique    bool
	CreatedAt time.Time
}

// Manager is the in-memory registry of every table and index known to a
// running instance. It is rebuilt from the data directory's layout on
// startup and held for the instance's lifetime. Safe for concurrent use.
type Manager struct {
	mu      sync.RWMutex
	tables  map[string]*TableEntry
	indexes map[string]*IndexEntry
	jobs    map[string]*Job
}

// NewManager returns an empty catalog.
func NewManager() *Manager {
	return &Manager{
		tables:  make(map[string]*TableEntry),
		indexes: make(map[string]*IndexEntry),
		jobs:    make(map[string]*Job),
	}
}

// RegisterTable adds or replaces a table entry.
func (m *Manager) RegisterTable(name, path string, schema types.Schema) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := entryTime()
	entry, exists := m.tables[name]
	if !exists {
		entry = &TableEntry{Name: name, Path: path, CreatedAt: now}
	}
	entry.Path = path
	entry.Schema = schema
	entry.UpdatedAt = now
	m.tables[name] = entry
	return nil
}

// DropTable removes a table entry and every index registered against it.
func (m *Manager) DropTable(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[name]; !ok {
		return fmt.Errorf("catalog: table %q not found", name)
	}
	delete(m.tables, name)
	for iname, idx := range m.indexes {
		if idx.Table == name {
			delete(m.indexes, iname)
		}
	}
	return nil
}

// RenameTable moves a table entry to a new name, updating its recorded
// path and every dependent index's Table reference in place.
func (m *Manager) RenameTable(oldName, newName, newPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.tables[oldName]
	if !ok {
		return fmt.Errorf("catalog: table %q not found", oldName)
	}
	if _, exists := m.tables[newName]; exists {
		return fmt.Errorf("catalog: table %q already exists", newName)
	}
	delete(m.tables, oldName)
	entry.Name = newName
	entry.Path = newPath
	entry.UpdatedAt = entryTime()
	m.tables[newName] = entry
	for _, idx := range m.indexes {
		if idx.Table == oldName {
			idx.Table = newName
		}
	}
	return nil
}

// UpdateSchema replaces a table's schema in place (ALTER TABLE).
func (m *Manager) UpdateSchema(name string, schema types.Schema) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.tables[name]
	if !ok {
		return fmt.Errorf("catalog: table %q not found", name)
	}
	entry.Schema = schema
	entry.UpdatedAt = entryTime()
	return nil
}

// GetTable returns the entry for name, if registered.
func (m *Manager) GetTable(name string) (*TableEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.tables[name]
	return e, ok
}

// ListTables returns every registered table entry.
func (m *Manager) ListTables() []*TableEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*TableEntry, 0, len(m.tables))
	for _, e := range m.tables {
		out = append(out, e)
	}
	return out
}

// RegisterIndex adds or replaces an index entry.
func (m *Manager) RegisterIndex(entry *IndexEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.Name == "" {
		return fmt.Errorf("catalog: index name cannot be empty")
	}
	if _, ok := m.tables[entry.Table]; !ok {
		return fmt.Errorf("catalog: index %q references unknown table %q", entry.Name, entry.Table)
	}
	entry.CreatedAt = entryTime()
	m.indexes[entry.Name] = entry
	return nil
}

// DropIndex removes an index entry.
func (m *Manager) DropIndex(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.indexes[name]; !ok {
		return fmt.Errorf("catalog: index %q not found", name)
	}
	delete(m.indexes, name)
	return nil
}

// GetIndex returns the entry for name, if registered.
func (m *Manager) GetIndex(name string) (*IndexEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.indexes[name]
	return e, ok
}

// IndexesForTable returns every index registered against table.
func (m *Manager) IndexesForTable(table string) []*IndexEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*IndexEntry, 0)
	for _, idx := range m.indexes {
		if idx.Table == table {
			out = append(out, idx)
		}
	}
	return out
}

// IndexOnColumn returns the first index (of any kind) registered on
// table.column, used by the planner to decide between a sequential and
// an index scan.
func (m *Manager) IndexOnColumn(table, column string) (*IndexEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, idx := range m.indexes {
		if idx.Table == table && idx.Column == column {
			return idx, true
		}
	}
	return nil, false
}

// ListIndexes returns every registered index entry, for persisting the
// index definition file after a DDL change.
func (m *Manager) ListIndexes() []*IndexEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*IndexEntry, 0, len(m.indexes))
	for _, idx := range m.indexes {
		out = append(out, idx)
	}
	return out
}

// entryTime is a thin seam so tests can avoid depending on wall-clock
// ordering; production code always uses time.Now.
var entryTime = func() time.Time { return time.Now() }

// IndexDef is the durable record of an index's definition — everything
// needed to reconstruct it by re-scanning its table, but none of the
// transient on-disk tree state (root page, buffer pool). Indexes
// themselves are never serialized; only the recipe for rebuilding them
// on the next Engine.Open is.
type IndexDef struct {
	Name   string `yaml:"name"`
	Table  string `yaml:"table"`
	Column string `yaml:"column"`
	Kind   string `yaml:"kind"`
	Unique bool   `yaml:"unique"`
}

// indexCatalogFile is the on-disk shape of the index definitions file.
type indexCatalogFile struct {
	Indexes []IndexDef `yaml:"indexes"`
}

// SaveIndexDefs writes entries to path as YAML, overwriting any existing
// file. Called after every successful index- or table-mutating DDL
// statement so a restart can reconstruct the same indexes.
func SaveIndexDefs(path string, entries []*IndexEntry) error {
	defs := make([]IndexDef, 0, len(entries))
	for _, e := range entries {
		defs = append(defs, IndexDef{
			Name:   e.Name,
			Table:  e.Table,
			Column: e.Column,
			Kind:   e.Kind.String(),
			Unique: e.Unique,
		})
	}
	data, err := yaml.Marshal(indexCatalogFile{Indexes: defs})
	if err != nil {
		return fmt.Errorf("catalog: marshal index definitions: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("catalog: write %s: %w", path, err)
	}
	return nil
}

// LoadIndexDefs reads path's persisted index definitions. A missing file
// is not an error — it means no indexes were ever created — and returns
// an empty slice.
func LoadIndexDefs(path string) ([]IndexDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var file indexCatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	return file.Indexes, nil
}
