package engine

import (
	"fmt"
	"os"

	"github.com/relstore/reldb/internal/btree"
	"github.com/relstore/reldb/internal/catalog"
	"github.com/relstore/reldb/internal/hashindex"
	"github.com/relstore/reldb/internal/heap"
	"github.com/relstore/reldb/internal/pager"
	"github.com/relstore/reldb/internal/sql"
	"github.com/relstore/reldb/internal/types"
)

func (e *Engine) execCreateTable(stmt *sql.CreateTableStmt) (*ResultSet, error) {
	if _, exists := e.catalog.GetTable(stmt.Table); exists {
		if stmt.IfNotExists {
			return ackResult(fmt.Sprintf("table %q already exists", stmt.Table)), nil
		}
		return nil, newErr(KindConstraintViolation, "table %q already exists", stmt.Table)
	}
	cols := make([]types.Column, len(stmt.Columns))
	for i, c := range stmt.Columns {
		cols[i] = types.Column{Name: c.Name, Type: c.Type, Constraints: c.Constraints, References: c.References}
	}
	schema, err := types.NewSchema(cols)
	if err != nil {
		return nil, wrapErr(KindSchemaViolation, err, "create table %q", stmt.Table)
	}

	path := e.tablePath(stmt.Table)
	t, err := heap.Create(path, stmt.Table, schema, e.bufferFrames)
	if err != nil {
		return nil, wrapErr(KindIO, err, "create table %q", stmt.Table)
	}
	e.tables[stmt.Table] = t
	if err := e.catalog.RegisterTable(stmt.Table, path, schema); err != nil {
		return nil, wrapErr(KindIO, err, "register table %q", stmt.Table)
	}
	return ackResult(fmt.Sprintf("table %q created", stmt.Table)), nil
}

func (e *Engine) execDropTable(stmt *sql.DropTableStmt) (*ResultSet, error) {
	t, ok := e.tables[stmt.Table]
	if !ok {
		if stmt.IfExists {
			return ackResult(fmt.Sprintf("table %q does not exist", stmt.Table)), nil
		}
		return nil, newErr(KindNotFound, "table %q not found", stmt.Table)
	}
	for _, idx := range e.catalog.IndexesForTable(stmt.Table) {
		e.closeAndRemoveIndex(idx.Name)
	}
	path := e.tablePath(stmt.Table)
	if err := t.Close(); err != nil {
		return nil, wrapErr(KindIO, err, "close table %q", stmt.Table)
	}
	delete(e.tables, stmt.Table)
	if err := e.catalog.DropTable(stmt.Table); err != nil {
		return nil, wrapErr(KindNotFound, err, "drop table %q", stmt.Table)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, wrapErr(KindIO, err, "remove table file %q", path)
	}
	if err := e.persistIndexDefs(); err != nil {
		return nil, err
	}
	return ackResult(fmt.Sprintf("table %q dropped", stmt.Table)), nil
}

func (e *Engine) execAlterTable(stmt *sql.AlterTableStmt) (*ResultSet, error) {
	t, ok := e.tables[stmt.Table]
	if !ok {
		return nil, newErr(KindNotFound, "table %q not found", stmt.Table)
	}
	if stmt.Kind == sql.AlterRenameTable {
		return e.execRenameTable(t, stmt.Table, stmt.RenameTo)
	}
	var newSchema types.Schema
	switch stmt.Kind {
	case sql.AlterAddColumn:
		newSchema = t.Schema.WithColumn(types.Column{
			Name: stmt.NewColumn.Name, Type: stmt.NewColumn.Type,
			Constraints: stmt.NewColumn.Constraints, References: stmt.NewColumn.References,
		})
	case sql.AlterDropColumn:
		if _, _, ok := t.Schema.FindColumn(stmt.ColumnName); !ok {
			return nil, newErr(KindSchemaViolation, "column %q not found on table %q", stmt.ColumnName, stmt.Table)
		}
		newSchema = t.Schema.WithoutColumn(stmt.ColumnName)
	case sql.AlterRenameColumn:
		if _, _, ok := t.Schema.FindColumn(stmt.ColumnName); !ok {
			return nil, newErr(KindSchemaViolation, "column %q not found on table %q", stmt.ColumnName, stmt.Table)
		}
		newSchema = t.Schema.Renamed(stmt.ColumnName, stmt.RenameTo)
	default:
		return nil, newErr(KindSchemaViolation, "unsupported ALTER TABLE form")
	}
	if err := t.ApplySchema(newSchema); err != nil {
		return nil, wrapErr(KindIO, err, "alter table %q", stmt.Table)
	}
	if err := e.catalog.UpdateSchema(stmt.Table, newSchema); err != nil {
		return nil, wrapErr(KindNotFound, err, "alter table %q", stmt.Table)
	}
	return ackResult(fmt.Sprintf("table %q altered", stmt.Table)), nil
}

// execRenameTable moves t's heap file to the new table name's path and
// rewrites the catalog entry (and every dependent index's Table
// reference). The open file handle backing t's buffer pool stays valid
// across the rename — only the path on disk changes, not the inode.
func (e *Engine) execRenameTable(t *heap.Table, oldName, newName string) (*ResultSet, error) {
	if _, exists := e.tables[newName]; exists {
		return nil, newErr(KindConstraintViolation, "table %q already exists", newName)
	}
	oldPath := e.tablePath(oldName)
	newPath := e.tablePath(newName)
	if err := t.Flush(); err != nil {
		return nil, wrapErr(KindIO, err, "rename table %q", oldName)
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return nil, wrapErr(KindIO, err, "rename table file %q to %q", oldPath, newPath)
	}
	if err := t.Rename(newName); err != nil {
		return nil, wrapErr(KindIO, err, "rename table %q", oldName)
	}
	if err := e.catalog.RenameTable(oldName, newName, newPath); err != nil {
		return nil, wrapErr(KindNotFound, err, "rename table %q", oldName)
	}
	delete(e.tables, oldName)
	e.tables[newName] = t
	if err := e.persistIndexDefs(); err != nil {
		return nil, err
	}
	return ackResult(fmt.Sprintf("table %q renamed to %q", oldName, newName)), nil
}

func (e *Engine) execCreateIndex(stmt *sql.CreateIndexStmt) (*ResultSet, error) {
	t, ok := e.tables[stmt.Table]
	if !ok {
		return nil, newErr(KindNotFound, "table %q not found", stmt.Table)
	}
	_, col, ok := t.Schema.FindColumn(stmt.Column)
	if !ok {
		return nil, newErr(KindSchemaViolation, "column %q not found on table %q", stmt.Column, stmt.Table)
	}
	if !isIndexable(col.Type) {
		return nil, newErr(KindSchemaViolation, "column %q has a non-indexable type %s", stmt.Column, col.Type)
	}
	if _, exists := e.catalog.GetIndex(stmt.Index); exists {
		return nil, newErr(KindConstraintViolation, "index %q already exists", stmt.Index)
	}

	kind := catalog.IndexBTree
	if stmt.UsingHash {
		kind = catalog.IndexHash
	}
	idx, err := e.buildIndex(stmt.Index, t, stmt.Table, stmt.Column, kind, stmt.Unique)
	if err != nil {
		return nil, err
	}

	e.indexes[stmt.Index] = idx
	if err := e.catalog.RegisterIndex(idx.entry); err != nil {
		return nil, wrapErr(KindIO, err, "register index %q", stmt.Index)
	}
	if err := e.persistIndexDefs(); err != nil {
		return nil, err
	}
	return ackResult(fmt.Sprintf("index %q created", stmt.Index)), nil
}

// buildIndex constructs a populated openIndex for name over table.column,
// scanning t's heap to fill it. It is the single routine that creates an
// index's runtime state, shared by CREATE INDEX and by Engine.Open's
// reconstruction of indexes recorded in the persisted index definitions
// file — on-disk B+Tree indexes are never themselves persisted, only
// rebuilt by re-scanning their table, so every caller starts from a
// fresh on-disk tree. Any stale index file from a prior run is removed
// first so reconstruction doesn't keep appending to old tree pages.
func (e *Engine) buildIndex(name string, t *heap.Table, table, column string, kind catalog.IndexKind, unique bool) (*openIndex, error) {
	colIdx, _, ok := t.Schema.FindColumn(column)
	if !ok {
		return nil, newErr(KindSchemaViolation, "column %q not found on table %q", column, table)
	}

	idx := &openIndex{entry: &catalog.IndexEntry{
		Name: name, Table: table, Column: column, Kind: kind, Unique: unique,
	}}

	if kind == catalog.IndexHash {
		idx.hash = hashindex.New()
	} else {
		path := e.indexPath(name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, wrapErr(KindIO, err, "remove stale index file for %q", name)
		}
		disk, err := pager.OpenDiskManager(path)
		if err != nil {
			return nil, wrapErr(KindIO, err, "create index file for %q", name)
		}
		pool := pager.NewBufferPool(disk, e.bufferFrames)
		tree, err := btree.Create(pool)
		if err != nil {
			return nil, wrapErr(KindIO, err, "initialize B+ tree for %q", name)
		}
		idx.pool, idx.disk, idx.tree = pool, disk, tree
	}

	var scanErr error
	if err := t.Scan(func(id pager.RowID, v heap.Version) (bool, error) {
		key, ok := valueToKey(v.Values[colIdx])
		if !ok {
			return true, nil
		}
		if idx.hash != nil {
			idx.hash.Insert(key, id)
		} else if err := idx.tree.Insert(key, id); err != nil {
			scanErr = err
			return false, nil
		}
		return true, nil
	}); err != nil {
		return nil, wrapErr(KindIO, err, "populate index %q", name)
	}
	if scanErr != nil {
		return nil, wrapErr(KindIO, scanErr, "populate index %q", name)
	}
	return idx, nil
}

func (e *Engine) execDropIndex(stmt *sql.DropIndexStmt) (*ResultSet, error) {
	if _, ok := e.catalog.GetIndex(stmt.Index); !ok {
		return nil, newErr(KindNotFound, "index %q not found", stmt.Index)
	}
	e.closeAndRemoveIndex(stmt.Index)
	if err := e.persistIndexDefs(); err != nil {
		return nil, err
	}
	return ackResult(fmt.Sprintf("index %q dropped", stmt.Index)), nil
}

func (e *Engine) closeAndRemoveIndex(name string) {
	if idx, ok := e.indexes[name]; ok {
		if idx.pool != nil {
			_ = idx.pool.Close()
			_ = os.Remove(e.indexPath(name))
		}
		delete(e.indexes, name)
	}
	_ = e.catalog.DropIndex(name)
}
