// Package engine is reldb's executor: it holds the catalog, the open
// heap tables and indexes, the write-ahead log, and the transaction
// manager, and dispatches every parsed Statement. One method handles
// each statement kind against a shared engine receiver, driving its own
// page/heap/WAL/MVCC storage rather than an in-memory table model.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/relstore/reldb/internal/btree"
	"github.com/relstore/reldb/internal/catalog"
	"github.com/relstore/reldb/internal/hashindex"
	"github.com/relstore/reldb/internal/heap"
	"github.com/relstore/reldb/internal/pager"
	"github.com/relstore/reldb/internal/sql"
	"github.com/relstore/reldb/internal/txn"
	"github.com/relstore/reldb/internal/types"
	"github.com/relstore/reldb/internal/walog"
)

type openIndex struct {
	entry *catalog.IndexEntry
	tree  *btree.BTree
	pool  *pager.BufferPool
	disk  *pager.DiskManager
	hash  *hashindex.HashIndex
}

// Engine is the process-scoped mutable state for a single database: one
// instance per data directory, constructed once and torn down once.
type Engine struct {
	dataDir      string
	bufferFrames int

	catalog *catalog.Manager
	tables  map[string]*heap.Table
	indexes map[string]*openIndex

	wal  *walog.File
	txns *txn.Manager

	curTxn    txn.ID
	curSnap   txn.Snapshot
	inTxn     bool
}

// Open constructs an Engine rooted at dataDir, creating the directory and
// its WAL file if necessary, and reopening every table file already
// present.
func Open(dataDir string, bufferFrames int) (*Engine, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, wrapErr(KindIO, err, "create data directory %s", dataDir)
	}
	wal, err := walog.Open(filepath.Join(dataDir, "wal.log"))
	if err != nil {
		return nil, wrapErr(KindIO, err, "open write-ahead log")
	}

	e := &Engine{
		dataDir:      dataDir,
		bufferFrames: bufferFrames,
		catalog:      catalog.NewManager(),
		tables:       make(map[string]*heap.Table),
		indexes:      make(map[string]*openIndex),
		wal:          wal,
		txns:         txn.NewManager(),
	}

	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, wrapErr(KindIO, err, "list data directory")
	}
	for _, ent := range entries {
		if ent.IsDir() || filepath.Ext(ent.Name()) != ".tbl" {
			continue
		}
		name := ent.Name()[:len(ent.Name())-len(".tbl")]
		if err := e.reopenTable(name); err != nil {
			return nil, err
		}
	}

	defs, err := catalog.LoadIndexDefs(e.indexDefsPath())
	if err != nil {
		return nil, wrapErr(KindIO, err, "load index definitions")
	}
	for _, def := range defs {
		t, ok := e.tables[def.Table]
		if !ok {
			return nil, newErr(KindCorruption, "index %q references unknown table %q", def.Name, def.Table)
		}
		kind, err := catalog.ParseIndexKind(def.Kind)
		if err != nil {
			return nil, wrapErr(KindCorruption, err, "load index %q", def.Name)
		}
		idx, err := e.buildIndex(def.Name, t, def.Table, def.Column, kind, def.Unique)
		if err != nil {
			return nil, err
		}
		e.indexes[def.Name] = idx
		if err := e.catalog.RegisterIndex(idx.entry); err != nil {
			return nil, wrapErr(KindIO, err, "register index %q", def.Name)
		}
	}
	return e, nil
}

func (e *Engine) reopenTable(name string) error {
	path := e.tablePath(name)
	t, err := heap.Open(path, e.bufferFrames)
	if err != nil {
		return wrapErr(KindIO, err, "reopen table %q", name)
	}
	e.tables[name] = t
	return e.catalog.RegisterTable(name, path, t.Schema)
}

// Catalog exposes the table/index registry, used by the vacuum scheduler
// to discover tables without importing the engine package from
// internal/storage.
func (e *Engine) Catalog() *catalog.Manager { return e.catalog }

// InstanceID identifies this running database instance, stamped once at
// startup and held for the process lifetime.
func (e *Engine) InstanceID() uuid.UUID { return e.txns.InstanceID }

func (e *Engine) tablePath(name string) string {
	return filepath.Join(e.dataDir, name+".tbl")
}

func (e *Engine) indexPath(name string) string {
	return filepath.Join(e.dataDir, name+".idx")
}

func (e *Engine) indexDefsPath() string {
	return filepath.Join(e.dataDir, "indexes.yaml")
}

// persistIndexDefs writes every registered index's definition to disk so
// Open can reconstruct it after a restart. Called after every DDL
// statement that adds, removes, or renames an index or its table.
func (e *Engine) persistIndexDefs() error {
	if err := catalog.SaveIndexDefs(e.indexDefsPath(), e.catalog.ListIndexes()); err != nil {
		return wrapErr(KindIO, err, "persist index definitions")
	}
	return nil
}

// Close flushes every open table and index and the WAL, then releases
// their file handles.
func (e *Engine) Close() error {
	for _, t := range e.tables {
		if err := t.Close(); err != nil {
			return err
		}
	}
	for _, idx := range e.indexes {
		if idx.pool != nil {
			if err := idx.pool.Close(); err != nil {
				return err
			}
		}
	}
	return e.wal.Close()
}

// Execute parses and runs a single SQL statement, returning a ResultSet
// describing what happened (row data for SELECT, affected-row counts for
// DML, or a plain acknowledgement for DDL/transaction control).
func (e *Engine) Execute(src string) (*ResultSet, error) {
	stmt, err := sql.Parse(src)
	if err != nil {
		return nil, &Error{Kind: KindNotFound, Msg: "parse error", Err: err}
	}
	return e.ExecuteStatement(stmt)
}

// ExecuteStatement dispatches an already-parsed Statement.
func (e *Engine) ExecuteStatement(stmt *sql.Statement) (*ResultSet, error) {
	switch stmt.Kind {
	case sql.StmtCreateTable:
		return e.execCreateTable(stmt.CreateTable)
	case sql.StmtDropTable:
		return e.execDropTable(stmt.DropTable)
	case sql.StmtAlterTable:
		return e.execAlterTable(stmt.AlterTable)
	case sql.StmtCreateIndex:
		return e.execCreateIndex(stmt.CreateIndex)
	case sql.StmtDropIndex:
		return e.execDropIndex(stmt.DropIndex)
	case sql.StmtInsert:
		return e.execInsert(stmt.Insert)
	case sql.StmtUpdate:
		return e.execUpdate(stmt.Update)
	case sql.StmtDelete:
		return e.execDelete(stmt.Delete)
	case sql.StmtSelect:
		return e.execSelect(stmt.Select)
	case sql.StmtBegin:
		return e.execBegin()
	case sql.StmtCommit:
		return e.execCommit()
	case sql.StmtRollback:
		return e.execRollback()
	case sql.StmtVacuum:
		return e.execVacuumStmt(stmt.Vacuum)
	default:
		return nil, newErr(KindNotFound, "unhandled statement kind %d", stmt.Kind)
	}
}

// activeTxn returns the transaction id and snapshot the current
// statement should run under: the explicit BEGIN...COMMIT transaction if
// one is open, else a fresh autocommit transaction that this call begins
// and the caller must finish (commit on success, rollback on error).
func (e *Engine) activeTxn() (id txn.ID, snap txn.Snapshot, autocommit bool) {
	if e.inTxn {
		return e.curTxn, e.curSnap, false
	}
	id, snap = e.txns.Begin()
	return id, snap, true
}

func (e *Engine) finishAuto(autocommit bool, id txn.ID, failed bool) error {
	if !autocommit {
		return nil
	}
	if failed {
		return e.txns.Rollback(id)
	}
	if err := e.wal.Append(walog.Commit(walog.TxnID(id))); err != nil {
		return wrapErr(KindIO, err, "append commit record")
	}
	return e.txns.Commit(id)
}

// abortOnWriteConflict forcibly aborts id when UPDATE/DELETE detects a
// write conflict, regardless of whether id is running as an autocommit
// statement or inside an explicit BEGIN...COMMIT block — finishAuto's
// no-op-on-failure path only covers the autocommit case.
func (e *Engine) abortOnWriteConflict(autocommit bool, id txn.ID) {
	if autocommit {
		e.txns.Rollback(id)
		return
	}
	e.wal.Append(walog.Rollback(walog.TxnID(id)))
	e.txns.Rollback(id)
	if e.inTxn && e.curTxn == id {
		e.inTxn = false
	}
}

func (e *Engine) execBegin() (*ResultSet, error) {
	if e.inTxn {
		return nil, newErr(KindTransactionState, "BEGIN while a transaction is already active")
	}
	id, snap := e.txns.Begin()
	e.curTxn, e.curSnap, e.inTxn = id, snap, true
	if err := e.wal.Append(walog.Begin(walog.TxnID(id))); err != nil {
		return nil, wrapErr(KindIO, err, "append begin record")
	}
	return ackResult(fmt.Sprintf("BEGIN (txn %d)", id)), nil
}

func (e *Engine) execCommit() (*ResultSet, error) {
	if !e.inTxn {
		return nil, newErr(KindTransactionState, "COMMIT without an active transaction")
	}
	id := e.curTxn
	if err := e.wal.Append(walog.Commit(walog.TxnID(id))); err != nil {
		return nil, wrapErr(KindIO, err, "append commit record")
	}
	if err := e.txns.Commit(id); err != nil {
		return nil, wrapErr(KindTransactionState, err, "commit")
	}
	e.inTxn = false
	return ackResult(fmt.Sprintf("COMMIT (txn %d)", id)), nil
}

func (e *Engine) execRollback() (*ResultSet, error) {
	if !e.inTxn {
		return nil, newErr(KindTransactionState, "ROLLBACK without an active transaction")
	}
	id := e.curTxn
	if err := e.wal.Append(walog.Rollback(walog.TxnID(id))); err != nil {
		return nil, wrapErr(KindIO, err, "append rollback record")
	}
	if err := e.txns.Rollback(id); err != nil {
		return nil, wrapErr(KindTransactionState, err, "rollback")
	}
	e.inTxn = false
	return ackResult(fmt.Sprintf("ROLLBACK (txn %d)", id)), nil
}

// ExecuteVacuum implements storage.VacuumExecutor, letting the cron
// scheduler trigger a vacuum without importing the engine package from
// internal/storage.
func (e *Engine) ExecuteVacuum(ctx context.Context, table string) error {
	_, err := e.vacuumTable(table)
	return err
}

func isIndexable(dt types.DataType) bool {
	switch dt {
	case types.TypeInteger, types.TypeUnsigned, types.TypeDate, types.TypeTimestamp:
		return true
	default:
		return false
	}
}

func valueToKey(v types.Value) (int64, bool) {
	switch v.Kind {
	case types.KindInteger:
		return v.Int, true
	case types.KindUnsigned:
		if v.Uint <= 1<<63-1 {
			return int64(v.Uint), true
		}
		return 0, false
	case types.KindDate:
		return int64(v.Days), true
	case types.KindTimestamp:
		return v.Nanos, true
	default:
		return 0, false
	}
}
