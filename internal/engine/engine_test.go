package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/relstore/reldb/internal/heap"
	"github.com/relstore/reldb/internal/pager"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := Open(t.TempDir(), 64)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func mustExec(t *testing.T, e *Engine, src string) *ResultSet {
	t.Helper()
	res, err := e.Execute(src)
	if err != nil {
		t.Fatalf("Execute(%q): %v", src, err)
	}
	return res
}

func TestScenarioBasicInsertSearch(t *testing.T) {
	e := newTestEngine(t)
	mustExec(t, e, `CREATE TABLE users(id INTEGER, name VARCHAR)`)
	mustExec(t, e, `INSERT INTO users VALUES (1,'Alice'),(2,'Bob')`)

	res := mustExec(t, e, `SELECT * FROM users WHERE id = 2`)
	if len(res.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(res.Rows))
	}
	if res.Rows[0][0].Int != 2 || res.Rows[0][1].Str != "Bob" {
		t.Fatalf("expected (2,'Bob'), got %v", res.Rows[0])
	}
}

func TestScenarioIndexPlanSelection(t *testing.T) {
	e := newTestEngine(t)
	mustExec(t, e, `CREATE TABLE users(id INTEGER, name VARCHAR)`)
	mustExec(t, e, `INSERT INTO users VALUES (1,'Alice'),(2,'Bob')`)
	mustExec(t, e, `CREATE INDEX i ON users(id)`)

	res := mustExec(t, e, `SELECT * FROM users WHERE id = 2`)
	if len(res.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(res.Rows))
	}
	if res.Plan != "Index scan" {
		t.Fatalf("expected plan %q, got %q", "Index scan", res.Plan)
	}
}

func TestScenarioPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, 64)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	mustExec(t, e, `CREATE TABLE users(id INTEGER, name VARCHAR)`)
	mustExec(t, e, `INSERT INTO users VALUES (1,'Alice'),(2,'Bob')`)
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(dir, 64)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	res := mustExec(t, reopened, `SELECT * FROM users`)
	if len(res.Rows) != 2 {
		t.Fatalf("expected 2 rows after reopen, got %d", len(res.Rows))
	}
}

// A concurrently committed deleter is simulated by reaching into the
// heap directly (as an external tamperer would) and stamping xmax on the
// row with a transaction id that this session's snapshot sees as
// committed, before the session's own DELETE runs.
func TestScenarioWriteConflictAbortsTransaction(t *testing.T) {
	e := newTestEngine(t)
	mustExec(t, e, `CREATE TABLE users(id INTEGER, name VARCHAR)`)
	mustExec(t, e, `INSERT INTO users VALUES (1,'Alice')`)

	table := e.tables["users"]
	var rowID pager.RowID
	var found bool
	if err := table.Scan(func(id pager.RowID, v heap.Version) (bool, error) {
		rowID = id
		found = true
		return false, nil
	}); err != nil || !found {
		t.Fatalf("expected to find the inserted row: found=%v err=%v", found, err)
	}

	mustExec(t, e, `BEGIN`)

	concurrentDeleter, _ := e.txns.Begin()
	if err := e.txns.Commit(concurrentDeleter); err != nil {
		t.Fatalf("commit concurrent deleter: %v", err)
	}
	v, _, err := table.Get(rowID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	v.XMax = uint64(concurrentDeleter)
	if err := table.UpdateInPlace(rowID, v); err != nil {
		t.Fatalf("simulate concurrent delete: %v", err)
	}

	_, err = e.Execute(`DELETE FROM users WHERE id = 1`)
	if err == nil {
		t.Fatalf("expected write-conflict error")
	}
	engineErr, ok := err.(*Error)
	if !ok || engineErr.Kind != KindWriteConflict {
		t.Fatalf("expected KindWriteConflict, got %v", err)
	}
	if e.inTxn {
		t.Fatalf("expected the transaction to be aborted (no longer active) after a write conflict")
	}
}

func TestScenarioVacuumReclaimsDeadVersions(t *testing.T) {
	e := newTestEngine(t)
	mustExec(t, e, `CREATE TABLE users(id INTEGER, name VARCHAR)`)

	// Live row.
	mustExec(t, e, `INSERT INTO users VALUES (1,'Live')`)

	// Row whose xmin aborts.
	mustExec(t, e, `BEGIN`)
	mustExec(t, e, `INSERT INTO users VALUES (2,'Aborted')`)
	mustExec(t, e, `ROLLBACK`)

	// Row that is inserted then deleted (both committed).
	mustExec(t, e, `INSERT INTO users VALUES (3,'DeletedLater')`)
	mustExec(t, e, `DELETE FROM users WHERE id = 3`)

	res := mustExec(t, e, `.vacuum users`)
	if res.RowsAffected != 2 {
		t.Fatalf("expected vacuum to reclaim 2 row versions, got %d", res.RowsAffected)
	}

	remaining := mustExec(t, e, `SELECT * FROM users`)
	if len(remaining.Rows) != 1 || remaining.Rows[0][1].Str != "Live" {
		t.Fatalf("expected only the live row to remain, got %v", remaining.Rows)
	}
}

// Running vacuum twice in a row reclaims nothing the second time.
func TestVacuumIdempotence(t *testing.T) {
	e := newTestEngine(t)
	mustExec(t, e, `CREATE TABLE users(id INTEGER, name VARCHAR)`)
	mustExec(t, e, `INSERT INTO users VALUES (1,'Live')`)
	mustExec(t, e, `BEGIN`)
	mustExec(t, e, `INSERT INTO users VALUES (2,'Aborted')`)
	mustExec(t, e, `ROLLBACK`)

	first := mustExec(t, e, `.vacuum users`)
	second := mustExec(t, e, `.vacuum users`)
	if second.RowsAffected != 0 {
		t.Fatalf("expected second vacuum to reclaim nothing, got %d", second.RowsAffected)
	}
	if first.RowsAffected != 1 {
		t.Fatalf("expected first vacuum to reclaim 1 row version, got %d", first.RowsAffected)
	}
}

func TestReadYourOwnWritesWithinATransaction(t *testing.T) {
	e := newTestEngine(t)
	mustExec(t, e, `CREATE TABLE users(id INTEGER, name VARCHAR)`)

	mustExec(t, e, `BEGIN`)
	mustExec(t, e, `INSERT INTO users VALUES (1,'Alice')`)
	res := mustExec(t, e, `SELECT * FROM users WHERE id = 1`)
	if len(res.Rows) != 1 {
		t.Fatalf("expected own uncommitted write to be visible within the same transaction, got %d rows", len(res.Rows))
	}
	mustExec(t, e, `COMMIT`)
}

func TestBeginNestedIsAnError(t *testing.T) {
	e := newTestEngine(t)
	mustExec(t, e, `BEGIN`)
	if _, err := e.Execute(`BEGIN`); err == nil {
		t.Fatalf("expected nested BEGIN to fail")
	}
	mustExec(t, e, `ROLLBACK`)
}

func TestCommitWithoutActiveTransactionIsAnError(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Execute(`COMMIT`); err == nil {
		t.Fatalf("expected COMMIT without BEGIN to fail")
	}
}

func TestUpdateGrowthInsertsNewVersionAndTombstonesOld(t *testing.T) {
	e := newTestEngine(t)
	mustExec(t, e, `CREATE TABLE users(id INTEGER, name VARCHAR)`)
	mustExec(t, e, `INSERT INTO users VALUES (1,'A')`)
	mustExec(t, e, `UPDATE users SET name = 'A much longer replacement name value' WHERE id = 1`)

	res := mustExec(t, e, `SELECT * FROM users WHERE id = 1`)
	if len(res.Rows) != 1 {
		t.Fatalf("expected exactly 1 visible row after grow-update, got %d", len(res.Rows))
	}
	if res.Rows[0][1].Str != "A much longer replacement name value" {
		t.Fatalf("expected updated value, got %q", res.Rows[0][1].Str)
	}
}

func TestJoinWithIndexedInnerSide(t *testing.T) {
	e := newTestEngine(t)
	mustExec(t, e, `CREATE TABLE orders(id INTEGER, user_id INTEGER)`)
	mustExec(t, e, `CREATE TABLE users(id INTEGER, name VARCHAR)`)
	mustExec(t, e, `INSERT INTO users VALUES (1,'Alice'),(2,'Bob')`)
	mustExec(t, e, `INSERT INTO orders VALUES (100,1),(101,2)`)
	mustExec(t, e, `CREATE INDEX idx_users_id ON users(id)`)

	res := mustExec(t, e, `SELECT * FROM orders o JOIN users u ON o.user_id = u.id`)
	if len(res.Rows) != 2 {
		t.Fatalf("expected 2 joined rows, got %d", len(res.Rows))
	}
}

func TestAlterTableRenameTableMovesFileAndCatalog(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, 64)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()
	mustExec(t, e, `CREATE TABLE users(id INTEGER, name VARCHAR)`)
	mustExec(t, e, `INSERT INTO users VALUES (1,'Alice')`)
	mustExec(t, e, `CREATE INDEX idx_users_id ON users(id)`)

	mustExec(t, e, `ALTER TABLE users RENAME TO people`)

	if _, err := e.Execute(`SELECT * FROM users`); err == nil {
		t.Fatalf("expected the old table name to be gone after rename")
	}
	res := mustExec(t, e, `SELECT * FROM people WHERE id = 1`)
	if len(res.Rows) != 1 || res.Rows[0][1].Str != "Alice" {
		t.Fatalf("expected the renamed table to serve the same rows, got %v", res.Rows)
	}
	if res.Plan != "Index scan" {
		t.Fatalf("expected the dependent index to still be usable after rename, got plan %q", res.Plan)
	}

	oldPath := filepath.Join(dir, "users.tbl")
	newPath := filepath.Join(dir, "people.tbl")
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatalf("expected old table file %q to be gone, stat err = %v", oldPath, err)
	}
	if _, err := os.Stat(newPath); err != nil {
		t.Fatalf("expected new table file %q to exist: %v", newPath, err)
	}
}

func TestForeignKeyViolationRejectsInsert(t *testing.T) {
	e := newTestEngine(t)
	mustExec(t, e, `CREATE TABLE users(id INTEGER PRIMARY KEY, name VARCHAR)`)
	mustExec(t, e, `CREATE TABLE orders(id INTEGER, user_id INTEGER REFERENCES users(id))`)
	mustExec(t, e, `INSERT INTO users VALUES (1,'Alice')`)

	if _, err := e.Execute(`INSERT INTO orders VALUES (100, 2)`); err == nil {
		t.Fatalf("expected a foreign key violation for a non-existent user_id")
	}
	mustExec(t, e, `INSERT INTO orders VALUES (101, 1)`)
	res := mustExec(t, e, `SELECT * FROM orders`)
	if len(res.Rows) != 1 {
		t.Fatalf("expected exactly the valid row to be inserted, got %d", len(res.Rows))
	}
}

func TestIndexSurvivesReopenAndIsUsedByThePlanner(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, 64)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	mustExec(t, e, `CREATE TABLE users(id INTEGER, name VARCHAR)`)
	mustExec(t, e, `INSERT INTO users VALUES (1,'Alice'),(2,'Bob')`)
	mustExec(t, e, `CREATE INDEX idx_users_id ON users(id)`)
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(dir, 64)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	res := mustExec(t, reopened, `SELECT * FROM users WHERE id = 2`)
	if len(res.Rows) != 1 || res.Rows[0][1].Str != "Bob" {
		t.Fatalf("expected the indexed row to survive reopen, got %v", res.Rows)
	}
	if res.Plan != "Index scan" {
		t.Fatalf("expected the reconstructed index to still be used by the planner, got plan %q", res.Plan)
	}
}

func TestDropIndexRemovesItAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, 64)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	mustExec(t, e, `CREATE TABLE users(id INTEGER, name VARCHAR)`)
	mustExec(t, e, `INSERT INTO users VALUES (1,'Alice')`)
	mustExec(t, e, `CREATE INDEX idx_users_id ON users(id)`)
	mustExec(t, e, `DROP INDEX idx_users_id`)
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(dir, 64)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	res := mustExec(t, reopened, `SELECT * FROM users WHERE id = 1`)
	if res.Plan == "Index scan" {
		t.Fatalf("expected the dropped index to stay dropped after reopen")
	}
}

// UPDATE and DELETE must remove the old B+Tree entry, not just the heap
// row version — otherwise a later CREATE INDEX-free index scan on the
// old key would still yield the stale RowID.
func TestUpdateAndDeleteRemoveBTreeIndexEntries(t *testing.T) {
	e := newTestEngine(t)
	mustExec(t, e, `CREATE TABLE users(id INTEGER, name VARCHAR)`)
	mustExec(t, e, `INSERT INTO users VALUES (1,'Alice'),(2,'Bob')`)
	mustExec(t, e, `CREATE INDEX idx_users_id ON users(id)`)

	mustExec(t, e, `UPDATE users SET id = 3 WHERE id = 1`)
	idx := e.indexes["idx_users_id"]
	if _, ok, err := idx.tree.Search(1); err != nil || ok {
		t.Fatalf("expected old key 1 to be gone from the B+Tree after UPDATE, found=%v err=%v", ok, err)
	}
	if _, ok, err := idx.tree.Search(3); err != nil || !ok {
		t.Fatalf("expected new key 3 to be present in the B+Tree after UPDATE, found=%v err=%v", ok, err)
	}

	mustExec(t, e, `DELETE FROM users WHERE id = 2`)
	if _, ok, err := idx.tree.Search(2); err != nil || ok {
		t.Fatalf("expected key 2 to be gone from the B+Tree after DELETE, found=%v err=%v", ok, err)
	}
}

func TestDropTableRemovesFileAndCatalogEntry(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, 64)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()
	mustExec(t, e, `CREATE TABLE temp(id INTEGER)`)
	mustExec(t, e, `DROP TABLE temp`)
	if _, err := e.Execute(`SELECT * FROM temp`); err == nil {
		t.Fatalf("expected SELECT on dropped table to fail")
	}
	path := filepath.Join(dir, "temp.tbl")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected table file %q to be removed, stat err = %v", path, err)
	}
}
