package engine

import (
	"fmt"

	"github.com/relstore/reldb/internal/heap"
	"github.com/relstore/reldb/internal/pager"
	"github.com/relstore/reldb/internal/sql"
	"github.com/relstore/reldb/internal/txn"
)

func (e *Engine) execVacuumStmt(stmt *sql.VacuumStmt) (*ResultSet, error) {
	reclaimed, err := e.vacuumTable(stmt.Table)
	if err != nil {
		return nil, err
	}
	return affectedResult(fmt.Sprintf("vacuum reclaimed %d row version(s)", reclaimed), reclaimed), nil
}

// vacuumTable reclaims dead row versions from table: slots whose xmin
// belongs to an aborted transaction (never should have been visible to
// anyone) and slots whose xmax belongs to a committed transaction (a
// version superseded by a later UPDATE/DELETE that no in-flight snapshot
// can still see). A version is only reclaimed once no active transaction
// predates its xmax, so a long-running reader never loses a row version
// out from under it.
func (e *Engine) vacuumTable(table string) (int64, error) {
	t, ok := e.tables[table]
	if !ok {
		return 0, newErr(KindNotFound, "table %q not found", table)
	}
	schema := t.Schema

	oldestActive, hasActive := e.txns.OldestActive()

	var toDelete []pager.RowID
	scanErr := t.Scan(func(rowID pager.RowID, v heap.Version) (bool, error) {
		if e.txns.StatusOf(txn.ID(v.XMin)) == txn.StatusAborted {
			toDelete = append(toDelete, rowID)
			return true, nil
		}
		if v.XMax == 0 {
			return true, nil
		}
		if e.txns.StatusOf(txn.ID(v.XMax)) != txn.StatusCommitted {
			return true, nil
		}
		if hasActive && uint64(oldestActive) <= v.XMax {
			return true, nil
		}
		toDelete = append(toDelete, rowID)
		return true, nil
	})
	if scanErr != nil {
		return 0, wrapErr(KindIO, scanErr, "vacuum %q", table)
	}

	for _, rowID := range toDelete {
		if v, found, err := t.Get(rowID); err == nil && found {
			e.removeFromIndexes(table, schema, rowID, v.Values)
		}
		if err := t.Delete(rowID); err != nil {
			return 0, wrapErr(KindIO, err, "vacuum %q", table)
		}
	}
	if err := t.Flush(); err != nil {
		return 0, wrapErr(KindIO, err, "vacuum %q", table)
	}
	return int64(len(toDelete)), nil
}
