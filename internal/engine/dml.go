package engine

import (
	"fmt"

	"github.com/relstore/reldb/internal/heap"
	"github.com/relstore/reldb/internal/pager"
	"github.com/relstore/reldb/internal/sql"
	"github.com/relstore/reldb/internal/types"
	"github.com/relstore/reldb/internal/walog"
)

func (e *Engine) execInsert(stmt *sql.InsertStmt) (*ResultSet, error) {
	t, ok := e.tables[stmt.Table]
	if !ok {
		return nil, newErr(KindNotFound, "table %q not found", stmt.Table)
	}
	schema := t.Schema
	positions, err := columnPositions(schema, stmt.Columns)
	if err != nil {
		return nil, wrapErr(KindSchemaViolation, err, "insert into %q", stmt.Table)
	}

	id, snap, autocommit := e.activeTxn()
	empty := newRow()

	var inserted int64
	for _, exprRow := range stmt.Rows {
		if len(exprRow) != len(positions) {
			e.finishAuto(autocommit, id, true)
			return nil, newErr(KindSchemaViolation, "insert into %q: value count does not match column count", stmt.Table)
		}
		values := make([]types.Value, len(schema.Columns))
		for i := range values {
			values[i] = types.Null()
		}
		for i, expr := range exprRow {
			v, err := evalExpr(expr, empty)
			if err != nil {
				e.finishAuto(autocommit, id, true)
				return nil, wrapErr(KindSchemaViolation, err, "insert into %q", stmt.Table)
			}
			values[positions[i]] = v
		}
		if err := schema.ValidateRow(values); err != nil {
			e.finishAuto(autocommit, id, true)
			return nil, wrapErr(KindSchemaViolation, err, "insert into %q", stmt.Table)
		}
		if err := e.checkUniqueConstraints(t, schema, values, nil); err != nil {
			e.finishAuto(autocommit, id, true)
			return nil, err
		}
		if err := e.checkForeignKeys(schema, values); err != nil {
			e.finishAuto(autocommit, id, true)
			return nil, err
		}

		rowID, err := t.Insert(heap.Version{XMin: uint64(id), XMax: 0, Values: values})
		if err != nil {
			e.finishAuto(autocommit, id, true)
			return nil, wrapErr(KindIO, err, "insert into %q", stmt.Table)
		}
		if err := e.wal.Append(walog.Insert(walog.TxnID(id), stmt.Table, rowID, values)); err != nil {
			e.finishAuto(autocommit, id, true)
			return nil, wrapErr(KindIO, err, "append insert record")
		}
		e.addToIndexes(stmt.Table, schema, rowID, values)
		inserted++
	}
	_ = snap

	if err := e.finishAuto(autocommit, id, false); err != nil {
		return nil, err
	}
	return affectedResult(fmt.Sprintf("%d row(s) inserted", inserted), inserted), nil
}

func (e *Engine) execUpdate(stmt *sql.UpdateStmt) (*ResultSet, error) {
	t, ok := e.tables[stmt.Table]
	if !ok {
		return nil, newErr(KindNotFound, "table %q not found", stmt.Table)
	}
	schema := t.Schema
	id, snap, autocommit := e.activeTxn()

	type target struct {
		rowID pager.RowID
		old   heap.Version
	}
	var targets []target
	scanErr := t.Scan(func(rowID pager.RowID, v heap.Version) (bool, error) {
		if !snap.Visible(v.XMin, v.XMax, id) {
			return true, nil
		}
		ok, err := matches(stmt.Where, rowFromTuple(schema, v.Values))
		if err != nil {
			return false, err
		}
		if ok {
			targets = append(targets, target{rowID: rowID, old: v})
		}
		return true, nil
	})
	if scanErr != nil {
		e.finishAuto(autocommit, id, true)
		return nil, wrapErr(KindIO, scanErr, "update %q", stmt.Table)
	}

	var affected int64
	for _, tgt := range targets {
		if tgt.old.XMax != 0 && tgt.old.XMax != uint64(id) {
			e.abortOnWriteConflict(autocommit, id)
			return nil, newErr(KindWriteConflict, "row %s was modified by another transaction", tgt.rowID)
		}

		newValues := make([]types.Value, len(tgt.old.Values))
		copy(newValues, tgt.old.Values)
		r := rowFromTuple(schema, tgt.old.Values)
		for _, asn := range stmt.Assignments {
			idx, _, ok := schema.FindColumn(asn.Column)
			if !ok {
				e.finishAuto(autocommit, id, true)
				return nil, newErr(KindSchemaViolation, "column %q not found on table %q", asn.Column, stmt.Table)
			}
			v, err := evalExpr(asn.Value, r)
			if err != nil {
				e.finishAuto(autocommit, id, true)
				return nil, wrapErr(KindSchemaViolation, err, "update %q", stmt.Table)
			}
			newValues[idx] = v
		}
		if err := schema.ValidateRow(newValues); err != nil {
			e.finishAuto(autocommit, id, true)
			return nil, wrapErr(KindSchemaViolation, err, "update %q", stmt.Table)
		}
		if err := e.checkUniqueConstraints(t, schema, newValues, &tgt.rowID); err != nil {
			e.finishAuto(autocommit, id, true)
			return nil, err
		}
		if err := e.checkForeignKeys(schema, newValues); err != nil {
			e.finishAuto(autocommit, id, true)
			return nil, err
		}

		deleted := tgt.old
		deleted.XMax = uint64(id)
		if err := t.UpdateInPlace(tgt.rowID, deleted); err != nil {
			e.finishAuto(autocommit, id, true)
			return nil, wrapErr(KindIO, err, "update %q", stmt.Table)
		}
		newRowID, err := t.Insert(heap.Version{XMin: uint64(id), XMax: 0, Values: newValues})
		if err != nil {
			e.finishAuto(autocommit, id, true)
			return nil, wrapErr(KindIO, err, "update %q", stmt.Table)
		}
		if err := e.wal.Append(walog.Update(walog.TxnID(id), stmt.Table, tgt.rowID, tgt.old.Values, newValues)); err != nil {
			e.finishAuto(autocommit, id, true)
			return nil, wrapErr(KindIO, err, "append update record")
		}
		e.removeFromIndexes(stmt.Table, schema, tgt.rowID, tgt.old.Values)
		e.addToIndexes(stmt.Table, schema, newRowID, newValues)
		affected++
	}

	if err := e.finishAuto(autocommit, id, false); err != nil {
		return nil, err
	}
	return affectedResult(fmt.Sprintf("%d row(s) updated", affected), affected), nil
}

func (e *Engine) execDelete(stmt *sql.DeleteStmt) (*ResultSet, error) {
	t, ok := e.tables[stmt.Table]
	if !ok {
		return nil, newErr(KindNotFound, "table %q not found", stmt.Table)
	}
	schema := t.Schema
	id, snap, autocommit := e.activeTxn()

	type target struct {
		rowID pager.RowID
		old   heap.Version
	}
	var targets []target
	scanErr := t.Scan(func(rowID pager.RowID, v heap.Version) (bool, error) {
		if !snap.Visible(v.XMin, v.XMax, id) {
			return true, nil
		}
		ok, err := matches(stmt.Where, rowFromTuple(schema, v.Values))
		if err != nil {
			return false, err
		}
		if ok {
			targets = append(targets, target{rowID: rowID, old: v})
		}
		return true, nil
	})
	if scanErr != nil {
		e.finishAuto(autocommit, id, true)
		return nil, wrapErr(KindIO, scanErr, "delete from %q", stmt.Table)
	}

	var affected int64
	for _, tgt := range targets {
		if tgt.old.XMax != 0 && tgt.old.XMax != uint64(id) {
			e.abortOnWriteConflict(autocommit, id)
			return nil, newErr(KindWriteConflict, "row %s was modified by another transaction", tgt.rowID)
		}
		deleted := tgt.old
		deleted.XMax = uint64(id)
		if err := t.UpdateInPlace(tgt.rowID, deleted); err != nil {
			e.finishAuto(autocommit, id, true)
			return nil, wrapErr(KindIO, err, "delete from %q", stmt.Table)
		}
		if err := e.wal.Append(walog.Delete(walog.TxnID(id), stmt.Table, tgt.rowID, tgt.old.Values)); err != nil {
			e.finishAuto(autocommit, id, true)
			return nil, wrapErr(KindIO, err, "append delete record")
		}
		e.removeFromIndexes(stmt.Table, schema, tgt.rowID, tgt.old.Values)
		affected++
	}

	if err := e.finishAuto(autocommit, id, false); err != nil {
		return nil, err
	}
	return affectedResult(fmt.Sprintf("%d row(s) deleted", affected), affected), nil
}

// columnPositions maps an INSERT's explicit column list (or, if empty, the
// schema's own order) onto schema indices.
func columnPositions(schema types.Schema, columns []string) ([]int, error) {
	if len(columns) == 0 {
		positions := make([]int, len(schema.Columns))
		for i := range positions {
			positions[i] = i
		}
		return positions, nil
	}
	positions := make([]int, len(columns))
	for i, name := range columns {
		idx, _, ok := schema.FindColumn(name)
		if !ok {
			return nil, fmt.Errorf("unknown column %q", name)
		}
		positions[i] = idx
	}
	return positions, nil
}

// checkUniqueConstraints scans for an existing visible row whose PRIMARY
// KEY or UNIQUE column(s) collide with values. excludeRowID, when set, skips
// the row being updated so an UPDATE that leaves a unique value unchanged
// doesn't conflict with itself.
func (e *Engine) checkUniqueConstraints(t *heap.Table, schema types.Schema, values []types.Value, excludeRowID *pager.RowID) error {
	var uniqueCols []int
	for i, c := range schema.Columns {
		if c.Constraints.Has(types.ConstraintPrimaryKey) || c.Constraints.Has(types.ConstraintUnique) {
			uniqueCols = append(uniqueCols, i)
		}
	}
	if len(uniqueCols) == 0 {
		return nil
	}
	var conflict error
	_ = t.Scan(func(rowID pager.RowID, v heap.Version) (bool, error) {
		if excludeRowID != nil && rowID == *excludeRowID {
			return true, nil
		}
		if v.XMax != 0 {
			return true, nil
		}
		for _, idx := range uniqueCols {
			if !values[idx].IsNull() && types.Equal(values[idx], v.Values[idx]) {
				conflict = newErr(KindConstraintViolation, "duplicate value %s for unique column %q", values[idx], schema.Columns[idx].Name)
				return false, nil
			}
		}
		return true, nil
	})
	return conflict
}

// checkForeignKeys verifies every REFERENCES(table, column) constraint on
// schema: a non-null value in a referencing column must match some live
// (xmax == 0) row in the referenced table's referenced column.
func (e *Engine) checkForeignKeys(schema types.Schema, values []types.Value) error {
	for i, c := range schema.Columns {
		if c.References == nil || values[i].IsNull() {
			continue
		}
		ref := c.References
		target, ok := e.tables[ref.Table]
		if !ok {
			return newErr(KindConstraintViolation, "column %q references unknown table %q", c.Name, ref.Table)
		}
		refIdx, _, ok := target.Schema.FindColumn(ref.Column)
		if !ok {
			return newErr(KindConstraintViolation, "column %q references unknown column %q.%q", c.Name, ref.Table, ref.Column)
		}
		found := false
		_ = target.Scan(func(_ pager.RowID, v heap.Version) (bool, error) {
			if v.XMax != 0 {
				return true, nil
			}
			if types.Equal(v.Values[refIdx], values[i]) {
				found = true
				return false, nil
			}
			return true, nil
		})
		if !found {
			return newErr(KindConstraintViolation, "foreign key violation: %q=%s has no matching row in %q.%q", c.Name, values[i], ref.Table, ref.Column)
		}
	}
	return nil
}

func (e *Engine) addToIndexes(table string, schema types.Schema, rowID pager.RowID, values []types.Value) {
	for _, entry := range e.catalog.IndexesForTable(table) {
		idx, ok := e.indexes[entry.Name]
		if !ok {
			continue
		}
		colIdx, _, ok := schema.FindColumn(entry.Column)
		if !ok {
			continue
		}
		key, ok := valueToKey(values[colIdx])
		if !ok {
			continue
		}
		if idx.hash != nil {
			idx.hash.Insert(key, rowID)
		} else {
			_ = idx.tree.Insert(key, rowID)
		}
	}
}

func (e *Engine) removeFromIndexes(table string, schema types.Schema, rowID pager.RowID, values []types.Value) {
	for _, entry := range e.catalog.IndexesForTable(table) {
		idx, ok := e.indexes[entry.Name]
		if !ok {
			continue
		}
		colIdx, _, ok := schema.FindColumn(entry.Column)
		if !ok {
			continue
		}
		key, ok := valueToKey(values[colIdx])
		if !ok {
			continue
		}
		if idx.hash != nil {
			idx.hash.Delete(key, rowID)
		} else {
			_ = idx.tree.Delete(key)
		}
	}
}
