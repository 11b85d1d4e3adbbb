package engine

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/relstore/reldb/internal/heap"
	"github.com/relstore/reldb/internal/pager"
	"github.com/relstore/reldb/internal/sql"
	"github.com/relstore/reldb/internal/txn"
	"github.com/relstore/reldb/internal/types"
)

func buildRow(schema types.Schema, alias string, values []types.Value) row {
	r := newRow()
	for i, c := range schema.Columns {
		r.add(c.Name, values[i])
		if alias != "" {
			r.add(alias+"."+c.Name, values[i])
		}
	}
	return r
}

func mergeRows(a, b row) row {
	r := newRow()
	r.names = append(append([]string{}, a.names...), b.names...)
	r.values = append(append([]types.Value{}, a.values...), b.values...)
	return r
}

func (e *Engine) execSelect(stmt *sql.SelectStmt) (*ResultSet, error) {
	t, ok := e.tables[stmt.Table]
	if !ok {
		return nil, newErr(KindNotFound, "table %q not found", stmt.Table)
	}
	leftAlias := stmt.Alias
	if leftAlias == "" {
		leftAlias = stmt.Table
	}

	id, snap, autocommit := e.activeTxn()

	var (
		rows []row
		plan scanPlan
	)
	var err error
	if stmt.Join == nil {
		plan = e.choosePlan(stmt.Table, stmt.Where)
		rows, err = e.scanTableRows(t, t.Schema, leftAlias, snap, id, plan, stmt.Where)
	} else {
		rows, plan, err = e.execJoin(t, leftAlias, stmt, snap, id)
	}
	if err != nil {
		e.finishAuto(autocommit, id, true)
		return nil, wrapErr(KindIO, err, "select from %q", stmt.Table)
	}

	result, err := e.project(stmt, rows)
	if err != nil {
		e.finishAuto(autocommit, id, true)
		return nil, err
	}
	result.Plan = plan.describe

	if err := e.finishAuto(autocommit, id, false); err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) scanTableRows(t *heap.Table, schema types.Schema, alias string, snap txn.Snapshot, self txn.ID, plan scanPlan, filter *sql.Expr) ([]row, error) {
	var out []row
	visit := func(id pager.RowID, v heap.Version) (bool, error) {
		if !snap.Visible(v.XMin, v.XMax, self) {
			return true, nil
		}
		r := buildRow(schema, alias, v.Values)
		ok, err := matches(filter, r)
		if err != nil {
			return false, err
		}
		if ok {
			out = append(out, r)
		}
		return true, nil
	}

	if !plan.useIndex {
		if err := t.Scan(visit); err != nil {
			return nil, err
		}
		return out, nil
	}

	idx := e.indexes[plan.index.Name]
	var rowIDs []pager.RowID
	switch {
	case idx.hash != nil:
		rowIDs = idx.hash.Get(plan.key)
	case plan.equality:
		if rid, found, err := idx.tree.Search(plan.key); err != nil {
			return nil, err
		} else if found {
			rowIDs = []pager.RowID{rid}
		}
	default:
		lo, hi := int64(math.MinInt64), int64(math.MaxInt64)
		if plan.hasLow {
			lo = plan.lowKey
		}
		if plan.hasHigh {
			hi = plan.highKey
		}
		entries, err := idx.tree.RangeScan(lo, hi)
		if err != nil {
			return nil, err
		}
		for _, en := range entries {
			rowIDs = append(rowIDs, en.Value)
		}
	}

	for _, rid := range rowIDs {
		v, found, err := t.Get(rid)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		cont, err := visit(rid, v)
		if err != nil {
			return nil, err
		}
		if !cont {
			break
		}
	}
	return out, nil
}

// execJoin evaluates a single JOIN clause against the base table's rows,
// driving the outer loop from whichever side chooseJoinPlan decides lacks
// a usable index, and probing the other side per outer row.
func (e *Engine) execJoin(left *heap.Table, leftAlias string, stmt *sql.SelectStmt, snap txn.Snapshot, self txn.ID) ([]row, scanPlan, error) {
	join := stmt.Join
	rightAlias := join.Alias
	if rightAlias == "" {
		rightAlias = join.Table
	}
	right, ok := e.tables[join.Table]
	if !ok {
		return nil, scanPlan{}, fmt.Errorf("table %q not found", join.Table)
	}

	innerIsRight, idx := e.chooseJoinPlan(stmt.Table, join)
	describe := "Nested loop join (no index)"
	if idx != nil {
		describe = "Nested loop join, indexed inner (" + idx.Name + ")"
	}
	plan := scanPlan{describe: describe}

	outerTable, outerSchema, outerAlias := left, left.Schema, leftAlias
	innerTable, innerSchema, innerAlias := right, right.Schema, rightAlias
	if !innerIsRight {
		outerTable, outerSchema, outerAlias = right, right.Schema, rightAlias
		innerTable, innerSchema, innerAlias = left, left.Schema, leftAlias
	}

	outerRows, err := e.scanTableRows(outerTable, outerSchema, outerAlias, snap, self, scanPlan{}, nil)
	if err != nil {
		return nil, plan, err
	}

	_, _, hasJoinCol := joinEqualityColumns(join.On)

	var combined []row
	for _, outerRow := range outerRows {
		var innerRows []row
		if idx != nil && hasJoinCol {
			joinVal, ok := outerJoinValue(join.On, outerRow, innerIsRight)
			if ok {
				key, ok := valueToKey(joinVal)
				if ok {
					ip := scanPlan{useIndex: true, index: idx, equality: true, key: key}
					innerRows, err = e.scanTableRows(innerTable, innerSchema, innerAlias, snap, self, ip, nil)
					if err != nil {
						return nil, plan, err
					}
				}
			}
		} else {
			innerRows, err = e.scanTableRows(innerTable, innerSchema, innerAlias, snap, self, scanPlan{}, nil)
			if err != nil {
				return nil, plan, err
			}
		}

		matchedAny := false
		for _, innerRow := range innerRows {
			var combinedRow row
			if innerIsRight {
				combinedRow = mergeRows(outerRow, innerRow)
			} else {
				combinedRow = mergeRows(innerRow, outerRow)
			}
			ok, err := matches(join.On, combinedRow)
			if err != nil {
				return nil, plan, err
			}
			if !ok {
				continue
			}
			ok, err = matches(stmt.Where, combinedRow)
			if err != nil {
				return nil, plan, err
			}
			if !ok {
				continue
			}
			combined = append(combined, combinedRow)
			matchedAny = true
		}
		if !matchedAny && join.Left {
			var combinedRow row
			nullInner := nullRow(innerSchema, innerAlias)
			if innerIsRight {
				combinedRow = mergeRows(outerRow, nullInner)
			} else {
				combinedRow = mergeRows(nullInner, outerRow)
			}
			if ok, err := matches(stmt.Where, combinedRow); err == nil && ok {
				combined = append(combined, combinedRow)
			}
		}
	}
	return combined, plan, nil
}

func nullRow(schema types.Schema, alias string) row {
	values := make([]types.Value, len(schema.Columns))
	for i := range values {
		values[i] = types.Null()
	}
	return buildRow(schema, alias, values)
}

// outerJoinValue pulls the join column's value out of the already-built
// outer row so an indexed inner probe can use it as a lookup key.
func outerJoinValue(on *sql.Expr, outerRow row, innerIsRight bool) (types.Value, bool) {
	outerExpr := on.Right
	if innerIsRight {
		outerExpr = on.Left
	}
	return outerRow.get(outerExpr.Column)
}

// project evaluates the select list for every row, then applies DISTINCT,
// ORDER BY and LIMIT/OFFSET, in that order. A query with GROUP BY or an
// aggregate is handed to projectGrouped instead, which does the grouping,
// the aggregates and HAVING.
func (e *Engine) project(stmt *sql.SelectStmt, rows []row) (*ResultSet, error) {
	if len(stmt.GroupBy) > 0 || hasAggregate(stmt.Columns) {
		return e.projectGrouped(stmt, rows)
	}

	header, err := resolveProjection(stmt.Columns, rows)
	if err != nil {
		return nil, wrapErr(KindSchemaViolation, err, "select")
	}

	out := make([][]types.Value, 0, len(rows))
	for _, r := range rows {
		tuple, err := projectRow(stmt.Columns, r)
		if err != nil {
			return nil, wrapErr(KindSchemaViolation, err, "select")
		}
		out = append(out, tuple)
	}

	if stmt.Distinct {
		out = dedupe(out)
	}
	if len(stmt.OrderBy) > 0 {
		if err := orderTuples(out, header, stmt.OrderBy); err != nil {
			return nil, wrapErr(KindSchemaViolation, err, "order by")
		}
	}
	out = applyLimitOffset(out, stmt.Limit, stmt.Offset)

	return &ResultSet{Columns: header, Rows: out}, nil
}

func projectRow(items []sql.SelectItem, r row) ([]types.Value, error) {
	var out []types.Value
	for _, item := range items {
		if item.Star {
			out = append(out, r.values...)
			continue
		}
		v, err := evalExpr(item.Expr, r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func resolveProjection(items []sql.SelectItem, rows []row) ([]string, error) {
	var header []string
	for _, item := range items {
		if item.Star {
			if len(rows) > 0 {
				header = append(header, rows[0].names[:starWidth(rows[0])]...)
			}
			continue
		}
		name := item.Alias
		if name == "" {
			name = describeExpr(item.Expr)
		}
		header = append(header, name)
	}
	return header, nil
}

// starWidth reports how many of a row's leading entries are bare (un-
// qualified) column names, since buildRow appends both the bare and the
// alias-qualified form for every column.
func starWidth(r row) int {
	width := 0
	for _, n := range r.names {
		if !strings.Contains(n, ".") {
			width++
		}
	}
	return width
}

func describeExpr(e *sql.Expr) string {
	switch e.Kind {
	case sql.ExprColumn:
		return e.Column
	case sql.ExprFuncCall:
		return e.FuncName + "(...)"
	case sql.ExprLiteral:
		return e.Literal.String()
	default:
		return "expr"
	}
}

func dedupe(rows [][]types.Value) [][]types.Value {
	out := make([][]types.Value, 0, len(rows))
	for _, r := range rows {
		dup := false
		for _, seen := range out {
			if tupleEqual(r, seen) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, r)
		}
	}
	return out
}

func tupleEqual(a, b []types.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !types.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

func orderTuples(rows [][]types.Value, header []string, terms []sql.OrderTerm) error {
	idxs := make([]int, len(terms))
	for i, t := range terms {
		pos := -1
		for j, h := range header {
			if h == t.Column {
				pos = j
				break
			}
		}
		if pos < 0 {
			return fmt.Errorf("ORDER BY column %q not in result set", t.Column)
		}
		idxs[i] = pos
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for k, t := range terms {
			cmp := types.Compare(rows[i][idxs[k]], rows[j][idxs[k]])
			if cmp == 0 {
				continue
			}
			if t.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	return nil
}

func applyLimitOffset(rows [][]types.Value, limit, offset *int64) [][]types.Value {
	if offset != nil {
		o := int(*offset)
		if o >= len(rows) {
			return nil
		}
		if o > 0 {
			rows = rows[o:]
		}
	}
	if limit != nil {
		l := int(*limit)
		if l < len(rows) {
			rows = rows[:l]
		}
	}
	return rows
}

func hasAggregate(items []sql.SelectItem) bool {
	for _, item := range items {
		if item.Expr != nil && item.Expr.Kind == sql.ExprFuncCall {
			return true
		}
	}
	return false
}
