package engine

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/relstore/reldb/internal/sql"
	"github.com/relstore/reldb/internal/storage"
	"github.com/relstore/reldb/internal/types"
)

// projectGrouped handles SELECT with GROUP BY and/or aggregate functions:
// rows are bucketed by their GROUP BY key, each aggregate expression is
// folded over its bucket, HAVING filters the buckets, and the remaining
// pipeline (ORDER BY/LIMIT/OFFSET/DISTINCT) runs over the one row per
// group that results.
func (e *Engine) projectGrouped(stmt *sql.SelectStmt, rows []row) (*ResultSet, error) {
	type group struct {
		key  []types.Value
		rows []row
	}
	var groups []*group
	index := make(map[string]*group)

	for _, r := range rows {
		key := make([]types.Value, len(stmt.GroupBy))
		for i, col := range stmt.GroupBy {
			v, ok := r.get(col)
			if !ok {
				return nil, newErr(KindSchemaViolation, "GROUP BY column %q not found", col)
			}
			key[i] = v
		}
		sig := groupKeySignature(key)
		g, ok := index[sig]
		if !ok {
			g = &group{key: key}
			index[sig] = g
			groups = append(groups, g)
		}
		g.rows = append(g.rows, r)
	}
	if len(groups) == 0 && len(stmt.GroupBy) == 0 {
		// An aggregate with no GROUP BY still produces exactly one row,
		// even over zero input rows (e.g. COUNT(*) over an empty table).
		groups = append(groups, &group{})
	}

	header := make([]string, len(stmt.Columns))
	for i, item := range stmt.Columns {
		if item.Star {
			return nil, newErr(KindSchemaViolation, "SELECT * cannot be combined with GROUP BY or aggregates")
		}
		if item.Alias != "" {
			header[i] = item.Alias
		} else {
			header[i] = describeExpr(item.Expr)
		}
	}

	var out [][]types.Value
	for _, g := range groups {
		tuple := make([]types.Value, len(stmt.Columns))
		for i, item := range stmt.Columns {
			v, err := evalGroupExpr(item.Expr, g.rows)
			if err != nil {
				return nil, wrapErr(KindSchemaViolation, err, "select")
			}
			tuple[i] = v
		}
		if stmt.Having != nil {
			havingRow := newRow()
			for i, h := range header {
				havingRow.add(h, tuple[i])
			}
			ok, err := evalGroupHaving(stmt.Having, g.rows, havingRow)
			if err != nil {
				return nil, wrapErr(KindSchemaViolation, err, "having")
			}
			if !ok {
				continue
			}
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

func groupKeySignature(key []types.Value) string {
	var b strings.Builder
	for _, v := range key {
		b.WriteString(v.Kind.String())
		b.WriteByte(':')
		b.WriteString(v.String())
		b.WriteByte('|')
	}
	return b.String()
}

// evalGroupExpr evaluates a single SELECT item against a group: aggregate
// calls fold over every row in the group, and plain expressions are
// evaluated against the group's first row (valid when the expression is
// one of the GROUP BY columns, which is the only case SQL permits here).
func evalGroupExpr(expr *sql.Expr, groupRows []row) (types.Value, error) {
	if expr.Kind != sql.ExprFuncCall {
		if len(groupRows) == 0 {
			return types.Null(), nil
		}
		return evalExpr(expr, groupRows[0])
	}
	return evalAggregate(expr, groupRows)
}

func evalGroupHaving(expr *sql.Expr, groupRows []row, projected row) (bool, error) {
	v, err := evalHavingExpr(expr, groupRows, projected)
	if err != nil {
		return false, err
	}
	return !v.IsNull() && v.Bool, nil
}

// evalHavingExpr walks a HAVING predicate, resolving any aggregate calls
// against the whole group and any bare column reference against the
// already-projected row (so `HAVING total > 10` can refer to a SELECT
// alias as well as a raw aggregate).
func evalHavingExpr(expr *sql.Expr, groupRows []row, projected row) (types.Value, error) {
	if expr == nil {
		return types.Boolean(true), nil
	}
	switch expr.Kind {
	case sql.ExprFuncCall:
		return evalAggregate(expr, groupRows)
	case sql.ExprColumn:
		if v, ok := projected.get(expr.Column); ok {
			return v, nil
		}
		if len(groupRows) > 0 {
			return evalExpr(expr, groupRows[0])
		}
		return types.Null(), nil
	case sql.ExprLiteral:
		return expr.Literal, nil
	case sql.ExprNot:
		v, err := evalHavingExpr(expr.Operand, groupRows, projected)
		if err != nil {
			return types.Value{}, err
		}
		if v.IsNull() {
			return types.Null(), nil
		}
		return types.Boolean(!v.Bool), nil
	case sql.ExprBinary:
		left, err := evalHavingExpr(expr.Left, groupRows, projected)
		if err != nil {
			return types.Value{}, err
		}
		right, err := evalHavingExpr(expr.Right, groupRows, projected)
		if err != nil {
			return types.Value{}, err
		}
		return applyBinaryOp(expr.Op, left, right)
	default:
		return types.Value{}, fmt.Errorf("unhandled HAVING expression kind %d", expr.Kind)
	}
}

func applyBinaryOp(op sql.BinaryOp, left, right types.Value) (types.Value, error) {
	if op == sql.OpAnd || op == sql.OpOr {
		if left.IsNull() || right.IsNull() {
			return types.Null(), nil
		}
		if op == sql.OpAnd {
			return types.Boolean(left.Bool && right.Bool), nil
		}
		return types.Boolean(left.Bool || right.Bool), nil
	}
	if left.IsNull() || right.IsNull() {
		return types.Null(), nil
	}
	cmp := types.Compare(left, right)
	switch op {
	case sql.OpEq:
		return types.Boolean(cmp == 0), nil
	case sql.OpNotEq:
		return types.Boolean(cmp != 0), nil
	case sql.OpLt:
		return types.Boolean(cmp < 0), nil
	case sql.OpLtEq:
		return types.Boolean(cmp <= 0), nil
	case sql.OpGt:
		return types.Boolean(cmp > 0), nil
	case sql.OpGtEq:
		return types.Boolean(cmp >= 0), nil
	default:
		return types.Value{}, fmt.Errorf("unhandled binary operator %d", op)
	}
}

func evalAggregate(expr *sql.Expr, groupRows []row) (types.Value, error) {
	name := strings.ToUpper(expr.FuncName)
	if len(expr.Args) != 1 {
		return types.Value{}, fmt.Errorf("%s takes exactly one argument", name)
	}
	arg := expr.Args[0]

	if name == "COUNT" && arg.Kind == sql.ExprColumn && arg.Column == "*" {
		return types.Integer(int64(len(groupRows))), nil
	}

	var nums []float64
	var decimals []*big.Rat
	allDecimal := true
	nonNull := 0
	for _, r := range groupRows {
		v, err := evalExpr(arg, r)
		if err != nil {
			return types.Value{}, err
		}
		if v.IsNull() {
			continue
		}
		nonNull++
		if v.Kind == types.KindDecimal {
			if rat, ok := storage.AsBigRat(v.Decimal); ok {
				decimals = append(decimals, rat)
			}
		} else {
			allDecimal = false
		}
		if f, ok := numericValue(v); ok {
			nums = append(nums, f)
		}
	}
	useDecimal := allDecimal && len(decimals) == nonNull && nonNull > 0

	switch name {
	case "COUNT":
		return types.Integer(int64(nonNull)), nil
	case "SUM":
		if useDecimal {
			sum, err := sumDecimals(decimals)
			if err != nil {
				return types.Value{}, err
			}
			return types.DecimalValue(sum), nil
		}
		var sum float64
		for _, f := range nums {
			sum += f
		}
		return types.Float(sum), nil
	case "AVG":
		if len(nums) == 0 {
			return types.Null(), nil
		}
		if useDecimal {
			sum, err := sumDecimals(decimals)
			if err != nil {
				return types.Value{}, err
			}
			avg := new(big.Rat).Quo(sum, big.NewRat(int64(len(decimals)), 1))
			return types.DecimalValue(avg), nil
		}
		var sum float64
		for _, f := range nums {
			sum += f
		}
		return types.Float(sum / float64(len(nums))), nil
	case "MIN":
		return extreme(groupRows, arg, false)
	case "MAX":
		return extreme(groupRows, arg, true)
	default:
		return types.Value{}, fmt.Errorf("unknown aggregate function %s", name)
	}
}

// sumDecimals folds a/b pairs through storage.DecimalAdd so DECIMAL
// columns accumulate exactly instead of drifting through a float64
// round trip.
func sumDecimals(rats []*big.Rat) (*big.Rat, error) {
	sum := big.NewRat(0, 1)
	for _, r := range rats {
		next, err := storage.DecimalAdd(sum, r)
		if err != nil {
			return nil, err
		}
		sum = next
	}
	return sum, nil
}

func numericValue(v types.Value) (float64, bool) {
	switch v.Kind {
	case types.KindInteger:
		return float64(v.Int), true
	case types.KindUnsigned:
		return float64(v.Uint), true
	case types.KindFloat:
		return v.Float, true
	case types.KindDecimal:
		if v.Decimal == nil {
			return 0, true
		}
		f, _ := v.Decimal.Float64()
		return f, true
	default:
		return 0, false
	}
}

func extreme(groupRows []row, arg *sql.Expr, max bool) (types.Value, error) {
	var best types.Value
	found := false
	for _, r := range groupRows {
		v, err := evalExpr(arg, r)
		if err != nil {
			return types.Value{}, err
		}
		if v.IsNull() {
			continue
		}
		if !found {
			best, found = v, true
			continue
		}
		cmp := types.Compare(v, best)
		if (max && cmp > 0) || (!max && cmp < 0) {
			best = v
		}
	}
	if !found {
		return types.Null(), nil
	}
	return best, nil
}
