package engine

import (
	"fmt"
	"strings"

	"github.com/relstore/reldb/internal/sql"
	"github.com/relstore/reldb/internal/types"
)

// row is a single projected tuple the evaluator walks expressions over. It
// carries both the bare column name and, for joined queries, the
// table/alias-qualified form ("t.col") so a WHERE/ON/ORDER BY clause can
// disambiguate which side of a join a name refers to.
type row struct {
	names  []string
	values []types.Value
}

func newRow() row { return row{} }

func (r *row) add(name string, v types.Value) {
	r.names = append(r.names, name)
	r.values = append(r.values, v)
}

func (r row) get(name string) (types.Value, bool) {
	for i, n := range r.names {
		if n == name {
			return r.values[i], true
		}
	}
	return types.Value{}, false
}

func rowFromTuple(schema types.Schema, values []types.Value) row {
	r := newRow()
	for i, c := range schema.Columns {
		r.add(c.Name, values[i])
	}
	return r
}

// evalExpr evaluates expr against a single tuple. Aggregate function calls
// (COUNT/SUM/AVG/MIN/MAX) are not handled here — they are resolved by the
// grouping pass in aggregate.go before an expression tree reaches this
// function, since they need the whole group rather than one row.
func evalExpr(expr *sql.Expr, r row) (types.Value, error) {
	if expr == nil {
		return types.Boolean(true), nil
	}
	switch expr.Kind {
	case sql.ExprLiteral:
		return expr.Literal, nil
	case sql.ExprColumn:
		v, ok := r.get(expr.Column)
		if !ok {
			return types.Value{}, fmt.Errorf("unknown column %q", expr.Column)
		}
		return v, nil
	case sql.ExprNot:
		v, err := evalExpr(expr.Operand, r)
		if err != nil {
			return types.Value{}, err
		}
		if v.IsNull() {
			return types.Null(), nil
		}
		return types.Boolean(!v.Bool), nil
	case sql.ExprBinary:
		return evalBinary(expr, r)
	case sql.ExprFuncCall:
		return types.Value{}, fmt.Errorf("aggregate function %s used outside an aggregating query", expr.FuncName)
	default:
		return types.Value{}, fmt.Errorf("unhandled expression kind %d", expr.Kind)
	}
}

func evalBinary(expr *sql.Expr, r row) (types.Value, error) {
	if expr.Op == sql.OpAnd || expr.Op == sql.OpOr {
		left, err := evalExpr(expr.Left, r)
		if err != nil {
			return types.Value{}, err
		}
		// Three-valued logic: NULL propagates unless the other operand
		// alone decides the result (NULL AND false = false, NULL OR true = true).
		if expr.Op == sql.OpAnd {
			if !left.IsNull() && !left.Bool {
				return types.Boolean(false), nil
			}
		} else {
			if !left.IsNull() && left.Bool {
				return types.Boolean(true), nil
			}
		}
		right, err := evalExpr(expr.Right, r)
		if err != nil {
			return types.Value{}, err
		}
		if expr.Op == sql.OpAnd && !right.IsNull() && !right.Bool {
			return types.Boolean(false), nil
		}
		if expr.Op == sql.OpOr && !right.IsNull() && right.Bool {
			return types.Boolean(true), nil
		}
		if left.IsNull() || right.IsNull() {
			return types.Null(), nil
		}
		if expr.Op == sql.OpAnd {
			return types.Boolean(left.Bool && right.Bool), nil
		}
		return types.Boolean(left.Bool || right.Bool), nil
	}

	left, err := evalExpr(expr.Left, r)
	if err != nil {
		return types.Value{}, err
	}
	right, err := evalExpr(expr.Right, r)
	if err != nil {
		return types.Value{}, err
	}
	if left.IsNull() || right.IsNull() {
		return types.Null(), nil
	}
	cmp := types.Compare(left, right)
	switch expr.Op {
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
		return types.Value{}, fmt.Errorf("unhandled binary operator %d", expr.Op)
	}
}

// matches reports whether a row satisfies a WHERE/ON predicate.
// A NULL result (from unknown comparisons) is treated as non-matching,
// matching standard SQL three-valued-logic filtering.
func matches(expr *sql.Expr, r row) (bool, error) {
	if expr == nil {
		return true, nil
	}
	v, err := evalExpr(expr, r)
	if err != nil {
		return false, err
	}
	return !v.IsNull() && v.Bool, nil
}

// columnRef splits "alias.column" into its parts; bare names return ("", name).
func columnRef(name string) (prefix, col string) {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}
