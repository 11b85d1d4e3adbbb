package engine

import (
	"github.com/relstore/reldb/internal/catalog"
	"github.com/relstore/reldb/internal/sql"
)

// scanPlan names how a single table should be read, chosen by
// choosePlan's rules: an indexable equality/range predicate
// on an indexed column prefers an index scan over a full sequential scan.
// Every index covers a single column and only the first index registered
// on a column is considered; among the candidate predicates, equality on a
// hash index wins over equality or a range on a B+ tree, and a hash index
// is never used for a range. Composite indexes and key-prefix matching are
// not supported.
type scanPlan struct {
	useIndex bool
	index    *catalog.IndexEntry
	equality bool
	key      int64
	lowKey   int64
	highKey  int64
	hasLow   bool
	hasHigh  bool
	describe string
}

// choosePlan inspects a single-table WHERE clause for predicates over a
// column that carries an index, and picks between a sequential scan and an
// index scan. Only top-level equality/range comparisons against a bare
// column are considered indexable; anything inside OR, or comparing two
// columns, falls back to a sequential scan with the whole predicate
// evaluated per row.
func (e *Engine) choosePlan(table string, where *sql.Expr) scanPlan {
	preds := collectConjuncts(where)

	var bestIdx *catalog.IndexEntry
	var bestPred *sql.Expr
	bestScore := -1
	for _, p := range preds {
		col, ok := indexableColumn(p)
		if !ok {
			continue
		}
		idx, ok := e.catalog.IndexOnColumn(table, col)
		if !ok {
			continue
		}
		score := 1
		if p.Op == sql.OpEq {
			score = 2 // equality covers a single key; ranges cover a prefix of the tree
			if idx.Kind == catalog.IndexHash {
				score = 3 // pure equality is cheaper on a hash index than a tree
			}
		} else if idx.Kind == catalog.IndexBTree {
			score = 2 // ranges only make sense against an ordered tree
		} else {
			continue // a hash index cannot serve a range predicate
		}
		if score > bestScore {
			bestScore, bestIdx, bestPred = score, idx, p
		}
	}

	if bestIdx == nil {
		return scanPlan{describe: "Sequential scan"}
	}

	plan := scanPlan{useIndex: true, index: bestIdx, describe: "Index scan"}
	key, _ := valueToKey(bestPred.Right.Literal)
	switch bestPred.Op {
	case sql.OpEq:
		plan.key = key
		plan.equality = true
	case sql.OpLt, sql.OpLtEq:
		plan.hasHigh = true
		plan.highKey = key
		if bestPred.Op == sql.OpLt {
			plan.highKey--
		}
	case sql.OpGt, sql.OpGtEq:
		plan.hasLow = true
		plan.lowKey = key
		if bestPred.Op == sql.OpGt {
			plan.lowKey++
		}
	}
	return plan
}

// collectConjuncts flattens a tree of AND-connected predicates into a flat
// list; an OR anywhere stops decomposition below that point since it can't
// be turned into independent indexable predicates.
func collectConjuncts(e *sql.Expr) []*sql.Expr {
	if e == nil {
		return nil
	}
	if e.Kind == sql.ExprBinary && e.Op == sql.OpAnd {
		return append(collectConjuncts(e.Left), collectConjuncts(e.Right)...)
	}
	return []*sql.Expr{e}
}

// indexableColumn reports whether expr is `column OP literal` (or the
// mirror `literal OP column`, normalized so Left is always the column),
// returning the column name.
func indexableColumn(e *sql.Expr) (string, bool) {
	if e.Kind != sql.ExprBinary {
		return "", false
	}
	switch e.Op {
	case sql.OpEq, sql.OpNotEq, sql.OpLt, sql.OpLtEq, sql.OpGt, sql.OpGtEq:
	default:
		return "", false
	}
	if e.Left.Kind == sql.ExprColumn && e.Right.Kind == sql.ExprLiteral {
		return e.Left.Column, true
	}
	if e.Right.Kind == sql.ExprColumn && e.Left.Kind == sql.ExprLiteral {
		e.Left, e.Right = e.Right, e.Left
		e.Op = mirrorOp(e.Op)
		return e.Left.Column, true
	}
	return "", false
}

func mirrorOp(op sql.BinaryOp) sql.BinaryOp {
	switch op {
	case sql.OpLt:
		return sql.OpGt
	case sql.OpLtEq:
		return sql.OpGtEq
	case sql.OpGt:
		return sql.OpLt
	case sql.OpGtEq:
		return sql.OpLtEq
	default:
		return op
	}
}

// chooseJoinPlan decides, for a two-table INNER/LEFT JOIN on an equality
// predicate, which side drives the outer loop: the side WITHOUT a usable
// index drives, so each of its rows can probe the indexed side in near-
// constant time; lacking any index on either side, the right-hand table
// named in the JOIN clause is used as the inner (probed) side as a
// deterministic tie-break.
func (e *Engine) chooseJoinPlan(leftTable string, join *sql.JoinClause) (innerIsRight bool, idx *catalog.IndexEntry) {
	leftCol, rightCol, ok := joinEqualityColumns(join.On)
	if !ok {
		return true, nil
	}
	if rightIdx, ok := e.catalog.IndexOnColumn(join.Table, rightCol); ok {
		return true, rightIdx
	}
	if leftIdx, ok := e.catalog.IndexOnColumn(leftTable, leftCol); ok {
		return false, leftIdx
	}
	return true, nil
}

// joinEqualityColumns extracts the two bare column names from a `t1.a =
// t2.b`-shaped ON clause.
func joinEqualityColumns(on *sql.Expr) (left, right string, ok bool) {
	if on == nil || on.Kind != sql.ExprBinary || on.Op != sql.OpEq {
		return "", "", false
	}
	if on.Left.Kind != sql.ExprColumn || on.Right.Kind != sql.ExprColumn {
		return "", "", false
	}
	_, left = columnRef(on.Left.Column)
	_, right = columnRef(on.Right.Column)
	return left, right, true
}
