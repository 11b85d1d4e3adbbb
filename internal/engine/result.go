package engine

import "github.com/relstore/reldb/internal/types"

// ResultSet is what Execute returns for any statement: row data and
// column names for SELECT, an affected-row count for DML, or a plain
// message for DDL and transaction control.
type ResultSet struct {
	Columns      []string
	Rows         [][]types.Value
	RowsAffected int64
	Message      string
	Plan         string // set on SELECT: "Sequential scan", "Index scan", or a nested-loop join description
}

func ackResult(msg string) *ResultSet {
	return &ResultSet{Message: msg}
}

func affectedResult(msg string, n int64) *ResultSet {
	return &ResultSet{Message: msg, RowsAffected: n}
}
