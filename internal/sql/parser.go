package sql

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/relstore/reldb/internal/types"
)

// Parser consumes a token stream and builds a Statement using a classic
// recursive-descent structure (peek/advance/expect helpers, statement
// dispatch on the leading keyword) narrowed to the grammar reldb
// executes.
type Parser struct {
	lx   *lexer
	cur  token
	peek token
}

// Parse parses a single SQL statement from src. A trailing semicolon is
// optional and ignored.
func Parse(src string) (*Statement, error) {
	p := &Parser{lx: newLexer(src)}
	p.advance()
	p.advance()
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if p.cur.typ == tSymbol && p.cur.val == ";" {
		p.advance()
	}
	if p.cur.typ != tEOF {
		return nil, fmt.Errorf("sql: unexpected trailing input at %q", p.cur.val)
	}
	return stmt, nil
}

func (p *Parser) advance() {
	p.cur = p.peek
	p.peek = p.lx.nextToken()
}

func (p *Parser) atKeyword(kw string) bool {
	return p.cur.typ == tKeyword && p.cur.val == kw
}

func (p *Parser) atSymbol(sym string) bool {
	return p.cur.typ == tSymbol && p.cur.val == sym
}

func (p *Parser) expectKeyword(kw string) error {
	if !p.atKeyword(kw) {
		return fmt.Errorf("sql: expected %s, found %q", kw, p.cur.val)
	}
	p.advance()
	return nil
}

func (p *Parser) expectSymbol(sym string) error {
	if !p.atSymbol(sym) {
		return fmt.Errorf("sql: expected %q, found %q", sym, p.cur.val)
	}
	p.advance()
	return nil
}

func (p *Parser) expectIdent() (string, error) {
	if p.cur.typ != tIdent {
		return "", fmt.Errorf("sql: expected identifier, found %q", p.cur.val)
	}
	name := p.cur.val
	p.advance()
	return name, nil
}

func (p *Parser) parseStatement() (*Statement, error) {
	switch {
	case p.atKeyword("CREATE"):
		return p.parseCreate()
	case p.atKeyword("DROP"):
		return p.parseDrop()
	case p.atKeyword("ALTER"):
		return p.parseAlter()
	case p.atKeyword("INSERT"):
		return p.parseInsert()
	case p.atKeyword("UPDATE"):
		return p.parseUpdate()
	case p.atKeyword("DELETE"):
		return p.parseDelete()
	case p.atKeyword("SELECT"):
		sel, err := p.parseSelect()
		if err != nil {
			return nil, err
		}
		return &Statement{Kind: StmtSelect, Select: sel}, nil
	case p.atKeyword("BEGIN"):
		p.advance()
		if p.atKeyword("TRANSACTION") {
			p.advance()
		}
		return &Statement{Kind: StmtBegin}, nil
	case p.atKeyword("COMMIT"):
		p.advance()
		return &Statement{Kind: StmtCommit}, nil
	case p.atKeyword("ROLLBACK"):
		p.advance()
		return &Statement{Kind: StmtRollback}, nil
	case p.atKeyword("VACUUM"):
		p.advance()
		table, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		return &Statement{Kind: StmtVacuum, Vacuum: &VacuumStmt{Table: table}}, nil
	case p.atSymbol(".") && p.peek.typ == tKeyword && p.peek.val == "VACUUM":
		// The `.vacuum <table>` dot-command parses to the same node.
		p.advance()
		p.advance()
		table, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		return &Statement{Kind: StmtVacuum, Vacuum: &VacuumStmt{Table: table}}, nil
	default:
		return nil, fmt.Errorf("sql: unrecognized statement starting at %q", p.cur.val)
	}
}

func (p *Parser) parseCreate() (*Statement, error) {
	p.advance() // CREATE
	unique := false
	if p.atKeyword("UNIQUE") {
		unique = true
		p.advance()
	}
	switch {
	case p.atKeyword("TABLE"):
		return p.parseCreateTable()
	case p.atKeyword("INDEX"):
		return p.parseCreateIndex(unique)
	default:
		return nil, fmt.Errorf("sql: expected TABLE or INDEX after CREATE, found %q", p.cur.val)
	}
}

func (p *Parser) parseCreateTable() (*Statement, error) {
	p.advance() // TABLE
	ifNotExists := false
	if p.atKeyword("IF") {
		p.advance()
		if err := p.expectKeyword("NOT"); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("EXISTS"); err != nil {
			return nil, err
		}
		ifNotExists = true
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	var cols []ColumnDef
	for {
		col, err := p.parseColumnDef()
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
		if p.atSymbol(",") {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return &Statement{Kind: StmtCreateTable, CreateTable: &CreateTableStmt{
		Table: table, Columns: cols, IfNotExists: ifNotExists,
	}}, nil
}

func (p *Parser) parseColumnDef() (ColumnDef, error) {
	name, err := p.expectIdent()
	if err != nil {
		return ColumnDef{}, err
	}
	dt, err := p.parseDataType()
	if err != nil {
		return ColumnDef{}, err
	}
	col := ColumnDef{Name: name, Type: dt}
	for {
		switch {
		case p.atKeyword("PRIMARY"):
			p.advance()
			if err := p.expectKeyword("KEY"); err != nil {
				return ColumnDef{}, err
			}
			col.Constraints |= types.ConstraintPrimaryKey | types.ConstraintNotNull
		case p.atKeyword("UNIQUE"):
			p.advance()
			col.Constraints |= types.ConstraintUnique
		case p.atKeyword("NOT"):
			p.advance()
			if err := p.expectKeyword("NULL"); err != nil {
				return ColumnDef{}, err
			}
			col.Constraints |= types.ConstraintNotNull
		case p.atKeyword("REFERENCES"):
			p.advance()
			refTable, err := p.expectIdent()
			if err != nil {
				return ColumnDef{}, err
			}
			if err := p.expectSymbol("("); err != nil {
				return ColumnDef{}, err
			}
			refCol, err := p.expectIdent()
			if err != nil {
				return ColumnDef{}, err
			}
			if err := p.expectSymbol(")"); err != nil {
				return ColumnDef{}, err
			}
			col.References = &types.Reference{Table: refTable, Column: refCol}
		default:
			return col, nil
		}
	}
}

func (p *Parser) parseDataType() (types.DataType, error) {
	if p.cur.typ != tKeyword {
		return 0, fmt.Errorf("sql: expected a column type, found %q", p.cur.val)
	}
	name := p.cur.val
	p.advance()
	switch name {
	case "INTEGER":
		return types.TypeInteger, nil
	case "UNSIGNED":
		return types.TypeUnsigned, nil
	case "FLOAT":
		return types.TypeFloat, nil
	case "BOOLEAN":
		return types.TypeBoolean, nil
	case "VARCHAR":
		if p.atSymbol("(") {
			p.advance()
			if _, err := p.expectNumberLiteral(); err != nil {
				return 0, err
			}
			if err := p.expectSymbol(")"); err != nil {
				return 0, err
			}
		}
		return types.TypeString, nil
	case "DATE":
		return types.TypeDate, nil
	case "TIMESTAMP":
		return types.TypeTimestamp, nil
	case "DECIMAL":
		if p.atSymbol("(") {
			p.advance()
			for !p.atSymbol(")") {
				p.advance()
			}
			p.advance()
		}
		return types.TypeDecimal, nil
	default:
		return 0, fmt.Errorf("sql: unknown column type %q", name)
	}
}

func (p *Parser) expectNumberLiteral() (int64, error) {
	if p.cur.typ != tNumber {
		return 0, fmt.Errorf("sql: expected a number, found %q", p.cur.val)
	}
	n, err := strconv.ParseInt(p.cur.val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("sql: invalid integer literal %q: %w", p.cur.val, err)
	}
	p.advance()
	return n, nil
}

func (p *Parser) parseCreateIndex(unique bool) (*Statement, error) {
	p.advance() // INDEX
	index, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("ON"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	column, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	usingHash := false
	if p.atKeyword("USING") {
		p.advance()
		if p.atKeyword("HASH") {
			usingHash = true
			p.advance()
		} else if p.atKeyword("BTREE") {
			p.advance()
		} else {
			return nil, fmt.Errorf("sql: expected HASH or BTREE after USING, found %q", p.cur.val)
		}
	}
	return &Statement{Kind: StmtCreateIndex, CreateIndex: &CreateIndexStmt{
		Index: index, Table: table, Column: column, Unique: unique, UsingHash: usingHash,
	}}, nil
}

func (p *Parser) parseDrop() (*Statement, error) {
	p.advance() // DROP
	switch {
	case p.atKeyword("TABLE"):
		p.advance()
		ifExists := false
		if p.atKeyword("IF") {
			p.advance()
			if err := p.expectKeyword("EXISTS"); err != nil {
				return nil, err
			}
			ifExists = true
		}
		table, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		return &Statement{Kind: StmtDropTable, DropTable: &DropTableStmt{Table: table, IfExists: ifExists}}, nil
	case p.atKeyword("INDEX"):
		p.advance()
		index, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		return &Statement{Kind: StmtDropIndex, DropIndex: &DropIndexStmt{Index: index}}, nil
	default:
		return nil, fmt.Errorf("sql: expected TABLE or INDEX after DROP, found %q", p.cur.val)
	}
}

func (p *Parser) parseAlter() (*Statement, error) {
	p.advance() // ALTER
	if err := p.expectKeyword("TABLE"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	switch {
	case p.atKeyword("ADD"):
		p.advance()
		if p.atKeyword("COLUMN") {
			p.advance()
		}
		col, err := p.parseColumnDef()
		if err != nil {
			return nil, err
		}
		return &Statement{Kind: StmtAlterTable, AlterTable: &AlterTableStmt{
			Table: table, Kind: AlterAddColumn, NewColumn: col,
		}}, nil
	case p.atKeyword("DROP"):
		p.advance()
		if p.atKeyword("COLUMN") {
			p.advance()
		}
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		return &Statement{Kind: StmtAlterTable, AlterTable: &AlterTableStmt{
			Table: table, Kind: AlterDropColumn, ColumnName: name,
		}}, nil
	case p.atKeyword("RENAME"):
		p.advance()
		if p.atKeyword("TO") {
			p.advance()
			newName, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			return &Statement{Kind: StmtAlterTable, AlterTable: &AlterTableStmt{
				Table: table, Kind: AlterRenameTable, RenameTo: newName,
			}}, nil
		}
		if p.atKeyword("COLUMN") {
			p.advance()
		}
		from, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("TO"); err != nil {
			return nil, err
		}
		to, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		return &Statement{Kind: StmtAlterTable, AlterTable: &AlterTableStmt{
			Table: table, Kind: AlterRenameColumn, ColumnName: from, RenameTo: to,
		}}, nil
	default:
		return nil, fmt.Errorf("sql: expected ADD, DROP, or RENAME after ALTER TABLE, found %q", p.cur.val)
	}
}

func (p *Parser) parseInsert() (*Statement, error) {
	p.advance() // INSERT
	if err := p.expectKeyword("INTO"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	var columns []string
	if p.atSymbol("(") {
		p.advance()
		for {
			name, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			columns = append(columns, name)
			if p.atSymbol(",") {
				p.advance()
				continue
			}
			break
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
	}
	if err := p.expectKeyword("VALUES"); err != nil {
		return nil, err
	}
	var rows [][]*Expr
	for {
		if err := p.expectSymbol("("); err != nil {
			return nil, err
		}
		var row []*Expr
		for {
			e, err := p.parsePrimary()
			if err != nil {
				return nil, err
			}
			row = append(row, e)
			if p.atSymbol(",") {
				p.advance()
				continue
			}
			break
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		rows = append(rows, row)
		if p.atSymbol(",") {
			p.advance()
			continue
		}
		break
	}
	return &Statement{Kind: StmtInsert, Insert: &InsertStmt{Table: table, Columns: columns, Rows: rows}}, nil
}

func (p *Parser) parseUpdate() (*Statement, error) {
	p.advance() // UPDATE
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("SET"); err != nil {
		return nil, err
	}
	var assigns []Assignment
	for {
		col, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol("="); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		assigns = append(assigns, Assignment{Column: col, Value: val})
		if p.atSymbol(",") {
			p.advance()
			continue
		}
		break
	}
	var where *Expr
	if p.atKeyword("WHERE") {
		p.advance()
		where, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	return &Statement{Kind: StmtUpdate, Update: &UpdateStmt{Table: table, Assignments: assigns, Where: where}}, nil
}

func (p *Parser) parseDelete() (*Statement, error) {
	p.advance() // DELETE
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	var where *Expr
	if p.atKeyword("WHERE") {
		p.advance()
		where, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	return &Statement{Kind: StmtDelete, Delete: &DeleteStmt{Table: table, Where: where}}, nil
}

func (p *Parser) parseSelect() (*SelectStmt, error) {
	p.advance() // SELECT
	sel := &SelectStmt{}
	if p.atKeyword("DISTINCT") {
		sel.Distinct = true
		p.advance()
	}
	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		sel.Columns = append(sel.Columns, item)
		if p.atSymbol(",") {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	sel.Table = table
	sel.Alias = table
	if p.atKeyword("AS") {
		p.advance()
		alias, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		sel.Alias = alias
	} else if p.cur.typ == tIdent {
		sel.Alias = p.cur.val
		p.advance()
	}

	if p.atKeyword("JOIN") || p.atKeyword("INNER") || p.atKeyword("LEFT") {
		join, err := p.parseJoin()
		if err != nil {
			return nil, err
		}
		sel.Join = join
	}

	if p.atKeyword("WHERE") {
		p.advance()
		where, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		sel.Where = where
	}

	if p.atKeyword("GROUP") {
		p.advance()
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			col, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			sel.GroupBy = append(sel.GroupBy, col)
			if p.atSymbol(",") {
				p.advance()
				continue
			}
			break
		}
		if p.atKeyword("HAVING") {
			p.advance()
			having, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			sel.Having = having
		}
	}

	if p.atKeyword("ORDER") {
		p.advance()
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			col, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			term := OrderTerm{Column: col}
			if p.atKeyword("DESC") {
				term.Desc = true
				p.advance()
			} else if p.atKeyword("ASC") {
				p.advance()
			}
			sel.OrderBy = append(sel.OrderBy, term)
			if p.atSymbol(",") {
				p.advance()
				continue
			}
			break
		}
	}

	if p.atKeyword("LIMIT") {
		p.advance()
		n, err := p.expectNumberLiteral()
		if err != nil {
			return nil, err
		}
		sel.Limit = &n
	}
	if p.atKeyword("OFFSET") {
		p.advance()
		n, err := p.expectNumberLiteral()
		if err != nil {
			return nil, err
		}
		sel.Offset = &n
	}
	return sel, nil
}

func (p *Parser) parseSelectItem() (SelectItem, error) {
	if p.atSymbol("*") {
		p.advance()
		return SelectItem{Star: true}, nil
	}
	e, err := p.parseExpr()
	if err != nil {
		return SelectItem{}, err
	}
	item := SelectItem{Expr: e}
	if p.atKeyword("AS") {
		p.advance()
		alias, err := p.expectIdent()
		if err != nil {
			return SelectItem{}, err
		}
		item.Alias = alias
	}
	return item, nil
}

func (p *Parser) parseJoin() (*JoinClause, error) {
	left := false
	if p.atKeyword("LEFT") {
		left = true
		p.advance()
	} else if p.atKeyword("INNER") {
		p.advance()
	}
	if err := p.expectKeyword("JOIN"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	alias := table
	if p.atKeyword("AS") {
		p.advance()
		alias, err = p.expectIdent()
		if err != nil {
			return nil, err
		}
	} else if p.cur.typ == tIdent {
		alias = p.cur.val
		p.advance()
	}
	if err := p.expectKeyword("ON"); err != nil {
		return nil, err
	}
	on, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &JoinClause{Table: table, Alias: alias, Left: left, On: on}, nil
}

// Expression grammar, lowest to highest precedence: OR, AND, NOT,
// comparison, primary.

func (p *Parser) parseExpr() (*Expr, error) { return p.parseOr() }

func (p *Parser) parseOr() (*Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("OR") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Expr{Kind: ExprBinary, Op: OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (*Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("AND") {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &Expr{Kind: ExprBinary, Op: OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (*Expr, error) {
	if p.atKeyword("NOT") {
		p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Expr{Kind: ExprNot, Operand: operand}, nil
	}
	return p.parseComparison()
}

func (p *Parser) parseComparison() (*Expr, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	op, ok := p.matchComparisonOp()
	if !ok {
		return left, nil
	}
	p.advance()
	right, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	return &Expr{Kind: ExprBinary, Op: op, Left: left, Right: right}, nil
}

func (p *Parser) matchComparisonOp() (BinaryOp, bool) {
	if p.cur.typ != tSymbol {
		return 0, false
	}
	switch p.cur.val {
	case "=":
		return OpEq, true
	case "!=", "<>":
		return OpNotEq, true
	case "<":
		return OpLt, true
	case "<=":
		return OpLtEq, true
	case ">":
		return OpGt, true
	case ">=":
		return OpGtEq, true
	default:
		return 0, false
	}
}

func (p *Parser) parsePrimary() (*Expr, error) {
	switch {
	case p.atSymbol("("):
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return e, nil
	case p.cur.typ == tNumber:
		return p.parseNumberLiteral()
	case p.cur.typ == tString:
		v := p.cur.val
		p.advance()
		return &Expr{Kind: ExprLiteral, Literal: types.String(v)}, nil
	case p.atKeyword("TRUE"):
		p.advance()
		return &Expr{Kind: ExprLiteral, Literal: types.Boolean(true)}, nil
	case p.atKeyword("FALSE"):
		p.advance()
		return &Expr{Kind: ExprLiteral, Literal: types.Boolean(false)}, nil
	case p.atKeyword("NULL"):
		p.advance()
		return &Expr{Kind: ExprLiteral, Literal: types.Null()}, nil
	case p.isAggregateKeyword():
		return p.parseFuncCall()
	case p.cur.typ == tIdent:
		return p.parseColumnRef()
	default:
		return nil, fmt.Errorf("sql: unexpected token %q in expression", p.cur.val)
	}
}

func (p *Parser) isAggregateKeyword() bool {
	if p.cur.typ != tKeyword {
		return false
	}
	switch p.cur.val {
	case "COUNT", "SUM", "AVG", "MIN", "MAX":
		return true
	default:
		return false
	}
}

func (p *Parser) parseFuncCall() (*Expr, error) {
	name := p.cur.val
	p.advance()
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	var args []*Expr
	if p.atSymbol("*") {
		p.advance()
		args = append(args, &Expr{Kind: ExprColumn, Column: "*"})
	} else {
		for {
			a, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if p.atSymbol(",") {
				p.advance()
				continue
			}
			break
		}
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return &Expr{Kind: ExprFuncCall, FuncName: name, Args: args}, nil
}

func (p *Parser) parseColumnRef() (*Expr, error) {
	first, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	name := first
	if p.atSymbol(".") {
		p.advance()
		second, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		name = first + "." + second
	}
	return &Expr{Kind: ExprColumn, Column: name}, nil
}

func (p *Parser) parseNumberLiteral() (*Expr, error) {
	raw := p.cur.val
	p.advance()
	if strings.Contains(raw, ".") {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("sql: invalid float literal %q: %w", raw, err)
		}
		return &Expr{Kind: ExprLiteral, Literal: types.Float(f)}, nil
	}
	i, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// Falls back to a decimal literal for integers too large for i64.
		rat, ok := new(big.Rat).SetString(raw)
		if !ok {
			return nil, fmt.Errorf("sql: invalid integer literal %q: %w", raw, err)
		}
		return &Expr{Kind: ExprLiteral, Literal: types.DecimalValue(rat)}, nil
	}
	return &Expr{Kind: ExprLiteral, Literal: types.Integer(i)}, nil
}
