package parser

import "fmt"

// Parser is a recursive-descent parser with precedence climbing for
// scalar expressions, fed tokens one at a time from a Lexer. It keeps
// exactly one token of lookahead.
type Parser struct {
	lex *Lexer
	cur Token
	err error
}

func New(sql string) *Parser {
	p := &Parser{lex: NewLexer(sql)}
	p.advance()
	return p
}

func (p *Parser) advance() { p.cur = p.lex.NextToken() }

func (p *Parser) fail(format string, args ...interface{}) {
	if p.err == nil {
		p.err = fmt.Errorf(format, args...)
	}
}

func (p *Parser) expect(k TokenKind, what string) Token {
	t := p.cur
	if t.Kind != k {
		p.fail("expected %s at position %d, got %q", what, t.Pos, t.Text)
		return t
	}
	p.advance()
	return t
}

// ParseExpr parses a single standalone scalar expression, such as the
// WHERE-clause text CreateReader accepts on its own (outside a full
// SELECT statement).
func ParseExpr(src string) (Expr, error) {
	p := New(src)
	e := p.parseExpr(0)
	if p.err == nil && p.cur.Kind != TokEOF {
		p.fail("unexpected trailing input at position %d", p.cur.Pos)
	}
	return e, p.err
}

// Parse parses exactly one statement, ignoring a single trailing
// semicolon.
func Parse(sql string) (Statement, error) {
	p := New(sql)
	stmt := p.parseStatement()
	if p.cur.Kind == TokSemicolon {
		p.advance()
	}
	if p.err == nil && p.cur.Kind != TokEOF {
		p.fail("unexpected trailing input at position %d", p.cur.Pos)
	}
	// DDL rows in the schema catalog store their defining statement
	// verbatim (matching the reference format's sqlite_master.sql
	// column), so CREATE TABLE/INDEX capture the untouched input text
	// rather than a re-rendered AST.
	switch s := stmt.(type) {
	case *CreateTableStmt:
		s.RawSQL = sql
	case *CreateIndexStmt:
		s.RawSQL = sql
	}
	return stmt, p.err
}

func (p *Parser) parseStatement() Statement {
	switch p.cur.Kind {
	case TokSelect, TokWith:
		return p.parseSelect()
	case TokInsert:
		return p.parseInsert()
	case TokUpdate:
		return p.parseUpdate()
	case TokDelete:
		return p.parseDelete()
	case TokCreate:
		return p.parseCreate()
	case TokDrop:
		return p.parseDrop()
	}
	p.fail("unrecognized statement starting at position %d", p.cur.Pos)
	return nil
}

// --- SELECT ---------------------------------------------------------

func (p *Parser) parseSelect() *SelectStmt {
	var ctes []CTE
	if p.cur.Kind == TokWith {
		p.advance()
		for {
			name := p.expect(TokIdent, "CTE name").Text
			p.expect(TokAs, "AS")
			p.expect(TokLParen, "(")
			sub := p.parseSelect()
			p.expect(TokRParen, ")")
			ctes = append(ctes, CTE{Name: name, Query: sub})
			if p.cur.Kind != TokComma {
				break
			}
			p.advance()
		}
	}

	p.expect(TokSelect, "SELECT")
	stmt := &SelectStmt{With: ctes}
	stmt.Columns = p.parseResultColumns()

	if p.cur.Kind == TokFrom {
		p.advance()
		stmt.From = p.expect(TokIdent, "table name").Text
		if p.cur.Kind == TokAs {
			p.advance()
			stmt.FromAlias = p.expect(TokIdent, "alias").Text
		} else if p.cur.Kind == TokIdent {
			stmt.FromAlias = p.cur.Text
			p.advance()
		}
		stmt.Joins = p.parseJoins()
	}

	if p.cur.Kind == TokWhere {
		p.advance()
		stmt.Where = p.parseExpr(0)
	}

	if p.cur.Kind == TokGroupBy {
		p.advance()
		p.expect(TokBy, "BY")
		stmt.GroupBy = p.parseExprList()
		if p.cur.Kind == TokHaving {
			p.advance()
			stmt.Having = p.parseExpr(0)
		}
	}

	if p.cur.Kind == TokOrderBy {
		p.advance()
		p.expect(TokBy, "BY")
		stmt.OrderBy = p.parseOrderTerms()
	}

	if p.cur.Kind == TokLimit {
		p.advance()
		stmt.Limit = p.parseExpr(0)
		if p.cur.Kind == TokOffset {
			p.advance()
			stmt.Offset = p.parseExpr(0)
		} else if p.cur.Kind == TokComma {
			p.advance()
			stmt.Offset = stmt.Limit
			stmt.Limit = p.parseExpr(0)
		}
	}

	if op, ok := p.peekSetOp(); ok {
		p.advance()
		allAll := false
		if p.cur.Kind == TokAll {
			allAll = true
			p.advance()
		}
		right := p.parseSelect()
		opName := op
		if allAll {
			opName += " ALL"
		}
		stmt.Compound = &CompoundSelect{Op: opName, Right: right}
	}

	return stmt
}

func (p *Parser) peekSetOp() (string, bool) {
	switch p.cur.Kind {
	case TokUnion:
		return "UNION", true
	case TokIntersect:
		return "INTERSECT", true
	case TokExcept:
		return "EXCEPT", true
	}
	return "", false
}

func (p *Parser) parseResultColumns() []ResultColumn {
	var cols []ResultColumn
	for {
		if p.cur.Kind == TokStar {
			p.advance()
			cols = append(cols, ResultColumn{Star: true})
		} else {
			e := p.parseExpr(0)
			col := ResultColumn{Expr: e}
			if p.cur.Kind == TokAs {
				p.advance()
				col.Alias = p.expect(TokIdent, "column alias").Text
			} else if p.cur.Kind == TokIdent {
				col.Alias = p.cur.Text
				p.advance()
			}
			cols = append(cols, col)
		}
		if p.cur.Kind != TokComma {
			break
		}
		p.advance()
	}
	return cols
}

func (p *Parser) parseJoins() []Join {
	var joins []Join
	for p.cur.Kind == TokJoin || p.cur.Kind == TokInner || p.cur.Kind == TokLeft {
		kind := "INNER"
		if p.cur.Kind == TokLeft {
			kind = "LEFT"
			p.advance()
			if p.cur.Kind == TokOuter {
				p.advance()
			}
		} else if p.cur.Kind == TokInner {
			p.advance()
		}
		p.expect(TokJoin, "JOIN")
		j := Join{Kind: kind}
		j.Table = p.expect(TokIdent, "join table").Text
		if p.cur.Kind == TokAs {
			p.advance()
			j.Alias = p.expect(TokIdent, "alias").Text
		} else if p.cur.Kind == TokIdent {
			j.Alias = p.cur.Text
			p.advance()
		}
		p.expect(TokOn, "ON")
		j.On = p.parseExpr(0)
		joins = append(joins, j)
	}
	return joins
}

func (p *Parser) parseOrderTerms() []OrderTerm {
	var terms []OrderTerm
	for {
		e := p.parseExpr(0)
		t := OrderTerm{Expr: e}
		if p.cur.Kind == TokDesc {
			t.Desc = true
			p.advance()
		} else if p.cur.Kind == TokAsc {
			p.advance()
		}
		terms = append(terms, t)
		if p.cur.Kind != TokComma {
			break
		}
		p.advance()
	}
	return terms
}

func (p *Parser) parseExprList() []Expr {
	var out []Expr
	for {
		out = append(out, p.parseExpr(0))
		if p.cur.Kind != TokComma {
			break
		}
		p.advance()
	}
	return out
}

// --- INSERT / UPDATE / DELETE ---------------------------------------

func (p *Parser) parseInsert() *InsertStmt {
	p.expect(TokInsert, "INSERT")
	p.expect(TokInto, "INTO")
	stmt := &InsertStmt{Table: p.expect(TokIdent, "table name").Text}

	if p.cur.Kind == TokLParen {
		p.advance()
		for {
			stmt.Columns = append(stmt.Columns, p.expect(TokIdent, "column name").Text)
			if p.cur.Kind != TokComma {
				break
			}
			p.advance()
		}
		p.expect(TokRParen, ")")
	}

	p.expect(TokValues, "VALUES")
	p.expect(TokLParen, "(")
	stmt.Values = p.parseExprList()
	p.expect(TokRParen, ")")
	return stmt
}

func (p *Parser) parseUpdate() *UpdateStmt {
	p.expect(TokUpdate, "UPDATE")
	stmt := &UpdateStmt{Table: p.expect(TokIdent, "table name").Text}
	p.expect(TokSet, "SET")
	for {
		col := p.expect(TokIdent, "column name").Text
		p.expect(TokEq, "=")
		stmt.Assign = append(stmt.Assign, Assignment{Column: col, Value: p.parseExpr(0)})
		if p.cur.Kind != TokComma {
			break
		}
		p.advance()
	}
	if p.cur.Kind == TokWhere {
		p.advance()
		stmt.Where = p.parseExpr(0)
	}
	return stmt
}

func (p *Parser) parseDelete() *DeleteStmt {
	p.expect(TokDelete, "DELETE")
	p.expect(TokFrom, "FROM")
	stmt := &DeleteStmt{Table: p.expect(TokIdent, "table name").Text}
	if p.cur.Kind == TokWhere {
		p.advance()
		stmt.Where = p.parseExpr(0)
	}
	return stmt
}

// --- DDL --------------------------------------------------------------

func (p *Parser) parseCreate() Statement {
	p.expect(TokCreate, "CREATE")
	switch p.cur.Kind {
	case TokTable:
		p.advance()
		stmt := &CreateTableStmt{Table: p.expect(TokIdent, "table name").Text}
		p.expect(TokLParen, "(")
		for {
			col := ColumnDef{Name: p.expect(TokIdent, "column name").Text}
			col.Type = p.parseTypeName()
			for p.cur.Kind == TokPrimary || p.cur.Kind == TokNot {
				if p.cur.Kind == TokPrimary {
					p.advance()
					p.expect(TokKey, "KEY")
					col.PrimaryKey = true
				} else {
					p.advance()
					p.expect(TokNull, "NULL")
					col.NotNull = true
				}
			}
			stmt.Columns = append(stmt.Columns, col)
			if p.cur.Kind != TokComma {
				break
			}
			p.advance()
		}
		p.expect(TokRParen, ")")
		return stmt
	case TokIndex:
		p.advance()
		stmt := &CreateIndexStmt{Index: p.expect(TokIdent, "index name").Text}
		p.expect(TokOn, "ON")
		stmt.Table = p.expect(TokIdent, "table name").Text
		p.expect(TokLParen, "(")
		for {
			stmt.Columns = append(stmt.Columns, p.expect(TokIdent, "column name").Text)
			if p.cur.Kind != TokComma {
				break
			}
			p.advance()
		}
		p.expect(TokRParen, ")")
		return stmt
	}
	p.fail("expected TABLE or INDEX after CREATE at position %d", p.cur.Pos)
	return nil
}

func (p *Parser) parseTypeName() string {
	switch p.cur.Kind {
	case TokInteger, TokRealKw, TokTextKw, TokBlobKw, TokUUIDKw, TokDecimalKw:
		t := p.cur.Text
		p.advance()
		return t
	}
	return "TEXT"
}

func (p *Parser) parseDrop() Statement {
	p.expect(TokDrop, "DROP")
	switch p.cur.Kind {
	case TokTable:
		p.advance()
		return &DropTableStmt{Table: p.expect(TokIdent, "table name").Text}
	case TokIndex:
		p.advance()
		return &DropIndexStmt{Index: p.expect(TokIdent, "index name").Text}
	}
	p.fail("expected TABLE or INDEX after DROP at position %d", p.cur.Pos)
	return nil
}

// --- expressions ------------------------------------------------------

// binding power table for precedence climbing; higher binds tighter.
func bindingPower(k TokenKind) int {
	switch k {
	case TokOr:
		return 1
	case TokAnd:
		return 2
	case TokEq, TokNeq, TokLt, TokLte, TokGt, TokGte, TokIs, TokIn, TokLike, TokBetween:
		return 3
	case TokPlus, TokMinus:
		return 4
	case TokStar, TokSlash:
		return 5
	case TokArrow:
		return 6
	}
	return 0
}

func (p *Parser) parseExpr(minBP int) Expr {
	left := p.parseUnary()

	for {
		not := false
		opTok := p.cur.Kind
		if opTok == TokNot {
			// NOT IN / NOT BETWEEN / NOT LIKE lookahead
			savedCur, savedLexPos := p.cur, p.lex.pos
			p.advance()
			switch p.cur.Kind {
			case TokIn, TokBetween, TokLike:
				not = true
				opTok = p.cur.Kind
			default:
				p.cur, p.lex.pos = savedCur, savedLexPos
				return left
			}
		}

		bp := bindingPower(opTok)
		if bp == 0 || bp < minBP {
			return left
		}

		switch opTok {
		case TokIs:
			p.advance()
			neg := false
			if p.cur.Kind == TokNot {
				neg = true
				p.advance()
			}
			p.expect(TokNull, "NULL")
			left = &IsNullExpr{Operand: left, Not: neg}
			continue
		case TokBetween:
			p.advance()
			low := p.parseExpr(bp + 1)
			p.expect(TokAnd, "AND")
			high := p.parseExpr(bp + 1)
			left = &BetweenExpr{Operand: left, Low: low, High: high, Not: not}
			continue
		case TokIn:
			p.advance()
			p.expect(TokLParen, "(")
			list := p.parseExprList()
			p.expect(TokRParen, ")")
			left = &InExpr{Operand: left, List: list, Not: not}
			continue
		case TokLike:
			p.advance()
			pattern := p.parseExpr(bp + 1)
			left = &LikeExpr{Operand: left, Pattern: pattern, Not: not}
			continue
		case TokArrow:
			p.advance()
			path := p.parseUnary()
			left = &ArrowExpr{Operand: left, Path: path}
			continue
		}

		p.advance()
		right := p.parseExpr(bp + 1)
		left = &BinaryExpr{Op: opTok, Left: left, Right: right}
	}
}

func (p *Parser) parseUnary() Expr {
	switch p.cur.Kind {
	case TokNot, TokMinus:
		op := p.cur.Kind
		p.advance()
		return &UnaryExpr{Op: op, Operand: p.parseUnary()}
	case TokCase:
		return p.parseCase()
	case TokCast:
		return p.parseCast()
	}
	return p.parsePrimary()
}

func (p *Parser) parseCase() Expr {
	p.expect(TokCase, "CASE")
	e := &CaseExpr{}
	if p.cur.Kind != TokWhen {
		e.Operand = p.parseExpr(0)
	}
	for p.cur.Kind == TokWhen {
		p.advance()
		cond := p.parseExpr(0)
		p.expect(TokThen, "THEN")
		then := p.parseExpr(0)
		e.Whens = append(e.Whens, WhenClause{Cond: cond, Then: then})
	}
	if p.cur.Kind == TokElse {
		p.advance()
		e.Else = p.parseExpr(0)
	}
	p.expect(TokEnd, "END")
	return e
}

func (p *Parser) parseCast() Expr {
	p.expect(TokCast, "CAST")
	p.expect(TokLParen, "(")
	operand := p.parseExpr(0)
	p.expect(TokAs, "AS")
	typeName := p.parseTypeName()
	p.expect(TokRParen, ")")
	return &CastExpr{Operand: operand, TypeName: typeName}
}

func (p *Parser) parsePrimary() Expr {
	t := p.cur
	switch t.Kind {
	case TokNumber:
		p.advance()
		return parseNumberLiteral(t.Text)
	case TokString:
		p.advance()
		return &Literal{Kind: LitString, Text: t.Text}
	case TokNull:
		p.advance()
		return &Literal{Kind: LitNull}
	case TokParam:
		p.advance()
		return &Param{Name: t.Text}
	case TokLParen:
		p.advance()
		e := p.parseExpr(0)
		p.expect(TokRParen, ")")
		return e
	case TokIdent:
		p.advance()
		if p.cur.Kind == TokLParen {
			p.advance()
			var args []Expr
			if p.cur.Kind != TokRParen {
				if p.cur.Kind == TokStar {
					p.advance()
				} else {
					args = p.parseExprList()
				}
			}
			p.expect(TokRParen, ")")
			return &CallExpr{Name: t.Text, Args: args}
		}
		if p.cur.Kind == TokDot {
			p.advance()
			col := p.expect(TokIdent, "column name").Text
			return &ColumnRef{Table: t.Text, Name: col}
		}
		return &ColumnRef{Name: t.Text}
	}
	p.fail("unexpected token %q at position %d", t.Text, t.Pos)
	p.advance()
	return &Literal{Kind: LitNull}
}

func parseNumberLiteral(text string) Expr {
	var hasDot bool
	for _, c := range text {
		if c == '.' {
			hasDot = true
			break
		}
	}
	if hasDot {
		var f float64
		fmt.Sscanf(text, "%g", &f)
		return &Literal{Kind: LitFloat, Text: text, Float: f}
	}
	var i int64
	fmt.Sscanf(text, "%d", &i)
	return &Literal{Kind: LitInt, Text: text, Int: i}
}
