package parser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse_Select(t *testing.T) {
	r := require.New(t)

	stmt, err := Parse("SELECT id, name FROM users WHERE id = 1 ORDER BY name DESC LIMIT 10 OFFSET 5")
	r.NoError(err)

	sel, ok := stmt.(*SelectStmt)
	r.True(ok)
	r.Equal("users", sel.From)
	r.Len(sel.Columns, 2)
	r.Len(sel.OrderBy, 1)
	r.True(sel.OrderBy[0].Desc)
	r.NotNil(sel.Where)
	r.NotNil(sel.Limit)
	r.NotNil(sel.Offset)
}

func TestParse_SelectStar(t *testing.T) {
	r := require.New(t)

	stmt, err := Parse("SELECT * FROM widgets")
	r.NoError(err)

	sel, ok := stmt.(*SelectStmt)
	r.True(ok)
	r.Len(sel.Columns, 1)
	r.True(sel.Columns[0].Star)
}

func TestParse_Insert(t *testing.T) {
	r := require.New(t)

	stmt, err := Parse("INSERT INTO widgets (id, name) VALUES (1, 'sprocket')")
	r.NoError(err)

	ins, ok := stmt.(*InsertStmt)
	r.True(ok)
	r.Equal("widgets", ins.Table)
	r.Equal([]string{"id", "name"}, ins.Columns)
	r.Len(ins.Values, 2)
}

func TestParse_CreateTable(t *testing.T) {
	r := require.New(t)

	stmt, err := Parse("CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT NOT NULL)")
	r.NoError(err)

	ct, ok := stmt.(*CreateTableStmt)
	r.True(ok)
	r.Equal("widgets", ct.Table)
	r.Len(ct.Columns, 2)
	r.True(ct.Columns[0].PrimaryKey)
	r.True(ct.Columns[1].NotNull)
}

func TestParse_BarePlaceholdersAreNumberedSequentially(t *testing.T) {
	r := require.New(t)

	stmt, err := Parse("UPDATE widgets SET name = ? WHERE id = ? AND name = ?")
	r.NoError(err)

	upd, ok := stmt.(*UpdateStmt)
	r.True(ok)

	assignParam, ok := upd.Assign[0].Value.(*Param)
	r.True(ok)
	r.Equal("?1", assignParam.Name)

	and, ok := upd.Where.(*BinaryExpr)
	r.True(ok)

	left, ok := and.Left.(*BinaryExpr)
	r.True(ok)
	idParam, ok := left.Right.(*Param)
	r.True(ok)
	r.Equal("?2", idParam.Name)

	right, ok := and.Right.(*BinaryExpr)
	r.True(ok)
	nameParam, ok := right.Right.(*Param)
	r.True(ok)
	r.Equal("?3", nameParam.Name)
}

func TestParse_BarePlaceholders_RestartsPerStatement(t *testing.T) {
	r := require.New(t)

	first, err := Parse("SELECT * FROM t WHERE a = ?")
	r.NoError(err)
	second, err := Parse("SELECT * FROM t WHERE a = ? AND b = ?")
	r.NoError(err)

	p1 := first.(*SelectStmt).Where.(*BinaryExpr).Right.(*Param)
	r.Equal("?1", p1.Name)

	where2 := second.(*SelectStmt).Where.(*BinaryExpr)
	pa := where2.Left.(*BinaryExpr).Right.(*Param)
	pb := where2.Right.(*BinaryExpr).Right.(*Param)
	r.Equal("?1", pa.Name)
	r.Equal("?2", pb.Name)
}

func TestParseExpr_NamedParam(t *testing.T) {
	r := require.New(t)

	expr, err := ParseExpr("id = :id")
	r.NoError(err)

	bin, ok := expr.(*BinaryExpr)
	r.True(ok)
	p, ok := bin.Right.(*Param)
	r.True(ok)
	r.Equal(":id", p.Name)
}
