package filter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pagestore/pagestore/internal/parser"
	"github.com/pagestore/pagestore/internal/storage"
)

// row builds a RecordLayout over (id INTEGER, name TEXT) so compiled
// programs have something concrete to evaluate against.
func row(id int64, name string) storage.RecordLayout {
	payload := storage.EncodeRecord([]storage.Value{
		storage.IntegerValue(id),
		storage.TextValueString(name),
	})
	layout, err := storage.ParseRecordHeader(payload)
	if err != nil {
		panic(err)
	}
	return layout
}

// rowNullName builds the same (id INTEGER, name TEXT) layout as row,
// but with name stored as NULL instead of empty text.
func rowNullName(id int64) storage.RecordLayout {
	payload := storage.EncodeRecord([]storage.Value{
		storage.IntegerValue(id),
		storage.NullValue(),
	})
	layout, err := storage.ParseRecordHeader(payload)
	if err != nil {
		panic(err)
	}
	return layout
}

func resolver(name string) (int, bool) {
	switch name {
	case "id":
		return 0, true
	case "name":
		return 1, true
	}
	return 0, false
}

func compile(t *testing.T, sql string) *Program {
	t.Helper()
	expr, err := parser.ParseExpr(sql)
	require.NoError(t, err)
	prog, err := Compile(expr, resolver)
	require.NoError(t, err)
	return prog
}

func TestFilter_Equality(t *testing.T) {
	r := require.New(t)
	prog := compile(t, "id = 5")

	ok, err := prog.Eval(row(5, "a"), 5, nil)
	r.NoError(err)
	r.True(ok)

	ok, err = prog.Eval(row(6, "a"), 6, nil)
	r.NoError(err)
	r.False(ok)
}

func TestFilter_AndOr(t *testing.T) {
	r := require.New(t)
	prog := compile(t, "id > 1 AND name = 'bob'")

	ok, err := prog.Eval(row(2, "bob"), 2, nil)
	r.NoError(err)
	r.True(ok)

	ok, err = prog.Eval(row(2, "alice"), 2, nil)
	r.NoError(err)
	r.False(ok)

	prog = compile(t, "id = 1 OR id = 2")
	ok, err = prog.Eval(row(2, "x"), 2, nil)
	r.NoError(err)
	r.True(ok)
}

func TestFilter_Between(t *testing.T) {
	r := require.New(t)
	prog := compile(t, "id BETWEEN 1 AND 10")

	ok, err := prog.Eval(row(5, "x"), 5, nil)
	r.NoError(err)
	r.True(ok)

	ok, err = prog.Eval(row(20, "x"), 20, nil)
	r.NoError(err)
	r.False(ok)
}

func TestFilter_Like(t *testing.T) {
	r := require.New(t)
	prog := compile(t, "name LIKE 'bo%'")

	ok, err := prog.Eval(row(1, "bob"), 1, nil)
	r.NoError(err)
	r.True(ok)

	ok, err = prog.Eval(row(1, "alice"), 1, nil)
	r.NoError(err)
	r.False(ok)
}

func TestFilter_BoundParameter(t *testing.T) {
	r := require.New(t)
	prog := compile(t, "id = ?1")

	ok, err := prog.Eval(row(7, "x"), 7, map[string]storage.Value{"?1": storage.IntegerValue(7)})
	r.NoError(err)
	r.True(ok)

	ok, err = prog.Eval(row(8, "x"), 8, map[string]storage.Value{"?1": storage.IntegerValue(7)})
	r.NoError(err)
	r.False(ok)
}

func TestFilter_NullComparisonsAreNullSafe(t *testing.T) {
	r := require.New(t)

	for _, sql := range []string{
		"name = 'bob'",
		"name <> 'bob'",
		"name < 'bob'",
		"name <= 'bob'",
		"name > 'bob'",
		"name >= 'bob'",
	} {
		prog := compile(t, sql)
		ok, err := prog.Eval(rowNullName(1), 1, nil)
		r.NoError(err)
		r.Falsef(ok, "%s should be false against a NULL operand", sql)
	}
}

func TestFilter_UnknownColumn(t *testing.T) {
	r := require.New(t)
	expr, err := parser.ParseExpr("missing = 1")
	r.NoError(err)

	_, err = Compile(expr, resolver)
	r.Error(err)
}
