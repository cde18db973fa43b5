package schema

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pagestore/pagestore/internal/storage"
)

func TestNewTable_PhysicalExpansion(t *testing.T) {
	r := require.New(t)

	tbl := NewTable("widgets", "CREATE TABLE widgets (...)", 2, []Column{
		{Name: "id", Type: TypeInteger, PrimaryKey: true},
		{Name: "token", Type: TypeUUID},
		{Name: "price", Type: TypeDecimal},
		{Name: "name", Type: TypeText},
	})

	r.Equal(0, tbl.PrimaryKey)
	// UUID and DECIMAL each expand to two physical Integral columns.
	r.Len(tbl.Physical, 6)
	r.Equal("token__hi", tbl.Physical[1].Name)
	r.Equal("token__lo", tbl.Physical[2].Name)
	r.Equal("price__hi", tbl.Physical[3].Name)
	r.Equal("price__lo", tbl.Physical[4].Name)
	r.Equal("name", tbl.Physical[5].Name)

	r.Equal(4, tbl.NumProjected(nil)) // 4 logical columns total
	r.Equal(2, tbl.NumProjected([]int{0, 5}))
}

func TestExpandMerged_UUID(t *testing.T) {
	r := require.New(t)

	tbl := NewTable("t", "", 2, []Column{{Name: "token", Type: TypeUUID}})
	id := uuid.New()
	hi, lo := storage.Split128([16]byte(id))

	got, err := tbl.ExpandMerged(0, []storage.Value{hi, lo})
	r.NoError(err)
	r.Equal(id, got)
}

func TestExpandMerged_Decimal(t *testing.T) {
	r := require.New(t)

	tbl := NewTable("t", "", 2, []Column{{Name: "price", Type: TypeDecimal}})
	hi := storage.IntegerValue(2) // scale
	lo := storage.IntegerValue(12345)

	got, err := tbl.ExpandMerged(0, []storage.Value{hi, lo})
	r.NoError(err)
	dec, ok := got.(Decimal)
	r.True(ok)
	r.Equal(int64(12345), dec.Scaled)
	r.Equal(int8(2), dec.Scale)
}

func TestExpandMerged_PlainColumn(t *testing.T) {
	r := require.New(t)

	tbl := NewTable("t", "", 2, []Column{{Name: "name", Type: TypeText}})
	v, err := tbl.ExpandMerged(0, []storage.Value{storage.TextValueString("hi")})
	r.NoError(err)
	r.Equal(storage.TextValueString("hi"), v)
}

func TestSchema_NamesAndPrefixLookup(t *testing.T) {
	r := require.New(t)

	s := New()
	s.AddTable(NewTable("widgets", "", 2, nil))
	s.AddIndex(&Index{Name: "idx_widgets_name", TableName: "widgets", Columns: []string{"name"}})
	s.AddIndex(&Index{Name: "idx_widgets_price", TableName: "widgets", Columns: []string{"price"}})

	_, ok := s.Table("widgets")
	r.True(ok)

	names := s.WithPrefix("idx_widgets_")
	r.Len(names, 2)

	idxs := s.IndexesOn("widgets")
	r.Len(idxs, 2)

	s.DropIndex("idx_widgets_name")
	r.Len(s.IndexesOn("widgets"), 1)
}
