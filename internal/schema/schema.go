package schema

import (
	"fmt"

	radix "github.com/armon/go-radix"
	"github.com/google/uuid"

	"github.com/pagestore/pagestore/internal/storage"
)

// Decimal is a fixed-point value reassembled from a DECIMAL logical
// column's two physical Integral words: Scaled holds the value scaled
// up by 10^Scale (e.g. Scaled=12345, Scale=2 means 123.45).
type Decimal struct {
	Scaled int64
	Scale  int8
}

// ObjectKind mirrors the "type" column of the system schema table:
// table, index, view, or trigger. Only table and index are created by
// this store; view/trigger rows are accepted for format compatibility
// but never executed.
type ObjectKind string

const (
	KindTable   ObjectKind = "table"
	KindIndex   ObjectKind = "index"
	KindView    ObjectKind = "view"
	KindTrigger ObjectKind = "trigger"
)

// LogicalType is the declared column type from CREATE TABLE, before
// expansion into physical storage columns.
type LogicalType int

const (
	TypeInteger LogicalType = iota
	TypeReal
	TypeText
	TypeBlob
	TypeUUID    // stored as two adjacent Integral physical columns
	TypeDecimal // fixed-point, also two adjacent Integral columns
)

// Column is one logical column of a table definition.
type Column struct {
	Name       string
	Type       LogicalType
	PrimaryKey bool
	NotNull    bool
}

// PhysicalColumn is one physical storage slot a logical column
// expands to: most logical types map 1:1, but 128-bit logical types
// (UUID, fixed-decimal) expand to two adjacent Integral physical
// columns suffixed __hi / __lo.
type PhysicalColumn struct {
	Name        string
	Kind        storage.ValueKind
	LogicalCol  int // index into Table.Columns
	IsHighWord  bool
	IsLowWord   bool
}

// Table is a parsed CREATE TABLE definition together with its
// precomputed physical column layout and root b-tree page.
type Table struct {
	Name       string
	RawSQL     string
	RootPage   int
	Columns    []Column
	Physical   []PhysicalColumn
	PrimaryKey int // index into Columns, -1 if rowid-only
}

// Index is a parsed CREATE INDEX definition.
type Index struct {
	Name      string
	RawSQL    string
	RootPage  int
	TableName string
	Columns   []string
}

// expandColumns builds the physical column layout for a logical
// column list, splitting 128-bit logical types into __hi/__lo pairs.
func expandColumns(cols []Column) []PhysicalColumn {
	var out []PhysicalColumn
	for i, c := range cols {
		switch c.Type {
		case TypeUUID, TypeDecimal:
			out = append(out,
				PhysicalColumn{Name: c.Name + "__hi", Kind: storage.KindIntegral, LogicalCol: i, IsHighWord: true},
				PhysicalColumn{Name: c.Name + "__lo", Kind: storage.KindIntegral, LogicalCol: i, IsLowWord: true},
			)
		default:
			out = append(out, PhysicalColumn{Name: c.Name, Kind: logicalToValueKind(c.Type), LogicalCol: i})
		}
	}
	return out
}

func logicalToValueKind(t LogicalType) storage.ValueKind {
	switch t {
	case TypeInteger:
		return storage.KindIntegral
	case TypeReal:
		return storage.KindReal
	case TypeText:
		return storage.KindText
	case TypeBlob:
		return storage.KindBlob
	}
	return storage.KindIntegral
}

// NumProjected reports how many logical values a row yields: the
// length of an explicit physical-ordinal projection list, or every
// declared column when projection is empty (a bare SELECT *).
func (t *Table) NumProjected(projection []int) int {
	if len(projection) > 0 {
		return len(projection)
	}
	return len(t.Columns)
}

// MergedPhysicalOrdinals returns the physical column slice indices
// that together make up logical column i (one index for ordinary
// types, two for 128-bit logical types).
func (t *Table) MergedPhysicalOrdinals(logicalCol int) []int {
	var out []int
	for i, p := range t.Physical {
		if p.LogicalCol == logicalCol {
			out = append(out, i)
		}
	}
	return out
}

// ExpandMerged reassembles a logical value from its physical column
// Values, reconstituting a 128-bit logical type from its __hi/__lo
// pair when applicable. UUID columns come back as a uuid.UUID;
// DECIMAL columns come back as a Decimal (scaled value + scale).
func (t *Table) ExpandMerged(logicalCol int, physicalValues []storage.Value) (interface{}, error) {
	ordinals := t.MergedPhysicalOrdinals(logicalCol)
	if len(ordinals) == 1 {
		return physicalValues[ordinals[0]], nil
	}
	if len(ordinals) == 2 {
		hi := physicalValues[ordinals[0]]
		lo := physicalValues[ordinals[1]]
		raw := storage.Record128(hi, lo)
		switch t.Columns[logicalCol].Type {
		case TypeUUID:
			return uuid.UUID(raw), nil
		case TypeDecimal:
			return Decimal{Scaled: lo.Integer, Scale: int8(hi.Integer)}, nil
		default:
			return raw, nil
		}
	}
	return nil, fmt.Errorf("column %d has no physical storage", logicalCol)
}

// NewTable constructs a Table definition with physical columns and
// primary key precomputed.
func NewTable(name, rawSQL string, rootPage int, columns []Column) *Table {
	t := &Table{
		Name:       name,
		RawSQL:     rawSQL,
		RootPage:   rootPage,
		Columns:    columns,
		PrimaryKey: -1,
	}
	t.Physical = expandColumns(columns)
	for i, c := range columns {
		if c.PrimaryKey {
			t.PrimaryKey = i
			break
		}
	}
	return t
}

// Schema holds every table and index definition in the database,
// indexed by name through a radix tree so exact and prefix lookups
// (WithPrefix) don't require a full scan.
type Schema struct {
	names  *radix.Tree
	tables map[string]*Table
	idxes  map[string]*Index
}

func New() *Schema {
	return &Schema{
		names:  radix.New(),
		tables: make(map[string]*Table),
		idxes:  make(map[string]*Index),
	}
}

func (s *Schema) AddTable(t *Table) {
	s.tables[t.Name] = t
	s.names.Insert(t.Name, t)
}

func (s *Schema) AddIndex(idx *Index) {
	s.idxes[idx.Name] = idx
	s.names.Insert(idx.Name, idx)
}

func (s *Schema) DropTable(name string) {
	delete(s.tables, name)
	s.names.Delete(name)
}

func (s *Schema) DropIndex(name string) {
	delete(s.idxes, name)
	s.names.Delete(name)
}

func (s *Schema) Table(name string) (*Table, bool) {
	t, ok := s.tables[name]
	return t, ok
}

func (s *Schema) Index(name string) (*Index, bool) {
	idx, ok := s.idxes[name]
	return idx, ok
}

// IndexesOn returns every index defined against tableName.
func (s *Schema) IndexesOn(tableName string) []*Index {
	var out []*Index
	for _, idx := range s.idxes {
		if idx.TableName == tableName {
			out = append(out, idx)
		}
	}
	return out
}

// WithPrefix returns every schema object (table or index) whose name
// starts with prefix, via the radix tree's ordered prefix walk.
func (s *Schema) WithPrefix(prefix string) []string {
	var out []string
	s.names.WalkPrefix(prefix, func(k string, v interface{}) bool {
		out = append(out, k)
		return false
	})
	return out
}

// Tables returns every table definition, for sqlite_master-style
// introspection queries.
func (s *Schema) Tables() []*Table {
	out := make([]*Table, 0, len(s.tables))
	for _, t := range s.tables {
		out = append(out, t)
	}
	return out
}
