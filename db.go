// Package pagestore is an embedded, single-file, SQLite-wire-format
// compatible storage and query engine: a paged b-tree core wrapped in
// copy-on-write transactions, with a small SQL surface (recursive-
// descent parser, bytecode filter compiler, streaming executor) layered
// on top.
package pagestore

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pagestore/pagestore/internal/filter"
	"github.com/pagestore/pagestore/internal/parser"
	"github.com/pagestore/pagestore/internal/query"
	"github.com/pagestore/pagestore/internal/schema"
	"github.com/pagestore/pagestore/internal/storage"
)

// Value is the typed column value every Reader/Insert/Update call
// exchanges with the caller. It is the storage layer's own Value,
// re-exported so callers never need to import internal/storage.
type Value = storage.Value

func NullValue() Value           { return storage.NullValue() }
func IntegerValue(v int64) Value { return storage.IntegerValue(v) }
func RealValue(v float64) Value  { return storage.RealValue(v) }
func TextValue(s string) Value   { return storage.TextValueString(s) }
func BlobValue(b []byte) Value   { return storage.BlobValue(b) }

// ValueKind tags which storage class a Value holds, re-exported so
// callers outside this module's tree (the driver package included)
// never need to import internal/storage directly.
type ValueKind = storage.ValueKind

const (
	KindNull     = storage.KindNull
	KindIntegral = storage.KindIntegral
	KindReal     = storage.KindReal
	KindText     = storage.KindText
	KindBlob     = storage.KindBlob
)

// Error is the error type every exported operation returns on
// failure, carrying the same Kind enum the storage layer uses so
// callers can branch with errors.As without parsing message text.
type Error = storage.Error

type ErrorKind = storage.ErrorKind

// Options configures an open Database. Zero values pick the teacher-
// grounded defaults (4096-byte pages, WAL journaling).
type Options struct {
	PageSize     int
	Mode         storage.JournalMode
	PageCacheSize int // not passed to the storage layer: no LRU page cache sits in front of the file
	Logger       *logrus.Logger
}

func (o Options) storageOptions() *storage.Options {
	return &storage.Options{PageSize: o.PageSize, Mode: o.Mode}
}

// Database is the external handle this package exposes: a storage
// engine plus the schema catalog describing what tables and indexes
// exist inside it.
type Database struct {
	core   *storage.Database
	schema *schema.Schema
	log    *logrus.Logger
}

func defaultLogger(l *logrus.Logger) *logrus.Logger {
	if l != nil {
		return l
	}
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	return log
}

// Open opens (creating if necessary) a file-backed database and loads
// its schema catalog.
func Open(path string, opts Options) (*Database, error) {
	core, err := storage.Open(path, opts.storageOptions())
	if err != nil {
		return nil, err
	}
	return newDatabase(core, opts)
}

// OpenMemory opens a purely in-process database. The data argument is
// accepted for symmetry with an on-disk Open call but a fresh, empty
// database is always what callers get today: importing an existing
// byte image is an Open Question this layer doesn't resolve (see
// DESIGN.md).
func OpenMemory(data []byte, opts Options) (*Database, error) {
	core, err := storage.OpenMemory(opts.storageOptions())
	if err != nil {
		return nil, err
	}
	return newDatabase(core, opts)
}

func newDatabase(core *storage.Database, opts Options) (*Database, error) {
	db := &Database{core: core, log: defaultLogger(opts.Logger)}

	tx, err := core.BeginTransaction(false)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	s, err := schema.Load(tx.Source(), parseColumnsForSchema)
	if err != nil {
		return nil, err
	}
	db.schema = s
	db.log.WithField("tables", len(s.Tables())).Debug("schema loaded")
	return db, nil
}

// parseColumnsForSchema re-derives a table's Column list from its
// stored CREATE TABLE text when reloading the schema catalog.
func parseColumnsForSchema(rawSQL string) ([]schema.Column, error) {
	stmt, err := parser.Parse(rawSQL)
	if err != nil {
		return nil, err
	}
	ct, ok := stmt.(*parser.CreateTableStmt)
	if !ok {
		return nil, fmt.Errorf("stored schema row is not a CREATE TABLE: %s", rawSQL)
	}
	return columnsFromAST(ct.Columns), nil
}

func columnsFromAST(defs []parser.ColumnDef) []schema.Column {
	out := make([]schema.Column, len(defs))
	for i, d := range defs {
		out[i] = schema.Column{
			Name:       d.Name,
			Type:       logicalTypeFromName(d.Type),
			PrimaryKey: d.PrimaryKey,
			NotNull:    d.NotNull,
		}
	}
	return out
}

func logicalTypeFromName(name string) schema.LogicalType {
	switch name {
	case "REAL":
		return schema.TypeReal
	case "TEXT":
		return schema.TypeText
	case "BLOB":
		return schema.TypeBlob
	case "UUID":
		return schema.TypeUUID
	case "DECIMAL":
		return schema.TypeDecimal
	default:
		return schema.TypeInteger
	}
}

// Schema returns the database's current catalog of tables and
// indexes.
func (db *Database) Schema() *schema.Schema { return db.schema }

func (db *Database) Close() error { return db.core.Close() }

// Reader streams rows from a single table, applying an optional
// compiled filter and column projection as it goes. Once a query
// needs a full materialization (ORDER BY, LIMIT/OFFSET) it switches
// to replaying a pre-sorted, pre-sliced row buffer instead of the
// live cursor; materialized is non-nil exactly in that mode.
type Reader struct {
	table      *schema.Table
	rows       *query.Reader
	program    *filter.Program
	params     map[string]storage.Value
	projection []int // physical column ordinals to project; nil means every declared column
	columns    []string
	hasRow     bool // whether Value/RowID currently point at a live row

	materialized *materializedReader
}

// Columns returns the display names of the reader's result columns,
// in projection order (or declaration order for a bare SELECT *).
func (r *Reader) Columns() []string { return r.columns }

// HasRow reports whether the reader is currently positioned on a row:
// false once the result set is exhausted (or was empty to begin
// with), in which case Value/RowID must not be called.
func (r *Reader) HasRow() bool {
	if r.materialized != nil {
		return r.materialized.pos >= 0 && r.materialized.pos < len(r.materialized.rows)
	}
	return r.hasRow
}

// CreateReader opens a streaming reader over table, applying filter
// (a WHERE-clause expression compiled through internal/filter) and
// limiting output to the named columns in projection (nil/empty means
// every column).
func (db *Database) CreateReader(table string, projection []string, filterExpr string) (*Reader, error) {
	t, ok := db.schema.Table(table)
	if !ok {
		return nil, storage.SchemaNotFound(table)
	}

	tx, err := db.core.BeginTransaction(false)
	if err != nil {
		return nil, err
	}
	// A read-only Reader outlives this call; the transaction itself is
	// only a vehicle for obtaining a consistent source snapshot; it is
	// released immediately since reads never need the writer slot.
	src := tx.Source()
	tx.Rollback()

	r := &Reader{table: t, rows: query.NewReader(src, t)}

	if len(projection) > 0 {
		for _, name := range projection {
			ord := physicalOrdinal(t, name)
			if ord < 0 {
				return nil, fmt.Errorf("unknown column %q on table %q", name, table)
			}
			r.projection = append(r.projection, ord)
		}
		r.columns = append([]string{}, projection...)
	} else {
		for _, c := range t.Columns {
			r.columns = append(r.columns, c.Name)
		}
	}

	if filterExpr != "" {
		expr, err := parser.ParseExpr(filterExpr)
		if err != nil {
			return nil, err
		}
		prog, err := filter.Compile(expr, columnResolverFor(t))
		if err != nil {
			return nil, err
		}
		r.program = prog
	}

	ok, err = r.rows.Rewind()
	if err != nil {
		return nil, err
	}
	if ok {
		ok, err = r.advancePastFiltered()
		if err != nil {
			return nil, err
		}
	}
	r.hasRow = ok
	return r, nil
}

// physicalOrdinal finds the physical storage slot named name (used by
// the filter compiler, which evaluates against physical columns).
func physicalOrdinal(t *schema.Table, name string) int {
	for i, p := range t.Physical {
		if p.Name == name {
			return i
		}
	}
	return -1
}

func columnResolverFor(t *schema.Table) filter.ColumnResolver {
	return func(name string) (int, bool) {
		if name == "rowid" {
			return -1, true
		}
		ord := physicalOrdinal(t, name)
		if ord < 0 {
			return 0, false
		}
		return ord, true
	}
}

// Next advances the reader to the next row satisfying the filter,
// returning false once exhausted.
func (r *Reader) Next() (bool, error) {
	if r.materialized != nil {
		r.materialized.pos++
		return r.materialized.pos < len(r.materialized.rows), nil
	}
	ok, err := r.rows.Next()
	if err != nil || !ok {
		r.hasRow = false
		return false, err
	}
	ok, err = r.advancePastFiltered()
	r.hasRow = ok
	return ok, err
}

// advancePastFiltered is called once positioning has happened (by
// CreateReader's initial Rewind or by Next) and skips rows that fail
// the compiled filter, since the underlying cursor has no filtering
// of its own.
func (r *Reader) advancePastFiltered() (bool, error) {
	for {
		if r.program == nil {
			return true, nil
		}
		layout, rowID := r.currentLayout()
		ok, err := r.program.Eval(layout, rowID, r.params)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		more, err := r.rows.Next()
		if err != nil || !more {
			return false, err
		}
	}
}

func (r *Reader) currentLayout() (storage.RecordLayout, int64) {
	// query.Reader keeps its own RecordLayout private; GetI64/GetUTF8Span
	// etc. read it column by column, which the filter program also does
	// through the same accessors.
	return r.rows.Layout(), r.rows.RowID()
}

// RowID returns the current row's rowid.
func (r *Reader) RowID() int64 {
	if r.materialized != nil {
		return r.materialized.rows[r.materialized.pos].RowID
	}
	return r.rows.RowID()
}

// Value returns logical column i of the current row (0-indexed into
// the table's declared columns, or the reader's projection list if
// one was given).
func (r *Reader) Value(i int) (interface{}, error) {
	if r.materialized != nil {
		return r.materialized.rows[r.materialized.pos].Values[i], nil
	}
	logicalCol := i
	if r.projection != nil {
		// projection holds physical ordinals already resolved by name;
		// map back through the table definition to find which logical
		// column owns that physical slot.
		phys := r.projection[i]
		logicalCol = r.table.Physical[phys].LogicalCol
	}
	return r.table.ExpandMerged(logicalCol, valuesOf(r.rows))
}

func valuesOf(rd *query.Reader) []storage.Value {
	n := rd.Layout().NumColumns()
	out := make([]storage.Value, n)
	for i := 0; i < n; i++ {
		v, _ := rd.Layout().Value(i)
		out[i] = v
	}
	return out
}

// Query parses sql, executes it against the current schema, and
// returns a Reader over the results. A single-table SELECT with at most
// a WHERE clause streams off the cursor; ORDER BY/LIMIT/OFFSET results,
// compound SELECTs (UNION/INTERSECT/EXCEPT) and GROUP BY are
// materialized eagerly through internal/query's top-K, set-operation
// and aggregate helpers before being wrapped in the same Reader shape.
// A SELECT with a JOIN clause is rejected with an error.
func (db *Database) Query(sql string, params map[string]Value) (*Reader, error) {
	stmt, err := parser.Parse(sql)
	if err != nil {
		return nil, err
	}
	sel, ok := stmt.(*parser.SelectStmt)
	if !ok {
		return nil, fmt.Errorf("Query only accepts SELECT statements")
	}
	return db.execSelect(sel, params)
}

func (db *Database) execSelect(sel *parser.SelectStmt, params map[string]Value) (*Reader, error) {
	tx, err := db.core.BeginTransaction(false)
	if err != nil {
		return nil, err
	}
	src := tx.Source()
	tx.Rollback()

	return db.querySelect(src, sel, params)
}

// querySelect runs sel against an already-open page source, letting a
// live write Transaction serve its own reads from the same shadow
// without starting a second one. A compound SELECT (UNION/INTERSECT/
// EXCEPT) or a GROUP BY/HAVING query is materialized eagerly through
// internal/query's set-operation and aggregate helpers; a plain
// single-table SELECT streams off the cursor directly.
func (db *Database) querySelect(src storage.PageSource, sel *parser.SelectStmt, params map[string]Value) (*Reader, error) {
	if len(sel.Joins) > 0 {
		return nil, fmt.Errorf("JOIN is not supported by Query")
	}
	if sel.Compound != nil {
		return db.execCompoundSelect(src, sel, params)
	}
	if len(sel.GroupBy) > 0 || sel.Having != nil {
		return db.execGroupBySelect(src, sel, params)
	}
	return db.execPlainSelect(src, sel, params)
}

// execCompoundSelect evaluates the left-hand SELECT (sel with its own
// Compound cleared) and the right-hand SELECT (sel.Compound.Right),
// each fully materialized, then combines them with
// internal/query.Union/Intersect/Except per spec.md §4.8's
// fingerprint-based dedup rules.
func (db *Database) execCompoundSelect(src storage.PageSource, sel *parser.SelectStmt, params map[string]Value) (*Reader, error) {
	leftSel := *sel
	leftSel.Compound = nil
	leftRows, columns, err := db.materializeRows(src, &leftSel, params)
	if err != nil {
		return nil, err
	}
	rightRows, _, err := db.materializeRows(src, sel.Compound.Right, params)
	if err != nil {
		return nil, err
	}

	var out []query.Row
	switch sel.Compound.Op {
	case "UNION":
		out = query.Union(leftRows, rightRows, false)
	case "UNION ALL":
		out = query.Union(leftRows, rightRows, true)
	case "INTERSECT":
		out = query.Intersect(leftRows, rightRows)
	case "EXCEPT":
		out = query.Except(leftRows, rightRows)
	default:
		return nil, fmt.Errorf("unsupported compound operator %q", sel.Compound.Op)
	}

	pos := -1
	if len(out) > 0 {
		pos = 0
	}
	return (&materializedReader{rows: out, pos: pos}).asReader(columns), nil
}

// materializeRows runs sel to completion (recursing through
// querySelect, so a compound or grouped subquery on either side of a
// set operator works too) and drains every row into memory, since
// a set operation needs both sides' full row sets before it can
// dedup/intersect them.
func (db *Database) materializeRows(src storage.PageSource, sel *parser.SelectStmt, params map[string]Value) ([]query.Row, []string, error) {
	rd, err := db.querySelect(src, sel, params)
	if err != nil {
		return nil, nil, err
	}
	columns := rd.Columns()
	var rows []query.Row
	for rd.HasRow() {
		values := make([]interface{}, len(columns))
		for i := range values {
			v, err := rd.Value(i)
			if err != nil {
				return nil, nil, err
			}
			values[i] = v
		}
		rows = append(rows, query.Row{RowID: rd.RowID(), Values: values})
		if _, err := rd.Next(); err != nil {
			return nil, nil, err
		}
	}
	return rows, columns, nil
}

// aggRef names one output column of a GROUP BY query: either a plain
// group-by column (Kind AggFirst) or an aggregate function call over
// one physical column (ColOrd -1 for COUNT(*)).
type aggRef struct {
	kind   query.AggKind
	colOrd int
}

func aggKindFromName(name string) (query.AggKind, bool) {
	switch strings.ToUpper(name) {
	case "COUNT":
		return query.AggCount, true
	case "SUM":
		return query.AggSum, true
	case "AVG":
		return query.AggAvg, true
	case "MIN":
		return query.AggMin, true
	case "MAX":
		return query.AggMax, true
	}
	return 0, false
}

func isComparisonOp(op parser.TokenKind) bool {
	switch op {
	case parser.TokEq, parser.TokNeq, parser.TokLt, parser.TokLte, parser.TokGt, parser.TokGte:
		return true
	}
	return false
}

func compareOpResult(op parser.TokenKind, c int) bool {
	switch op {
	case parser.TokEq:
		return c == 0
	case parser.TokNeq:
		return c != 0
	case parser.TokLt:
		return c < 0
	case parser.TokLte:
		return c <= 0
	case parser.TokGt:
		return c > 0
	case parser.TokGte:
		return c >= 0
	}
	return false
}

// execGroupBySelect evaluates a GROUP BY (optionally with HAVING)
// query by scanning the base table once, accumulating one
// internal/query.Accumulator set per distinct group key, then
// projecting and (if present) filtering the aggregated results.
// GROUP BY and the projected columns only support plain column
// references and COUNT/SUM/AVG/MIN/MAX calls over a plain column;
// anything more exotic is rejected with a clear error rather than
// silently mis-aggregating, the same way the filter compiler rejects
// expressions it doesn't implement.
func (db *Database) execGroupBySelect(src storage.PageSource, sel *parser.SelectStmt, params map[string]Value) (*Reader, error) {
	t, ok := db.schema.Table(sel.From)
	if !ok {
		return nil, storage.SchemaNotFound(sel.From)
	}

	if isStarProjection(sel.Columns) {
		return nil, fmt.Errorf("GROUP BY queries must project explicit columns or aggregate calls, not *")
	}

	specs := make([]aggRef, len(sel.Columns))
	columns := make([]string, len(sel.Columns))
	for i, rc := range sel.Columns {
		ref, name, err := aggRefFromResultColumn(t, rc)
		if err != nil {
			return nil, err
		}
		specs[i] = ref
		columns[i] = name
	}

	groupOrds := make([]int, len(sel.GroupBy))
	for i, g := range sel.GroupBy {
		ref, ok := g.(*parser.ColumnRef)
		if !ok {
			return nil, fmt.Errorf("GROUP BY only supports plain column references")
		}
		ord := physicalOrdinal(t, ref.Name)
		if ord < 0 {
			return nil, fmt.Errorf("unknown column %q in GROUP BY", ref.Name)
		}
		groupOrds[i] = ord
	}

	var having *havingFilter
	if sel.Having != nil {
		h, err := parseHaving(t, sel.Having, &specs)
		if err != nil {
			return nil, err
		}
		having = h
	}

	kinds := make([]query.AggKind, len(specs))
	for i, s := range specs {
		kinds[i] = s.kind
	}
	groups := query.NewGroupTable(kinds)

	var program *filter.Program
	if sel.Where != nil {
		prog, err := filter.Compile(sel.Where, columnResolverFor(t))
		if err != nil {
			return nil, err
		}
		program = prog
	}

	rows := query.NewReader(src, t)
	ok, err := rows.Rewind()
	if err != nil {
		return nil, err
	}
	for ok {
		matched := true
		if program != nil {
			matched, err = program.Eval(rows.Layout(), rows.RowID(), params)
			if err != nil {
				return nil, err
			}
		}
		if matched {
			var keyParts []string
			for _, ord := range groupOrds {
				v, _ := rows.Layout().Value(ord)
				keyParts = append(keyParts, groupKeyPart(v))
			}
			key := strings.Join(keyParts, "\x1f")

			values := make([]interface{}, len(specs))
			for i, s := range specs {
				if s.colOrd < 0 {
					values[i] = int64(1) // COUNT(*): every matched row counts as one
					continue
				}
				v, _ := rows.Layout().Value(s.colOrd)
				values[i] = anyOfValue(v)
			}
			groups.Add(key, values)
		}

		ok, err = rows.Next()
		if err != nil {
			return nil, err
		}
	}

	var out []query.Row
	for _, g := range groups.Groups() {
		if having != nil && !compareOpResult(having.op, compareAnyOrdered(g.Values[having.specIdx], having.value, having.swapped)) {
			continue
		}
		out = append(out, query.Row{Values: g.Values[:len(sel.Columns)]})
	}

	pos := -1
	if len(out) > 0 {
		pos = 0
	}
	return (&materializedReader{rows: out, pos: pos}).asReader(columns), nil
}

func aggRefFromResultColumn(t *schema.Table, rc parser.ResultColumn) (aggRef, string, error) {
	ref, name, err := aggRefFromExpr(t, rc.Expr)
	if err != nil {
		return aggRef{}, "", err
	}
	if rc.Alias != "" {
		name = rc.Alias
	}
	return ref, name, nil
}

func aggRefFromExpr(t *schema.Table, e parser.Expr) (aggRef, string, error) {
	switch n := e.(type) {
	case *parser.ColumnRef:
		ord := physicalOrdinal(t, n.Name)
		if ord < 0 {
			return aggRef{}, "", fmt.Errorf("unknown column %q", n.Name)
		}
		return aggRef{kind: query.AggFirst, colOrd: ord}, n.Name, nil
	case *parser.CallExpr:
		kind, ok := aggKindFromName(n.Name)
		if !ok {
			return aggRef{}, "", fmt.Errorf("unsupported aggregate function %q", n.Name)
		}
		if len(n.Args) == 0 {
			if strings.ToUpper(n.Name) != "COUNT" {
				return aggRef{}, "", fmt.Errorf("%s requires a column argument", n.Name)
			}
			return aggRef{kind: kind, colOrd: -1}, "count", nil
		}
		ref, ok := n.Args[0].(*parser.ColumnRef)
		if !ok {
			return aggRef{}, "", fmt.Errorf("aggregate functions only project plain column references")
		}
		ord := physicalOrdinal(t, ref.Name)
		if ord < 0 {
			return aggRef{}, "", fmt.Errorf("unknown column %q", ref.Name)
		}
		return aggRef{kind: kind, colOrd: ord}, strings.ToLower(n.Name), nil
	}
	return aggRef{}, "", fmt.Errorf("GROUP BY queries only project plain columns or aggregate calls, got %T", e)
}

func groupKeyPart(v storage.Value) string {
	switch v.Kind {
	case storage.KindNull:
		return "\x00"
	case storage.KindIntegral:
		return fmt.Sprintf("i%d", v.Integer)
	case storage.KindReal:
		return fmt.Sprintf("f%v", v.Real)
	default:
		return "s" + v.String()
	}
}

// havingFilter is a single comparison between an aggregated column
// (by index into the GROUP BY's specs slice) and a literal, the only
// shape of HAVING clause this store executes.
type havingFilter struct {
	specIdx int
	op      parser.TokenKind
	value   interface{}
	swapped bool // true when the literal was on the left of the comparison
}

// parseHaving accepts a single comparison between an aggregate/column
// reference and a literal constant, appending a shadow spec to specs
// if the comparison references a column not already projected (e.g.
// "HAVING COUNT(*) > 2" when COUNT(*) isn't itself selected).
func parseHaving(t *schema.Table, having parser.Expr, specs *[]aggRef) (*havingFilter, error) {
	be, ok := having.(*parser.BinaryExpr)
	if !ok || !isComparisonOp(be.Op) {
		return nil, fmt.Errorf("HAVING only supports a single comparison against a literal")
	}

	aggExpr, litExpr, swapped := be.Left, be.Right, false
	lit, ok := litExpr.(*parser.Literal)
	if !ok {
		aggExpr, litExpr = be.Right, be.Left
		swapped = true
		lit, ok = litExpr.(*parser.Literal)
		if !ok {
			return nil, fmt.Errorf("HAVING comparisons must compare against a constant")
		}
	}

	ref, _, err := aggRefFromExpr(t, aggExpr)
	if err != nil {
		return nil, err
	}

	idx := -1
	for i, s := range *specs {
		if s == ref {
			idx = i
			break
		}
	}
	if idx < 0 {
		*specs = append(*specs, ref)
		idx = len(*specs) - 1
	}

	return &havingFilter{specIdx: idx, op: be.Op, value: literalGoValue(lit), swapped: swapped}, nil
}

func literalGoValue(lit *parser.Literal) interface{} {
	switch lit.Kind {
	case parser.LitInt:
		return lit.Int
	case parser.LitFloat:
		return lit.Float
	case parser.LitString:
		return lit.Text
	}
	return nil
}

// compareAnyOrdered compares an aggregated value against a HAVING
// literal, accounting for which side of the original comparison the
// literal was parsed on (compareOpResult always evaluates left-vs-
// right in source order).
func compareAnyOrdered(aggValue, literal interface{}, swapped bool) int {
	if swapped {
		return compareAny(literal, aggValue)
	}
	return compareAny(aggValue, literal)
}

func compareAny(a, b interface{}) int {
	switch av := a.(type) {
	case int64:
		switch bv := b.(type) {
		case int64:
			return compareFloat(float64(av), float64(bv))
		case float64:
			return compareFloat(float64(av), bv)
		}
	case float64:
		switch bv := b.(type) {
		case int64:
			return compareFloat(av, float64(bv))
		case float64:
			return compareFloat(av, bv)
		}
	case string:
		bv, _ := b.(string)
		return strings.Compare(av, bv)
	}
	return 0
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// execPlainSelect runs a single-table, non-compound, non-grouped
// SELECT: project, filter, and stream off the cursor directly, only
// materializing into memory when ORDER BY/LIMIT/OFFSET need to.
func (db *Database) execPlainSelect(src storage.PageSource, sel *parser.SelectStmt, params map[string]Value) (*Reader, error) {
	t, ok := db.schema.Table(sel.From)
	if !ok {
		return nil, storage.SchemaNotFound(sel.From)
	}

	r := &Reader{table: t, rows: query.NewReader(src, t), params: params}

	if !isStarProjection(sel.Columns) {
		for _, col := range sel.Columns {
			ref, ok := col.Expr.(*parser.ColumnRef)
			if !ok {
				return nil, fmt.Errorf("Query only projects plain column references")
			}
			ord := physicalOrdinal(t, ref.Name)
			if ord < 0 {
				return nil, fmt.Errorf("unknown column %q", ref.Name)
			}
			r.projection = append(r.projection, ord)
			name := ref.Name
			if col.Alias != "" {
				name = col.Alias
			}
			r.columns = append(r.columns, name)
		}
	} else {
		for _, c := range t.Columns {
			r.columns = append(r.columns, c.Name)
		}
	}

	if sel.Where != nil {
		prog, err := filter.Compile(sel.Where, columnResolverFor(t))
		if err != nil {
			return nil, err
		}
		r.program = prog
	}

	hasRow, err := r.rows.Rewind()
	if err != nil {
		return nil, err
	}
	if hasRow {
		hasRow, err = r.advancePastFiltered()
		if err != nil {
			return nil, err
		}
	}
	r.hasRow = hasRow

	if len(sel.OrderBy) == 0 && sel.Limit == nil {
		return r, nil
	}
	return db.materializeOrdered(r, sel)
}

func isStarProjection(cols []parser.ResultColumn) bool {
	return len(cols) == 1 && cols[0].Star
}

// materializeOrdered applies ORDER BY/LIMIT/OFFSET and hands back a
// Reader positioned over the sorted, sliced result. When an ORDER BY
// is present, rows are pushed one at a time into a k-bounded heap
// (query.TopKCollector) as they're read off the cursor instead of
// first collecting the whole matching set into a slice, so memory
// stays O(k) for "ORDER BY ... LIMIT k" regardless of scan size, per
// spec.md §4.8. Plain "LIMIT k" with no ORDER BY similarly stops
// scanning once offset+limit rows are in hand, rather than draining
// the cursor to exhaustion first.
func (db *Database) materializeOrdered(r *Reader, sel *parser.SelectStmt) (*Reader, error) {
	limit := -1
	if sel.Limit != nil {
		if lit, ok := sel.Limit.(*parser.Literal); ok {
			limit = int(lit.Int)
		}
	}
	offset := 0
	if sel.Offset != nil {
		if lit, ok := sel.Offset.(*parser.Literal); ok {
			offset = int(lit.Int)
		}
	}
	sortLimit := -1
	if limit >= 0 {
		sortLimit = limit + offset
	}

	hasOrder := len(sel.OrderBy) > 0
	var collector *query.TopKCollector
	if hasOrder {
		collector = query.NewTopKCollector(sortLimit)
	}
	var rows []query.Row

	for r.HasRow() {
		values := make([]interface{}, r.table.NumProjected(r.projection))
		for i := range values {
			v, err := r.Value(i)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		row := query.Row{RowID: r.RowID(), Values: values}

		if hasOrder {
			key := query.SortKey{}
			for _, ot := range sel.OrderBy {
				ref, ok := ot.Expr.(*parser.ColumnRef)
				if !ok {
					continue
				}
				ord := physicalOrdinal(r.table, ref.Name)
				v, _ := r.rows.Layout().Value(ord)
				key.Parts = append(key.Parts, anyOfValue(v))
				key.Desc = append(key.Desc, ot.Desc)
			}
			collector.Add(row, key)
		} else {
			rows = append(rows, row)
			if sortLimit >= 0 && len(rows) >= sortLimit {
				break
			}
		}

		if _, err := r.Next(); err != nil {
			return nil, err
		}
	}

	if hasOrder {
		rows = collector.Result()
	}
	if offset > 0 && offset < len(rows) {
		rows = rows[offset:]
	} else if offset >= len(rows) {
		rows = nil
	}
	if limit >= 0 && limit < len(rows) {
		rows = rows[:limit]
	}

	pos := -1
	if len(rows) > 0 {
		pos = 0
	}
	return (&materializedReader{rows: rows, pos: pos}).asReader(r.columns), nil
}

func anyOfValue(v storage.Value) interface{} {
	switch v.Kind {
	case storage.KindIntegral:
		return v.Integer
	case storage.KindReal:
		return v.Real
	default:
		return v.String()
	}
}

// materializedReader backs a Reader once rows have been sorted/sliced
// into memory; it satisfies the same Next/Value/RowID surface by
// delegating to a small adapter rather than duplicating Reader's
// field set.
type materializedReader struct {
	rows []query.Row
	pos  int
}

func (m *materializedReader) asReader(columns []string) *Reader {
	return &Reader{table: nil, rows: nil, projection: nil, columns: columns, materialized: m}
}

// Transaction is the unit of work for mutating statements: Insert,
// Update, and Delete all run against the same copy-on-write shadow
// until Commit flushes it.
type Transaction struct {
	db *Database
	tx *storage.Transaction
}

func (db *Database) BeginTransaction() (*Transaction, error) {
	tx, err := db.core.BeginTransaction(true)
	if err != nil {
		return nil, err
	}
	return &Transaction{db: db, tx: tx}, nil
}

func (t *Transaction) Commit() error   { return t.tx.Commit() }
func (t *Transaction) Rollback() error { return t.tx.Rollback() }

// Query runs a SELECT against this transaction's own uncommitted
// shadow, so a caller reads its own writes before Commit.
func (t *Transaction) Query(sql string, params map[string]Value) (*Reader, error) {
	stmt, err := parser.Parse(sql)
	if err != nil {
		return nil, err
	}
	sel, ok := stmt.(*parser.SelectStmt)
	if !ok {
		return nil, fmt.Errorf("Query only accepts SELECT statements")
	}
	return t.db.querySelect(t.tx.Source(), sel, params)
}

// Exec runs a non-SELECT statement against this transaction rather
// than opening a new one, so multiple statements can be grouped into
// one atomic unit by the caller.
func (t *Transaction) Exec(sqlText string, params map[string]Value) (ExecResult, error) {
	stmt, err := parser.Parse(sqlText)
	if err != nil {
		return ExecResult{}, err
	}
	switch s := stmt.(type) {
	case *parser.InsertStmt:
		return t.db.execInsertTx(t, s, params)
	case *parser.UpdateStmt:
		return t.db.execUpdateTx(t, s, params)
	case *parser.DeleteStmt:
		return t.db.execDeleteTx(t, s, params)
	default:
		return ExecResult{}, fmt.Errorf("unsupported statement type %T inside a transaction", stmt)
	}
}

// Insert encodes values into a record and appends it to table,
// returning the assigned rowid (max existing rowid + 1, matching the
// table b-tree's monotonic-rowid convention).
func (t *Transaction) Insert(table string, values map[string]Value) (int64, error) {
	tbl, ok := t.db.schema.Table(table)
	if !ok {
		return 0, storage.SchemaNotFound(table)
	}
	record := make([]storage.Value, len(tbl.Physical))
	for i := range record {
		record[i] = storage.NullValue()
	}
	for name, v := range values {
		for i, p := range tbl.Physical {
			if p.LogicalCol < len(tbl.Columns) && tbl.Columns[p.LogicalCol].Name == name {
				record[i] = v
			}
		}
	}

	rowID, err := t.tx.Mutator().GetMaxRowID(tbl.RootPage)
	if err != nil {
		return 0, err
	}
	rowID++

	payload := storage.EncodeRecord(record)
	if err := t.tx.Mutator().InsertTableRow(tbl.RootPage, rowID, payload); err != nil {
		return 0, err
	}
	return rowID, nil
}

func (t *Transaction) Update(table string, rowid int64, values map[string]Value) error {
	tbl, ok := t.db.schema.Table(table)
	if !ok {
		return storage.SchemaNotFound(table)
	}

	cur := storage.NewCursor(t.tx.Source(), tbl.RootPage, true)
	found, err := cur.SeekTableRowID(rowid)
	if err != nil {
		return err
	}
	record := make([]storage.Value, len(tbl.Physical))
	if found {
		cellBytes, err := cur.Current()
		if err != nil {
			return err
		}
		cell, err := storage.ParseLeafTableCell(t.tx.Source().PageSize(), cellBytes)
		if err != nil {
			return err
		}
		layout, err := storage.ParseRecordHeader(cell.InlinePayload)
		if err != nil {
			return err
		}
		for i := range record {
			record[i], _ = layout.Value(i)
		}
	}
	for name, v := range values {
		for i, p := range tbl.Physical {
			if p.LogicalCol < len(tbl.Columns) && tbl.Columns[p.LogicalCol].Name == name {
				record[i] = v
			}
		}
	}
	return t.tx.Mutator().UpdateTableRow(tbl.RootPage, rowid, storage.EncodeRecord(record))
}

func (t *Transaction) Delete(table string, rowid int64) error {
	tbl, ok := t.db.schema.Table(table)
	if !ok {
		return storage.SchemaNotFound(table)
	}
	_, err := t.tx.Mutator().DeleteTableRow(tbl.RootPage, rowid)
	return err
}
