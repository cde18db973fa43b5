package pagestore

import (
	"fmt"

	"github.com/pagestore/pagestore/internal/filter"
	"github.com/pagestore/pagestore/internal/parser"
	"github.com/pagestore/pagestore/internal/query"
	"github.com/pagestore/pagestore/internal/schema"
	"github.com/pagestore/pagestore/internal/storage"
)

// ExecResult reports the effect of a non-SELECT statement, mirroring
// what the teacher's interpret package returns from doInsert/doUpdate
// before handing control back to the connection layer.
type ExecResult struct {
	LastInsertID int64
	RowsAffected int64
}

// Exec parses sqlText and runs it as a single write transaction:
// INSERT/UPDATE/DELETE mutate rows, CREATE/DROP mutate the schema
// catalog. SELECT is rejected; callers that may receive either kind
// of statement should try Query first. Every path commits or rolls
// back for itself, so callers never see a dangling transaction.
func (db *Database) Exec(sqlText string, params map[string]Value) (ExecResult, error) {
	stmt, err := parser.Parse(sqlText)
	if err != nil {
		return ExecResult{}, err
	}

	switch s := stmt.(type) {
	case *parser.InsertStmt:
		return db.execInsert(s, params)
	case *parser.UpdateStmt:
		return db.execUpdate(s, params)
	case *parser.DeleteStmt:
		return db.execDelete(s, params)
	case *parser.CreateTableStmt:
		return ExecResult{}, db.execCreateTable(s)
	case *parser.CreateIndexStmt:
		return ExecResult{}, db.execCreateIndex(s)
	case *parser.DropTableStmt:
		return ExecResult{}, db.execDropTable(s)
	case *parser.DropIndexStmt:
		return ExecResult{}, db.execDropIndex(s)
	case *parser.SelectStmt:
		return ExecResult{}, fmt.Errorf("Exec does not accept SELECT; use Query")
	default:
		return ExecResult{}, fmt.Errorf("unsupported statement type %T", stmt)
	}
}

func exprToValue(e parser.Expr, params map[string]Value) (Value, error) {
	switch v := e.(type) {
	case *parser.Literal:
		switch v.Kind {
		case parser.LitNull:
			return NullValue(), nil
		case parser.LitInt:
			return IntegerValue(v.Int), nil
		case parser.LitFloat:
			return RealValue(v.Float), nil
		default:
			return TextValue(v.Text), nil
		}
	case *parser.UnaryExpr:
		inner, err := exprToValue(v.Operand, params)
		if err != nil {
			return Value{}, err
		}
		if v.Op == parser.TokMinus {
			switch inner.Kind {
			case storage.KindIntegral:
				return IntegerValue(-inner.Integer), nil
			case storage.KindReal:
				return RealValue(-inner.Real), nil
			}
		}
		return inner, nil
	case *parser.Param:
		val, ok := params[v.Name]
		if !ok {
			return Value{}, fmt.Errorf("no value bound for parameter %q", v.Name)
		}
		return val, nil
	default:
		return Value{}, fmt.Errorf("expression of type %T is not a constant", e)
	}
}

// execInsert opens its own transaction and delegates to execInsertTx,
// committing on success and rolling back on any failure.
func (db *Database) execInsert(s *parser.InsertStmt, params map[string]Value) (ExecResult, error) {
	tx, err := db.BeginTransaction()
	if err != nil {
		return ExecResult{}, err
	}
	res, err := db.execInsertTx(tx, s, params)
	if err != nil {
		tx.Rollback()
		return ExecResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return ExecResult{}, err
	}
	return res, nil
}

// execInsertTx maps an INSERT's column list (or the table's declared
// order, when none is given) onto its VALUES tuple and delegates to
// Transaction.Insert for the actual record encode/b-tree write,
// running inside an already-open transaction so callers can group
// several statements atomically.
func (db *Database) execInsertTx(tx *Transaction, s *parser.InsertStmt, params map[string]Value) (ExecResult, error) {
	t, ok := db.schema.Table(s.Table)
	if !ok {
		return ExecResult{}, storage.SchemaNotFound(s.Table)
	}
	columns := s.Columns
	if len(columns) == 0 {
		for _, c := range t.Columns {
			columns = append(columns, c.Name)
		}
	}
	if len(columns) != len(s.Values) {
		return ExecResult{}, fmt.Errorf("%d values for %d columns", len(s.Values), len(columns))
	}

	values := make(map[string]Value, len(columns))
	for i, name := range columns {
		v, err := exprToValue(s.Values[i], params)
		if err != nil {
			return ExecResult{}, err
		}
		values[name] = v
	}

	rowID, err := tx.Insert(s.Table, values)
	if err != nil {
		return ExecResult{}, err
	}
	if err := db.updateIndexesForRow(tx, t, rowID, false); err != nil {
		return ExecResult{}, err
	}
	return ExecResult{LastInsertID: rowID, RowsAffected: 1}, nil
}

// matchingRowIDs streams table with an optional compiled WHERE filter
// and collects every satisfying rowid up front, so UPDATE/DELETE can
// mutate the tree afterward without a live cursor watching the pages
// they're about to rewrite.
func (db *Database) matchingRowIDs(src storage.PageSource, t *schema.Table, where parser.Expr, params map[string]Value) ([]int64, error) {
	rows := query.NewReader(src, t)
	var program *filter.Program
	if where != nil {
		p, err := filter.Compile(where, columnResolverFor(t))
		if err != nil {
			return nil, err
		}
		program = p
	}

	var out []int64
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
			out = append(out, rows.RowID())
		}
		ok, err = rows.Next()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (db *Database) execUpdate(s *parser.UpdateStmt, params map[string]Value) (ExecResult, error) {
	tx, err := db.BeginTransaction()
	if err != nil {
		return ExecResult{}, err
	}
	res, err := db.execUpdateTx(tx, s, params)
	if err != nil {
		tx.Rollback()
		return ExecResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return ExecResult{}, err
	}
	return res, nil
}

func (db *Database) execUpdateTx(tx *Transaction, s *parser.UpdateStmt, params map[string]Value) (ExecResult, error) {
	t, ok := db.schema.Table(s.Table)
	if !ok {
		return ExecResult{}, storage.SchemaNotFound(s.Table)
	}

	rowIDs, err := db.matchingRowIDs(tx.tx.Source(), t, s.Where, params)
	if err != nil {
		return ExecResult{}, err
	}

	values := make(map[string]Value, len(s.Assign))
	for _, a := range s.Assign {
		v, err := exprToValue(a.Value, params)
		if err != nil {
			return ExecResult{}, err
		}
		values[a.Column] = v
	}

	for _, rowID := range rowIDs {
		if err := tx.Update(s.Table, rowID, values); err != nil {
			return ExecResult{}, err
		}
	}
	return ExecResult{RowsAffected: int64(len(rowIDs))}, nil
}

func (db *Database) execDelete(s *parser.DeleteStmt, params map[string]Value) (ExecResult, error) {
	tx, err := db.BeginTransaction()
	if err != nil {
		return ExecResult{}, err
	}
	res, err := db.execDeleteTx(tx, s, params)
	if err != nil {
		tx.Rollback()
		return ExecResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return ExecResult{}, err
	}
	return res, nil
}

func (db *Database) execDeleteTx(tx *Transaction, s *parser.DeleteStmt, params map[string]Value) (ExecResult, error) {
	t, ok := db.schema.Table(s.Table)
	if !ok {
		return ExecResult{}, storage.SchemaNotFound(s.Table)
	}

	rowIDs, err := db.matchingRowIDs(tx.tx.Source(), t, s.Where, params)
	if err != nil {
		return ExecResult{}, err
	}
	for _, rowID := range rowIDs {
		if err := tx.Delete(s.Table, rowID); err != nil {
			return ExecResult{}, err
		}
	}
	return ExecResult{RowsAffected: int64(len(rowIDs))}, nil
}

func (db *Database) execCreateTable(s *parser.CreateTableStmt) error {
	if _, ok := db.schema.Table(s.Table); ok {
		return fmt.Errorf("table %q already exists", s.Table)
	}

	tx, err := db.core.BeginTransaction(true)
	if err != nil {
		return err
	}
	rootPage, err := tx.Mutator().AllocateRootPage(storage.PageTypeLeafTable)
	if err != nil {
		tx.Rollback()
		return err
	}
	nextRowID, err := tx.Mutator().GetMaxRowID(1)
	if err != nil {
		tx.Rollback()
		return err
	}
	if err := schema.CreateTable(tx.Mutator(), db.schema, s.Table, s.RawSQL, columnsFromAST(s.Columns), rootPage, nextRowID+1); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// execCreateIndex allocates the index's own b-tree, registers it in
// the schema catalog, and, when the base table already has rows,
// performs the initial bulk build spec.md §4.5 requires: scan the
// base table once and insert one index record per row.
func (db *Database) execCreateIndex(s *parser.CreateIndexStmt) error {
	t, ok := db.schema.Table(s.Table)
	if !ok {
		return storage.SchemaNotFound(s.Table)
	}

	tx, err := db.core.BeginTransaction(true)
	if err != nil {
		return err
	}
	rootPage, err := tx.Mutator().AllocateRootPage(storage.PageTypeLeafIndex)
	if err != nil {
		tx.Rollback()
		return err
	}
	nextRowID, err := tx.Mutator().GetMaxRowID(1)
	if err != nil {
		tx.Rollback()
		return err
	}
	if err := schema.CreateIndex(tx.Mutator(), db.schema, s.Index, s.RawSQL, s.Table, s.Columns, rootPage, nextRowID+1); err != nil {
		tx.Rollback()
		return err
	}

	ordinals := make([]int, len(s.Columns))
	for i, name := range s.Columns {
		ord := physicalOrdinal(t, name)
		if ord < 0 {
			tx.Rollback()
			return fmt.Errorf("unknown column %q on table %q", name, s.Table)
		}
		ordinals[i] = ord
	}

	rows := query.NewReader(tx.Source(), t)
	ok2, err := rows.Rewind()
	if err != nil {
		tx.Rollback()
		return err
	}
	for ok2 {
		keyValues := make([]storage.Value, len(ordinals))
		for i, ord := range ordinals {
			v, err := rows.Layout().Value(ord)
			if err != nil {
				tx.Rollback()
				return err
			}
			keyValues[i] = v
		}
		keyPayload := storage.EncodeIndexKey(keyValues, rows.RowID())
		if err := tx.Mutator().InsertIndexRow(rootPage, keyPayload); err != nil {
			tx.Rollback()
			return err
		}
		ok2, err = rows.Next()
		if err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (db *Database) execDropTable(s *parser.DropTableStmt) error {
	tx, err := db.core.BeginTransaction(true)
	if err != nil {
		return err
	}
	if err := schema.DropTable(tx.Source(), tx.Mutator(), db.schema, s.Table); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (db *Database) execDropIndex(s *parser.DropIndexStmt) error {
	tx, err := db.core.BeginTransaction(true)
	if err != nil {
		return err
	}
	if err := schema.DropIndex(tx.Source(), tx.Mutator(), db.schema, s.Index); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// updateIndexesForRow keeps every index on table in sync with a
// just-inserted row. CREATE INDEX builds entries for the rows already
// present; UPDATE and DELETE do not call this, so an index's entries
// stop matching the table once an indexed row is updated or deleted.
func (db *Database) updateIndexesForRow(tx *Transaction, t *schema.Table, rowID int64, _ bool) error {
	for _, idx := range db.schema.IndexesOn(t.Name) {
		ordinals := make([]int, len(idx.Columns))
		for i, name := range idx.Columns {
			ord := physicalOrdinal(t, name)
			if ord < 0 {
				return fmt.Errorf("index %q references unknown column %q", idx.Name, name)
			}
			ordinals[i] = ord
		}
		cur := storage.NewCursor(tx.tx.Source(), t.RootPage, true)
		if _, err := cur.SeekTableRowID(rowID); err != nil {
			return err
		}
		cellBytes, err := cur.Current()
		if err != nil {
			return err
		}
		cell, err := storage.ParseLeafTableCell(tx.tx.Source().PageSize(), cellBytes)
		if err != nil {
			return err
		}
		layout, err := storage.ParseRecordHeader(cell.InlinePayload)
		if err != nil {
			return err
		}
		keyValues := make([]storage.Value, len(ordinals))
		for i, ord := range ordinals {
			v, err := layout.Value(ord)
			if err != nil {
				return err
			}
			keyValues[i] = v
		}
		keyPayload := storage.EncodeIndexKey(keyValues, rowID)
		if err := tx.tx.Mutator().InsertIndexRow(idx.RootPage, keyPayload); err != nil {
			return err
		}
	}
	return nil
}
