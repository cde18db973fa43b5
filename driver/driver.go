// Package driver registers an in-process database/sql driver in front
// of the root pagestore package, so callers reach the embedded engine
// through the standard library's database/sql API instead of talking
// to pagestore.Database directly.
package driver

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"

	"github.com/pagestore/pagestore"
)

func init() {
	sql.Register("pagestore", &PageStoreDriver{})
}

// PageStoreDriver opens a new *pagestore.Database for every Conn it
// hands out (see Open); two Conns never share one Database handle.
type PageStoreDriver struct{}

// Open opens dsn as a pagestore database. An empty dsn or ":memory:"
// opens a purely in-process database; anything else is treated as a
// file path.
//
// database/sql pools connections and may call Open more than once for
// the same dsn; for a file path that's harmless (every Conn sees the
// same file), but for ":memory:" each Open starts an independent,
// empty database. Callers that want a shared in-memory database
// across a *sql.DB must pin it to a single connection with
// db.SetMaxOpenConns(1), the same restriction SQLite's own in-memory
// mode imposes on its drivers.
func (d *PageStoreDriver) Open(dsn string) (driver.Conn, error) {
	db, err := openDSN(dsn)
	if err != nil {
		return nil, err
	}
	return &PageStoreConn{db: db}, nil
}

func openDSN(dsn string) (*pagestore.Database, error) {
	if dsn == "" || dsn == ":memory:" {
		return pagestore.OpenMemory(nil, pagestore.Options{})
	}
	return pagestore.Open(dsn, pagestore.Options{})
}

// PageStoreConn is a database/sql connection backed by a single
// pagestore.Database. It has no network socket to keep alive; Close
// just releases the underlying file handle.
type PageStoreConn struct {
	db *pagestore.Database
	tx *pagestore.Transaction
}

func (c *PageStoreConn) Prepare(query string) (driver.Stmt, error) {
	return &PageStoreStmt{conn: c, query: query}, nil
}

func (c *PageStoreConn) Close() error {
	return c.db.Close()
}

// Begin starts a write transaction. Reads and writes issued through
// the returned Tx's statements run against that transaction's own
// shadow rather than opening a fresh one per statement, so a caller
// observes its own uncommitted writes.
func (c *PageStoreConn) Begin() (driver.Tx, error) {
	tx, err := c.db.BeginTransaction()
	if err != nil {
		return nil, err
	}
	c.tx = tx
	return &PageStoreTx{conn: c}, nil
}

// PageStoreStmt defers parsing/binding until Exec/Query, since the
// engine has no separate prepare step of its own to delegate to.
type PageStoreStmt struct {
	conn  *PageStoreConn
	query string
}

func (s *PageStoreStmt) Close() error { return nil }

// NumInput reports -1: bare "?" placeholders are numbered ?1, ?2, ...
// by the lexer, but database/sql only tells drivers the positional
// count when NumInput is non-negative, and named (":name") params
// make a fixed count meaningless anyway.
func (s *PageStoreStmt) NumInput() int { return -1 }

func bindParams(args []driver.Value) map[string]pagestore.Value {
	params := make(map[string]pagestore.Value, len(args))
	for i, a := range args {
		params[fmt.Sprintf("?%d", i+1)] = toStorageValue(a)
	}
	return params
}

func toStorageValue(a driver.Value) pagestore.Value {
	switch v := a.(type) {
	case nil:
		return pagestore.NullValue()
	case int64:
		return pagestore.IntegerValue(v)
	case float64:
		return pagestore.RealValue(v)
	case []byte:
		return pagestore.BlobValue(v)
	case string:
		return pagestore.TextValue(v)
	case bool:
		if v {
			return pagestore.IntegerValue(1)
		}
		return pagestore.IntegerValue(0)
	default:
		return pagestore.TextValue(fmt.Sprintf("%v", v))
	}
}

func (s *PageStoreStmt) Exec(args []driver.Value) (driver.Result, error) {
	params := bindParams(args)
	var res pagestore.ExecResult
	var err error
	if s.conn.tx != nil {
		res, err = s.conn.tx.Exec(s.query, params)
	} else {
		res, err = s.conn.db.Exec(s.query, params)
	}
	if err != nil {
		return nil, err
	}
	return &PageStoreResult{lastInsertID: res.LastInsertID, rowsAffected: res.RowsAffected}, nil
}

func (s *PageStoreStmt) Query(args []driver.Value) (driver.Rows, error) {
	params := bindParams(args)
	var reader *pagestore.Reader
	var err error
	if s.conn.tx != nil {
		reader, err = s.conn.tx.Query(s.query, params)
	} else {
		reader, err = s.conn.db.Query(s.query, params)
	}
	if err != nil {
		return nil, err
	}
	return &PageStoreRows{reader: reader}, nil
}

type PageStoreTx struct {
	conn *PageStoreConn
}

func (t *PageStoreTx) Commit() error {
	err := t.conn.tx.Commit()
	t.conn.tx = nil
	return err
}

func (t *PageStoreTx) Rollback() error {
	err := t.conn.tx.Rollback()
	t.conn.tx = nil
	return err
}

type PageStoreResult struct {
	lastInsertID int64
	rowsAffected int64
}

func (r *PageStoreResult) LastInsertId() (int64, error) { return r.lastInsertID, nil }
func (r *PageStoreResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

// PageStoreRows wraps a pagestore.Reader. A Reader is positioned on
// its first matching row as soon as it's created (CreateReader/Query
// already advance past any rows the filter rejects, and HasRow
// reports false outright for an empty result), so Next reads the
// pending row first and only advances afterward for the next call.
type PageStoreRows struct {
	reader *pagestore.Reader
}

func (r *PageStoreRows) Columns() []string { return r.reader.Columns() }

func (r *PageStoreRows) Close() error { return nil }

func (r *PageStoreRows) Next(dest []driver.Value) error {
	if !r.reader.HasRow() {
		return io.EOF
	}

	for i := range dest {
		v, err := r.reader.Value(i)
		if err != nil {
			return err
		}
		dv, err := toDriverValue(v)
		if err != nil {
			return err
		}
		dest[i] = dv
	}

	if _, err := r.reader.Next(); err != nil {
		return err
	}
	return nil
}

func toDriverValue(v interface{}) (driver.Value, error) {
	switch val := v.(type) {
	case pagestore.Value:
		switch val.Kind {
		case pagestore.KindNull:
			return nil, nil
		case pagestore.KindIntegral:
			return val.Integer, nil
		case pagestore.KindReal:
			return val.Real, nil
		case pagestore.KindText:
			return val.String(), nil
		case pagestore.KindBlob:
			return append([]byte(nil), val.Bytes...), nil
		}
		return nil, fmt.Errorf("unrecognized value kind %d", val.Kind)
	case [16]byte:
		return append([]byte(nil), val[:]...), nil
	case nil:
		return nil, nil
	case int64, float64, string, []byte, bool:
		return val, nil
	default:
		return fmt.Sprintf("%v", val), nil
	}
}

var (
	_ driver.Driver = (*PageStoreDriver)(nil)
	_ driver.Conn   = (*PageStoreConn)(nil)
	_ driver.Stmt   = (*PageStoreStmt)(nil)
	_ driver.Tx     = (*PageStoreTx)(nil)
	_ driver.Result = (*PageStoreResult)(nil)
	_ driver.Rows   = (*PageStoreRows)(nil)
)
