package driver

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type DriverTestSuite struct {
	suite.Suite
	a *require.Assertions
	db *sql.DB
}

func (s *DriverTestSuite) SetupTest() {
	s.a = require.New(s.T())

	db, err := sql.Open("pagestore", ":memory:")
	s.a.NoError(err)
	// an in-memory database only exists inside the Conn that created
	// it, so every statement in this test needs to land on that same
	// connection.
	db.SetMaxOpenConns(1)
	s.db = db
}

func (s *DriverTestSuite) TearDownTest() {
	s.a.NoError(s.db.Close())
}

func TestDriverTestSuite(t *testing.T) {
	suite.Run(t, new(DriverTestSuite))
}

func (s *DriverTestSuite) TestDriver_Exec() {
	res, err := s.db.Exec("CREATE TABLE foo (name TEXT)")
	s.a.NoError(err)
	s.a.NotNil(res)

	res, err = s.db.Exec("INSERT INTO foo (name) VALUES ('bar')")
	s.a.NoError(err)
	s.a.NotNil(res)
	affected, err := res.RowsAffected()
	s.a.NoError(err)
	s.a.EqualValues(1, affected)

	rows, err := s.db.Query("SELECT name FROM foo WHERE name = 'bar'")
	s.a.NoError(err)
	s.a.NotNil(rows)
	defer rows.Close()

	var name string
	for rows.Next() {
		s.a.NoError(rows.Scan(&name))
	}
	s.a.Equal("bar", name)
}

func (s *DriverTestSuite) TestDriver_Transaction() {
	_, err := s.db.Exec("CREATE TABLE foo (name TEXT)")
	s.a.NoError(err)

	tx, err := s.db.Begin()
	s.a.NoError(err)

	_, err = tx.Exec("INSERT INTO foo (name) VALUES ('bar')")
	s.a.NoError(err)

	rows, err := tx.Query("SELECT name FROM foo WHERE name = 'bar'")
	s.a.NoError(err)

	var name string
	for rows.Next() {
		s.a.NoError(rows.Scan(&name))
	}
	s.a.Equal("bar", name)
	s.a.NoError(rows.Close())

	s.a.NoError(tx.Commit())

	rows, err = s.db.Query("SELECT name FROM foo WHERE name = 'bar'")
	s.a.NoError(err)
	defer rows.Close()

	var committedName string
	for rows.Next() {
		s.a.NoError(rows.Scan(&committedName))
	}
	s.a.Equal("bar", committedName)
}

func (s *DriverTestSuite) TestDriver_Transaction_Rollback() {
	_, err := s.db.Exec("CREATE TABLE foo (name TEXT)")
	s.a.NoError(err)

	tx, err := s.db.Begin()
	s.a.NoError(err)

	_, err = tx.Exec("INSERT INTO foo (name) VALUES ('bar')")
	s.a.NoError(err)

	rows, err := tx.Query("SELECT name FROM foo WHERE name = 'bar'")
	s.a.NoError(err)

	var name string
	for rows.Next() {
		s.a.NoError(rows.Scan(&name))
	}
	s.a.Equal("bar", name)
	s.a.NoError(rows.Close())

	s.a.NoError(tx.Rollback())

	rows, err = s.db.Query("SELECT name FROM foo WHERE name = 'bar'")
	s.a.NoError(err)
	defer rows.Close()
	s.a.False(rows.Next())
}

func (s *DriverTestSuite) TestDriver_BoundParameters() {
	_, err := s.db.Exec("CREATE TABLE widgets (id INTEGER PRIMARY KEY, label TEXT)")
	s.a.NoError(err)

	_, err = s.db.Exec("INSERT INTO widgets (id, label) VALUES (?, ?)", 1, "sprocket")
	s.a.NoError(err)

	rows, err := s.db.Query("SELECT label FROM widgets WHERE id = ?", 1)
	s.a.NoError(err)
	defer rows.Close()

	var label string
	s.a.True(rows.Next())
	s.a.NoError(rows.Scan(&label))
	s.a.Equal("sprocket", label)
}
