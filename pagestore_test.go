package pagestore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pagestore/pagestore/internal/storage"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := OpenMemory(nil, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCreateTableInsertSelect(t *testing.T) {
	r := require.New(t)
	db := openTestDB(t)

	_, err := db.Exec("CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)", nil)
	r.NoError(err)

	res, err := db.Exec("INSERT INTO widgets (id, name) VALUES (1, 'sprocket')", nil)
	r.NoError(err)
	r.Equal(int64(1), res.RowsAffected)

	reader, err := db.Query("SELECT id, name FROM widgets", nil)
	r.NoError(err)
	r.True(reader.HasRow())

	id, err := reader.Value(0)
	r.NoError(err)
	r.Equal(storage.IntegerValue(1), id)

	name, err := reader.Value(1)
	r.NoError(err)
	r.Equal(storage.TextValueString("sprocket"), name)

	ok, err := reader.Next()
	r.NoError(err)
	r.False(ok)
	r.False(reader.HasRow())
}

func TestQuery_EmptyResultHasNoRow(t *testing.T) {
	r := require.New(t)
	db := openTestDB(t)

	_, err := db.Exec("CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)", nil)
	r.NoError(err)

	reader, err := db.Query("SELECT id FROM widgets WHERE id = 99", nil)
	r.NoError(err)
	r.False(reader.HasRow())
}

func TestQuery_WhereFilterMatchesZeroOfManyRows(t *testing.T) {
	r := require.New(t)
	db := openTestDB(t)

	_, err := db.Exec("CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)", nil)
	r.NoError(err)
	for i := int64(1); i <= 3; i++ {
		_, err := db.Exec("INSERT INTO widgets (id, name) VALUES (?1, ?2)",
			map[string]Value{"?1": IntegerValue(i), "?2": TextValue("w")})
		r.NoError(err)
	}

	reader, err := db.Query("SELECT id FROM widgets WHERE name = 'nope'", nil)
	r.NoError(err)
	r.False(reader.HasRow())
}

func TestQuery_OrderByLimitMaterializesCorrectOrder(t *testing.T) {
	r := require.New(t)
	db := openTestDB(t)

	_, err := db.Exec("CREATE TABLE widgets (id INTEGER PRIMARY KEY, price INTEGER)", nil)
	r.NoError(err)
	prices := []int64{30, 10, 40, 20}
	for i, p := range prices {
		_, err := db.Exec("INSERT INTO widgets (id, price) VALUES (?1, ?2)",
			map[string]Value{"?1": IntegerValue(int64(i + 1)), "?2": IntegerValue(p)})
		r.NoError(err)
	}

	reader, err := db.Query("SELECT id, price FROM widgets ORDER BY price ASC LIMIT 2", nil)
	r.NoError(err)

	var got []int64
	for reader.HasRow() {
		v, err := reader.Value(1)
		r.NoError(err)
		got = append(got, v.(storage.Value).Integer)
		_, err = reader.Next()
		r.NoError(err)
	}
	r.Equal([]int64{10, 20}, got)
}

func TestUpdateAndDelete(t *testing.T) {
	r := require.New(t)
	db := openTestDB(t)

	_, err := db.Exec("CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)", nil)
	r.NoError(err)
	_, err = db.Exec("INSERT INTO widgets (id, name) VALUES (1, 'sprocket')", nil)
	r.NoError(err)

	res, err := db.Exec("UPDATE widgets SET name = 'gear' WHERE id = 1", nil)
	r.NoError(err)
	r.Equal(int64(1), res.RowsAffected)

	reader, err := db.Query("SELECT name FROM widgets WHERE id = 1", nil)
	r.NoError(err)
	r.True(reader.HasRow())
	name, err := reader.Value(0)
	r.NoError(err)
	r.Equal(storage.TextValueString("gear"), name)

	res, err = db.Exec("DELETE FROM widgets WHERE id = 1", nil)
	r.NoError(err)
	r.Equal(int64(1), res.RowsAffected)

	reader, err = db.Query("SELECT id FROM widgets", nil)
	r.NoError(err)
	r.False(reader.HasRow())
}

func TestTransaction_ReadsItsOwnWritesBeforeCommit(t *testing.T) {
	r := require.New(t)
	db := openTestDB(t)

	_, err := db.Exec("CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)", nil)
	r.NoError(err)

	tx, err := db.BeginTransaction()
	r.NoError(err)

	_, err = tx.Insert("widgets", map[string]Value{"id": IntegerValue(1), "name": TextValue("sprocket")})
	r.NoError(err)

	reader, err := tx.Query("SELECT name FROM widgets WHERE id = 1", nil)
	r.NoError(err)
	r.True(reader.HasRow())
	name, err := reader.Value(0)
	r.NoError(err)
	r.Equal(storage.TextValueString("sprocket"), name)

	r.NoError(tx.Commit())

	reader, err = db.Query("SELECT name FROM widgets WHERE id = 1", nil)
	r.NoError(err)
	r.True(reader.HasRow())
}

func TestTransaction_RollbackDiscardsWrites(t *testing.T) {
	r := require.New(t)
	db := openTestDB(t)

	_, err := db.Exec("CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)", nil)
	r.NoError(err)

	tx, err := db.BeginTransaction()
	r.NoError(err)
	_, err = tx.Insert("widgets", map[string]Value{"id": IntegerValue(1), "name": TextValue("sprocket")})
	r.NoError(err)
	r.NoError(tx.Rollback())

	reader, err := db.Query("SELECT id FROM widgets", nil)
	r.NoError(err)
	r.False(reader.HasRow())
}
