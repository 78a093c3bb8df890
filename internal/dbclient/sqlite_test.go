package dbclient

import (
	"context"
	"path/filepath"
	"testing"

	"dbai/internal/domain"
	"dbai/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T, path string) Conn {
	t.Helper()
	cfg := &domain.ConnectionConfig{
		ID:       "local",
		Driver:   domain.DatabaseDriverSQLite,
		Database: path,
		Options:  map[string]string{"create": "true"},
	}
	conn, err := NewSQLiteAdapter(testutil.NewTestLogger(t)).Connect(context.Background(), cfg, "")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(context.Background()) })
	return conn
}

func TestSQLite_MultipleStatementsRefused(t *testing.T) {
	conn := openSQLite(t, filepath.Join(t.TempDir(), "app.db"))
	ctx := context.Background()
	_, err := conn.Execute(ctx, Query{Text: "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)"})
	require.NoError(t, err)

	_, err = conn.Execute(ctx, Query{Text: "SELECT 1; DROP TABLE users"})
	assert.ErrorIs(t, err, domain.ErrQuerySyntax)

	cols, err := conn.ListCollections(ctx)
	require.NoError(t, err)
	require.Len(t, cols, 1, "users must survive")
	assert.Equal(t, "users", cols[0].Name)
}

func TestSQLite_ReturningRows(t *testing.T) {
	conn := openSQLite(t, filepath.Join(t.TempDir(), "app.db"))
	ctx := context.Background()
	_, err := conn.Execute(ctx, Query{Text: "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)"})
	require.NoError(t, err)

	res, err := conn.Execute(ctx, Query{Text: "INSERT INTO users (name) VALUES ('ada'), ('grace') RETURNING id, name"})
	require.NoError(t, err)
	assert.True(t, res.IsWrite)
	assert.Equal(t, int64(2), res.AffectedRows)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "grace", res.Rows[1][1])

	res, err = conn.Execute(ctx, Query{Text: "SELECT count(*) FROM users"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Rows[0][0], "returned rows are committed")
}

func TestSQLite_ReturningIgnoresLimit(t *testing.T) {
	conn := openSQLite(t, filepath.Join(t.TempDir(), "app.db"))
	ctx := context.Background()
	_, err := conn.Execute(ctx, Query{Text: "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)"})
	require.NoError(t, err)
	_, err = conn.Execute(ctx, Query{Text: "INSERT INTO users (name) VALUES ('a'), ('b'), ('c')"})
	require.NoError(t, err)

	res, err := conn.Execute(ctx, Query{Text: "DELETE FROM users RETURNING id", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.AffectedRows)
	assert.Len(t, res.Rows, 3)

	res, err = conn.Execute(ctx, Query{Text: "SELECT count(*) FROM users"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Rows[0][0])
}

func TestSQLite_MemoryDatabaseUsesOneConnection(t *testing.T) {
	conn := openSQLite(t, ":memory:")
	assert.Equal(t, 1, conn.(*sqlConn).db.Stats().MaxOpenConnections)

	ctx := context.Background()
	for _, q := range []string{
		"CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT)",
		"INSERT INTO notes (body) VALUES ('first')",
	} {
		_, err := conn.Execute(ctx, Query{Text: q})
		require.NoError(t, err, q)
	}

	res, err := conn.Execute(ctx, Query{Text: "SELECT body FROM notes"})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "first", res.Rows[0][0])
}

func TestSQLite_FileDatabaseKeepsPool(t *testing.T) {
	conn := openSQLite(t, filepath.Join(t.TempDir(), "app.db"))
	assert.Equal(t, 5, conn.(*sqlConn).db.Stats().MaxOpenConnections)
}
