package dbx

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openRecordsDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE records (path TEXT PRIMARY KEY, value TEXT NOT NULL);`)
	require.NoError(t, err)
	return db
}

func countRecords(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&n))
	return n
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	db := openRecordsDB(t)

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO records(path, value) VALUES ('chats/c1', '{}')`)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countRecords(t, db))
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	db := openRecordsDB(t)

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		_, e := tx.ExecContext(ctx, `INSERT INTO records(path, value) VALUES ('chats/c1', '{}')`)
		require.NoError(t, e)
		return errors.New("boom")
	})
	require.EqualError(t, err, "boom")
	assert.Equal(t, 0, countRecords(t, db))
}

func TestWithTx_RollsBackAndRethrowsPanic(t *testing.T) {
	db := openRecordsDB(t)

	require.PanicsWithValue(t, "kaput", func() {
		_ = WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
			_, e := tx.ExecContext(ctx, `INSERT INTO records(path, value) VALUES ('chats/c1', '{}')`)
			require.NoError(t, e)
			panic("kaput")
		})
	})
	assert.Equal(t, 0, countRecords(t, db))
}

func TestWithTx_BeginErrorOnClosedDB(t *testing.T) {
	db := openRecordsDB(t)
	require.NoError(t, db.Close())

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		return nil
	})
	require.Error(t, err)
}

func TestRebind(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		in      string
		want    string
	}{
		{"sqlite untouched", DialectSQLite, "SELECT value FROM records WHERE path = ?", "SELECT value FROM records WHERE path = ?"},
		{"postgres numbered", DialectPostgres, "INSERT INTO records(path, value) VALUES (?, ?)", "INSERT INTO records(path, value) VALUES ($1, $2)"},
		{"quoted marks kept", DialectPostgres, "SELECT '?' FROM records WHERE path LIKE ?", "SELECT '?' FROM records WHERE path LIKE $1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Rebind(tt.dialect, tt.in))
		})
	}
}

func TestDialect_DriverName(t *testing.T) {
	assert.Equal(t, "sqlite", DialectSQLite.DriverName())
	assert.Equal(t, "pgx", DialectPostgres.DriverName())
}
