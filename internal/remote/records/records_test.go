package records

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/chatsync/internal/dbx"
	"github.com/dmitrijs2005/chatsync/internal/logging"
	"github.com/dmitrijs2005/chatsync/internal/remote"
	"github.com/dmitrijs2005/chatsync/internal/remote/storetest"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), dbx.DialectSQLite, ":memory:", logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConformance_SQLite(t *testing.T) {
	storetest.Run(t, func(t *testing.T) remote.Store { return openSQLite(t) })
}

func TestScalarAncestorIsReplaced(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "users/u1/status", []byte(`"online"`)))
	require.NoError(t, s.Put(ctx, "users/u1/status/detail", []byte(`"busy"`)))
	require.NoError(t, s.Delete(ctx, "users/u1/status/detail"))

	_, err := s.Get(ctx, "users/u1")
	require.Error(t, err)
}

func TestPing_SQLite(t *testing.T) {
	require.NoError(t, openSQLite(t).Ping(context.Background()))
}

func TestRunMigrations_UsesDialectDir(t *testing.T) {
	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	var dir string
	gooseUpContext = func(ctx context.Context, db *sql.DB, d string, opts ...goose.OptionsFunc) error {
		dir = d
		return nil
	}

	require.NoError(t, RunMigrations(context.Background(), nil, dbx.DialectPostgres))
	assert.Equal(t, "migrations/postgres", dir)

	require.NoError(t, RunMigrations(context.Background(), nil, dbx.DialectSQLite))
	assert.Equal(t, "migrations/sqlite", dir)
}

func newPostgresRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(db, dbx.DialectPostgres), mock
}

func TestRepositoryGet_Postgres(t *testing.T) {
	repo, mock := newPostgresRepo(t)

	q := `(?s)^SELECT path, value FROM records WHERE path IN \(\$1, \$2\) OR substr\(path, 1, \$3\) = \$4$`
	rows := sqlmock.NewRows([]string{"path", "value"}).
		AddRow("chats/c1/lastMessage", `{"id":"m1"}`).
		AddRow("chats/c1", `{"name":"Bob"}`)
	mock.ExpectQuery(q).WithArgs("chats", "chats/c1", 9, "chats/c1/").WillReturnRows(rows)

	got, ok, err := repo.Get(context.Background(), "chats/c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"name":"Bob","lastMessage":{"id":"m1"}}`, string(got))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGet_DBError(t *testing.T) {
	repo, mock := newPostgresRepo(t)

	mock.ExpectQuery(`SELECT path, value FROM records`).WillReturnError(errors.New("db down"))

	_, _, err := repo.Get(context.Background(), "users/u1")
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestRepositoryRemove_StripsAncestor(t *testing.T) {
	repo, mock := newPostgresRepo(t)

	mock.ExpectExec(`^DELETE FROM records WHERE path = \$1 OR substr\(path, 1, \$2\) = \$3$`).
		WithArgs("chats/c1", 9, "chats/c1/").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`^SELECT path, value FROM records WHERE path IN \(\$1\)$`).
		WithArgs("chats").
		WillReturnRows(sqlmock.NewRows([]string{"path", "value"}).
			AddRow("chats", `{"c1":{"id":"c1"},"c2":{"id":"c2"}}`))
	mock.ExpectExec(`^UPDATE records SET value = \$1, updated_at = CURRENT_TIMESTAMP WHERE path = \$2$`).
		WithArgs(`{"c2":{"id":"c2"}}`, "chats").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Remove(context.Background(), "chats/c1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryRemove_DropsEmptiedAncestor(t *testing.T) {
	repo, mock := newPostgresRepo(t)

	mock.ExpectExec(`^DELETE FROM records WHERE path = \$1 OR`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`^SELECT path, value FROM records WHERE path IN \(\$1\)$`).
		WillReturnRows(sqlmock.NewRows([]string{"path", "value"}).AddRow("chats", `{"c1":{"id":"c1"}}`))
	mock.ExpectExec(`^DELETE FROM records WHERE path = \$1$`).
		WithArgs("chats").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Remove(context.Background(), "chats/c1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryWrite_InsertError(t *testing.T) {
	repo, mock := newPostgresRepo(t)

	mock.ExpectExec(`^DELETE FROM records WHERE path = \$1 OR`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`^INSERT INTO records \(path, value\) VALUES \(\$1, \$2\)$`).
		WithArgs("users", `{"u1":{}}`).
		WillReturnError(errors.New("constraint"))

	err := repo.Write(context.Background(), "users", []byte(`{"u1":{}}`))
	if err == nil || !regexp.MustCompile(`db error: .*constraint`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}
