// Package records is the SQL remote.Store used by the relay. Each written
// path is a row in the records table; reads assemble subtrees from the rows.
// SQLite (modernc.org/sqlite) and PostgreSQL (pgx) are supported.
package records

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/chatsync/internal/common"
	"github.com/dmitrijs2005/chatsync/internal/dbx"
	"github.com/dmitrijs2005/chatsync/internal/logging"
	"github.com/dmitrijs2005/chatsync/internal/remote"
	"github.com/dmitrijs2005/chatsync/internal/remote/hub"
	"github.com/dmitrijs2005/chatsync/internal/remote/tree"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

// goose keeps its base FS and dialect in package state.
var gooseMu sync.Mutex

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded schema for dialect.
func RunMigrations(ctx context.Context, db *sql.DB, dialect dbx.Dialect) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect(string(dialect)); err != nil {
		return err
	}
	dir := "migrations/sqlite"
	if dialect == dbx.DialectPostgres {
		dir = "migrations/postgres"
	}
	return gooseUpContext(ctx, db, dir)
}

type Store struct {
	db      *sql.DB
	dialect dbx.Dialect
	hub     *hub.Hub
	cancel  context.CancelFunc
	log     logging.Logger
}

var _ remote.Store = (*Store)(nil)

// Open connects to dsn, migrates the schema and starts the fan-out loop.
func Open(ctx context.Context, dialect dbx.Dialect, dsn string, log logging.Logger) (*Store, error) {
	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if dialect == dbx.DialectSQLite {
		// one writer, and ":memory:" is per connection
		db.SetMaxOpenConns(1)
	}

	if err := RunMigrations(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return New(db, dialect, log), nil
}

// New wraps an already migrated database.
func New(db *sql.DB, dialect dbx.Dialect, log logging.Logger) *Store {
	s := &Store{db: db, dialect: dialect, log: log.With("store", "records", "dialect", string(dialect))}
	s.hub = hub.New(s.snapshot, s.log)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.hub.Run(ctx)
	return s
}

// Close stops subscriptions and closes the database.
func (s *Store) Close() error {
	s.cancel()
	return s.db.Close()
}

func (s *Store) repo(db dbx.DBTX) *Repository {
	return NewRepository(db, s.dialect)
}

func (s *Store) snapshot(ctx context.Context, path string) (json.RawMessage, bool, error) {
	return s.repo(s.db).Get(ctx, path)
}

func (s *Store) Put(ctx context.Context, path string, value json.RawMessage) error {
	return s.Update(ctx, map[string]json.RawMessage{path: value})
}

func (s *Store) Update(ctx context.Context, values map[string]json.RawMessage) error {
	cleaned := make(map[string]json.RawMessage, len(values))
	for p, raw := range values {
		if _, err := tree.Decode(raw); err != nil {
			return err
		}
		cleaned[remote.CleanPath(p)] = raw
	}
	paths := remote.SortedByDepth(cleaned)

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repo(tx)
		for _, p := range paths {
			if err := repo.Write(ctx, p, cleaned[p]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.hub.Publish(paths...)
	return nil
}

func (s *Store) Get(ctx context.Context, path string) (json.RawMessage, error) {
	raw, ok, err := s.snapshot(ctx, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrNotFound
	}
	return raw, nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	path = remote.CleanPath(path)
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repo(tx).Remove(ctx, path)
	})
	if err != nil {
		return err
	}
	s.hub.Publish(path)
	return nil
}

func (s *Store) ListChildren(ctx context.Context, path string) ([]remote.Child, error) {
	raw, ok, err := s.snapshot(ctx, path)
	if err != nil || !ok {
		return nil, err
	}

	var t tree.Tree
	if err := t.SetRaw("", raw); err != nil {
		return nil, err
	}
	keys := t.Children("")
	children := make([]remote.Child, 0, len(keys))
	for _, k := range keys {
		v, ok, err := t.GetRaw(k)
		if err != nil {
			return nil, err
		}
		if ok {
			children = append(children, remote.Child{Key: k, Value: v})
		}
	}
	return children, nil
}

func (s *Store) Subscribe(ctx context.Context, path string) (*remote.Subscription, error) {
	return s.hub.Subscribe(ctx, path)
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", common.ErrRemoteUnavailable, err)
	}
	return nil
}
