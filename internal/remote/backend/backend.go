// Package backend opens a store backend from a DSN: "mem" keeps records in
// memory, "postgres://..." selects PostgreSQL and anything else is a SQLite
// file path. The relay serves one; the CLI can embed one for offline use.
package backend

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/chatsync/internal/dbx"
	"github.com/dmitrijs2005/chatsync/internal/logging"
	"github.com/dmitrijs2005/chatsync/internal/remote"
	"github.com/dmitrijs2005/chatsync/internal/remote/memstore"
	"github.com/dmitrijs2005/chatsync/internal/remote/records"
)

// Store is a backend owned by its opener.
type Store interface {
	remote.Store
	Close() error
}

// DialectFor picks the backend for dsn. ok is false for the in-memory
// backend.
func DialectFor(dsn string) (dialect dbx.Dialect, ok bool) {
	switch {
	case dsn == "mem":
		return "", false
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return dbx.DialectPostgres, true
	default:
		return dbx.DialectSQLite, true
	}
}

// Kind names the backend dsn selects, for logs.
func Kind(dsn string) string {
	dialect, ok := DialectFor(dsn)
	if !ok {
		return "memory"
	}
	return string(dialect)
}

func Open(ctx context.Context, dsn string, l logging.Logger) (Store, error) {
	dialect, ok := DialectFor(dsn)
	if !ok {
		return memstore.New(l), nil
	}
	return records.Open(ctx, dialect, dsn, l)
}
