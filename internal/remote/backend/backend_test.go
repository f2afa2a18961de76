package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/chatsync/internal/dbx"
	"github.com/dmitrijs2005/chatsync/internal/logging"
	"github.com/dmitrijs2005/chatsync/internal/remote/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialectFor(t *testing.T) {
	d, ok := DialectFor("postgres://u:p@h/db")
	assert.True(t, ok)
	assert.Equal(t, dbx.DialectPostgres, d)

	d, ok = DialectFor("relay.db")
	assert.True(t, ok)
	assert.Equal(t, dbx.DialectSQLite, d)

	_, ok = DialectFor("mem")
	assert.False(t, ok)
}

func TestKind(t *testing.T) {
	assert.Equal(t, "memory", Kind("mem"))
	assert.Equal(t, "postgres", Kind("postgresql://h/db"))
	assert.Equal(t, "sqlite3", Kind("chat.db"))
}

func TestOpen_Memory(t *testing.T) {
	s, err := Open(context.Background(), "mem", logging.Nop())
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &memstore.Store{}, s)
}

func TestOpen_SQLiteFile(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "relay.db"), logging.Nop())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(ctx, "a/b", []byte(`1`)))
	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":1}`, string(got))
}
