package userchats

import (
	"context"
	"errors"
	"testing"

	"github.com/dmitrijs2005/chatsync/internal/common"
	"github.com/dmitrijs2005/chatsync/internal/logging"
	"github.com/dmitrijs2005/chatsync/internal/remote/memstore"
	"github.com/dmitrijs2005/chatsync/internal/remote/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		ids   []string
		shape Shape
	}{
		{"absent", ``, nil, ShapeAbsent},
		{"null", `null`, nil, ShapeAbsent},
		{"list", `["c2","c1"]`, []string{"c2", "c1"}, ShapeList},
		{"list with junk", `["c1",null,7,"c1",""]`, []string{"c1"}, ShapeList},
		{"key set", `{"c2":true,"c1":true}`, []string{"c1", "c2"}, ShapeMap},
		{"scalar", `"c1"`, nil, ShapeMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, shape := Normalize([]byte(tt.raw))
			assert.Equal(t, tt.shape, shape)
			if tt.ids == nil {
				assert.Empty(t, ids)
			} else {
				assert.Equal(t, tt.ids, ids)
			}
		})
	}
}

func newIndex(t *testing.T) (*Index, *memstore.Store) {
	t.Helper()
	s := memstore.New(logging.Nop())
	t.Cleanup(func() { _ = s.Close() })
	return New(s, logging.Nop()), s
}

func TestAddRemove(t *testing.T) {
	x, _ := newIndex(t)
	ctx := context.Background()

	require.NoError(t, x.Add(ctx, "u1", "c1"))
	require.NoError(t, x.Add(ctx, "u1", "c2"))
	require.NoError(t, x.Add(ctx, "u1", "c1"))

	ids, shape, err := x.Read(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, ShapeList, shape)
	assert.Equal(t, []string{"c1", "c2"}, ids)

	require.NoError(t, x.Remove(ctx, "u1", "c1"))
	ids, _, err = x.Read(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c2"}, ids)
}

func TestAdd_RewritesKeySet(t *testing.T) {
	x, s := newIndex(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "userChats/u1", []byte(`{"c1":true}`)))

	require.NoError(t, x.Add(ctx, "u1", "c1"))

	raw, err := s.Get(ctx, "userChats/u1")
	require.NoError(t, err)
	assert.JSONEq(t, `["c1"]`, string(raw))
}

func TestRead_Absent(t *testing.T) {
	x, _ := newIndex(t)
	ids, shape, err := x.Read(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, ShapeAbsent, shape)
}

func TestRead_StoreError(t *testing.T) {
	s := memstore.New(logging.Nop())
	defer s.Close()
	f := storetest.NewFaulty(s)
	f.FailReads(common.ErrRemoteUnavailable)

	_, _, err := New(f, logging.Nop()).Read(context.Background(), "u1")
	require.ErrorIs(t, err, common.ErrRemoteUnavailable)
}

func TestHeal_SwallowsErrors(t *testing.T) {
	s := memstore.New(logging.Nop())
	defer s.Close()
	f := storetest.NewFaulty(s)
	f.FailWrites(errors.New("down"))

	New(f, logging.Nop()).Heal(context.Background(), "u1", []string{"c1"})
	assert.Equal(t, []string{"userChats/u1"}, f.Writes())
}
