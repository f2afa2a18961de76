// Package storetest is a conformance suite for remote.Store backends.
package storetest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dmitrijs2005/chatsync/internal/common"
	"github.com/dmitrijs2005/chatsync/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) remote.Store

// Run exercises the tree and subscription semantics every backend shares.
func Run(t *testing.T, newStore Factory) {
	t.Run("put then get", func(t *testing.T) { testPutGet(t, newStore(t)) })
	t.Run("get absent", func(t *testing.T) { testGetAbsent(t, newStore(t)) })
	t.Run("ancestor assembles descendants", func(t *testing.T) { testAssemble(t, newStore(t)) })
	t.Run("put replaces subtree", func(t *testing.T) { testReplace(t, newStore(t)) })
	t.Run("update is applied as one batch", func(t *testing.T) { testUpdate(t, newStore(t)) })
	t.Run("delete prunes", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("list children", func(t *testing.T) { testList(t, newStore(t)) })
	t.Run("subscribe", func(t *testing.T) { testSubscribe(t, newStore(t)) })
	t.Run("ping", func(t *testing.T) { require.NoError(t, newStore(t).Ping(context.Background())) })
}

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func testPutGet(t *testing.T, s remote.Store) {
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "users/u1", raw(`{"id":"u1","username":"alice"}`)))

	got, err := s.Get(ctx, "users/u1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"u1","username":"alice"}`, string(got))

	field, err := s.Get(ctx, "users/u1/username")
	require.NoError(t, err)
	assert.JSONEq(t, `"alice"`, string(field))
}

func testGetAbsent(t *testing.T, s remote.Store) {
	_, err := s.Get(context.Background(), "users/nobody")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func testAssemble(t *testing.T, s remote.Store) {
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "chats/c1", raw(`{"id":"c1","name":"Bob"}`)))
	require.NoError(t, s.Put(ctx, "chats/c1/lastMessage", raw(`{"id":"m1","content":"hi"}`)))

	got, err := s.Get(ctx, "chats/c1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"c1","name":"Bob","lastMessage":{"id":"m1","content":"hi"}}`, string(got))

	require.NoError(t, s.Put(ctx, "chats/c1/lastMessage", raw(`{"id":"m2","content":"yo"}`)))
	got, err = s.Get(ctx, "chats/c1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"c1","name":"Bob","lastMessage":{"id":"m2","content":"yo"}}`, string(got))
}

func testReplace(t *testing.T, s remote.Store) {
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "chats/c1", raw(`{"id":"c1"}`)))
	require.NoError(t, s.Put(ctx, "chats/c1/lastMessage", raw(`{"id":"m1"}`)))
	require.NoError(t, s.Put(ctx, "chats/c1", raw(`{"id":"c1","name":"renamed"}`)))

	got, err := s.Get(ctx, "chats/c1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"c1","name":"renamed"}`, string(got))
}

func testUpdate(t *testing.T, s remote.Store) {
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "chats/c1", raw(`{"id":"c1"}`)))
	require.NoError(t, s.Update(ctx, map[string]json.RawMessage{
		"messages/c1/m1":       raw(`{"id":"m1","content":"hi"}`),
		"chats/c1/lastMessage": raw(`{"id":"m1","content":"hi"}`),
	}))

	m, err := s.Get(ctx, "messages/c1/m1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"m1","content":"hi"}`, string(m))

	c, err := s.Get(ctx, "chats/c1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"c1","lastMessage":{"id":"m1","content":"hi"}}`, string(c))
}

func testDelete(t *testing.T, s remote.Store) {
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "messages/c1/m1", raw(`{"id":"m1"}`)))
	require.NoError(t, s.Put(ctx, "chats/c1", raw(`{"id":"c1","lastMessage":{"id":"m1"}}`)))

	require.NoError(t, s.Delete(ctx, "messages/c1/m1"))
	_, err := s.Get(ctx, "messages/c1")
	require.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, s.Delete(ctx, "chats/c1/lastMessage"))
	c, err := s.Get(ctx, "chats/c1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"c1"}`, string(c))

	require.NoError(t, s.Delete(ctx, "never/existed"))
}

func testList(t *testing.T, s remote.Store) {
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "chats/b", raw(`{"id":"b"}`)))
	require.NoError(t, s.Put(ctx, "chats/a", raw(`{"id":"a"}`)))
	require.NoError(t, s.Put(ctx, "chats/a/lastMessage", raw(`{"id":"m"}`)))

	children, err := s.ListChildren(ctx, "chats")
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "a", children[0].Key)
	assert.JSONEq(t, `{"id":"a","lastMessage":{"id":"m"}}`, string(children[0].Value))
	assert.Equal(t, "b", children[1].Key)

	empty, err := s.ListChildren(ctx, "messages/none")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testSubscribe(t *testing.T, s remote.Store) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := s.Subscribe(ctx, "messages/c1")
	require.NoError(t, err)
	defer sub.Close()

	// Give remote backends a moment to register the stream.
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, s.Put(ctx, "messages/c2/x", raw(`{"id":"x"}`)))
	require.NoError(t, s.Put(ctx, "messages/c1/m1", raw(`{"id":"m1"}`)))

	first := waitEvent(t, sub)
	assert.Equal(t, remote.EventInsertOrUpdate, first.Kind)
	assert.Equal(t, "m1", first.Key)
	assert.JSONEq(t, `{"id":"m1"}`, string(first.Value))

	require.NoError(t, s.Delete(ctx, "messages/c1/m1"))
	second := waitEvent(t, sub)
	assert.Equal(t, "m1", second.Key)
	assert.Equal(t, remote.EventDelete, second.Kind)

	sub.Close()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-sub.Events():
			return !ok
		default:
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
}

func waitEvent(t *testing.T, sub *remote.Subscription) remote.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed early")
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
		return remote.Event{}
	}
}
