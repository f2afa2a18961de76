package remote

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/dmitrijs2005/chatsync/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaths(t *testing.T) {
	assert.Equal(t, "users/u1", UserPath("u1"))
	assert.Equal(t, "chats/c1", ChatPath("c1"))
	assert.Equal(t, "chats/c1/lastMessage", ChatLastMessagePath("c1"))
	assert.Equal(t, "messages/c1", MessagesPath("c1"))
	assert.Equal(t, "messages/c1/m1", MessagePath("c1", "m1"))
	assert.Equal(t, "userChats/u1", UserChatsPath("u1"))
}

func TestSplitAndClean(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitPath("/a//b/"))
	assert.Empty(t, SplitPath("/"))
	assert.Equal(t, "a/b", CleanPath("a/b/"))
	assert.Equal(t, "a/b/c", Join("a/", "/b", "c"))
}

func TestIsUnderAndChildKey(t *testing.T) {
	assert.True(t, IsUnder("messages/c1/m1", "messages/c1"))
	assert.True(t, IsUnder("messages/c1/m1/content", "messages/c1"))
	assert.False(t, IsUnder("messages/c1", "messages/c1"))
	assert.False(t, IsUnder("messages/c10/m1", "messages/c1"))
	assert.True(t, IsUnder("chats", ""))

	key, ok := ChildKey("messages/c1/m1/content", "messages/c1")
	require.True(t, ok)
	assert.Equal(t, "m1", key)

	_, ok = ChildKey("chats/c1", "messages/c1")
	assert.False(t, ok)
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	calls := 0
	ch := make(chan Event)
	sub := NewSubscription(ch, func() { calls++ })

	sub.Close()
	sub.Close()
	assert.Equal(t, 1, calls)
}

func TestEmptySubscription_IsClosed(t *testing.T) {
	sub := EmptySubscription()
	_, ok := <-sub.Events()
	assert.False(t, ok)
	sub.Close()
}

type getOnlyStore struct {
	Store
	raw json.RawMessage
	err error
}

func (s *getOnlyStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return s.raw, s.err
}

func TestGetJSON(t *testing.T) {
	var v struct {
		ID string `json:"id"`
	}

	found, err := GetJSON(context.Background(), &getOnlyStore{raw: json.RawMessage(`{"id":"u1"}`)}, "users/u1", &v)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "u1", v.ID)

	found, err = GetJSON(context.Background(), &getOnlyStore{err: common.ErrNotFound}, "users/u2", &v)
	require.NoError(t, err)
	assert.False(t, found)

	_, err = GetJSON(context.Background(), &getOnlyStore{err: common.ErrRemoteUnavailable}, "users/u3", &v)
	require.ErrorIs(t, err, common.ErrRemoteUnavailable)

	_, err = GetJSON(context.Background(), &getOnlyStore{raw: json.RawMessage(`[`)}, "users/u4", &v)
	require.Error(t, err)
}

func TestIsNull(t *testing.T) {
	assert.True(t, IsNull(nil))
	assert.True(t, IsNull(json.RawMessage("null")))
	assert.False(t, IsNull(json.RawMessage(`{}`)))
}

func TestSortedByDepth(t *testing.T) {
	got := SortedByDepth(map[string]int{
		"chats/c1/lastMessage": 1,
		"messages/c1/m1":       2,
		"chats/c1":             3,
	})
	assert.Equal(t, []string{"chats/c1", "chats/c1/lastMessage", "messages/c1/m1"}, got)
}
