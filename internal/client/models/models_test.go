package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUser_Initials(t *testing.T) {
	tests := []struct {
		user User
		want string
	}{
		{User{DisplayName: "Alice Cooper"}, "AC"},
		{User{DisplayName: "alice mary cooper"}, "AC"},
		{User{DisplayName: "bob"}, "B"},
		{User{Username: "carol"}, "C"},
		{User{DisplayName: "  "}, "U"},
		{User{DisplayName: "иван петров"}, "ИП"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.user.Initials(), tt.user.DisplayName)
	}
}

func TestUser_PublicDropsHash(t *testing.T) {
	u := User{ID: "u1", PasswordHash: "argon2id$aa$bb"}
	assert.Empty(t, u.Public().PasswordHash)
	assert.Equal(t, "argon2id$aa$bb", u.PasswordHash)
}

func TestChat_IsPrivateBetween(t *testing.T) {
	c := Chat{Type: ChatPrivate, Participants: []string{"bob-id", "alice-id"}}
	assert.True(t, c.IsPrivateBetween("alice-id", "bob-id"))
	assert.True(t, c.IsPrivateBetween("bob-id", "alice-id"))
	assert.False(t, c.IsPrivateBetween("alice-id", "carol-id"))
	assert.False(t, c.IsPrivateBetween("alice-id", "alice-id"))

	g := Chat{Type: ChatGroup, Participants: []string{"alice-id", "bob-id"}}
	assert.False(t, g.IsPrivateBetween("alice-id", "bob-id"))

	three := Chat{Type: ChatPrivate, Participants: []string{"alice-id", "bob-id", "carol-id"}}
	assert.False(t, three.IsPrivateBetween("alice-id", "bob-id"))
}

func TestChat_LastMessagePreview(t *testing.T) {
	assert.Empty(t, Chat{}.LastMessagePreview())

	short := Chat{LastMessage: &Message{Content: "hi"}}
	assert.Equal(t, "hi", short.LastMessagePreview())

	long := Chat{LastMessage: &Message{Content: strings.Repeat("я", 40)}}
	assert.Equal(t, strings.Repeat("я", 30)+"...", long.LastMessagePreview())

	deleted := Chat{LastMessage: &Message{Content: "secret", IsDeleted: true}}
	assert.Equal(t, DeletedMarker, deleted.LastMessagePreview())
}

func TestChat_JSONSkipsUnread(t *testing.T) {
	b, err := json.Marshal(Chat{ID: "c1", UnreadCount: 5})
	require.NoError(t, err)
	assert.NotContains(t, string(b), "nread")
}

func TestChat_CloneIsDeep(t *testing.T) {
	c := Chat{Participants: []string{"a", "b"}, LastMessage: &Message{Content: "x"}}
	cp := c.Clone()
	cp.Participants[0] = "z"
	cp.LastMessage.Content = "y"
	assert.Equal(t, "a", c.Participants[0])
	assert.Equal(t, "x", c.LastMessage.Content)
}

func TestMessageStatus_Advances(t *testing.T) {
	assert.True(t, MessageSending.Advances(MessageSent))
	assert.True(t, MessageSent.Advances(MessageRead))
	assert.False(t, MessageRead.Advances(MessageSent))
	assert.False(t, MessageSent.Advances(MessageSending))
	assert.True(t, MessageSending.Advances(MessageFailed))
	assert.False(t, MessageSent.Advances(MessageFailed))
	assert.True(t, MessageFailed.Advances(MessageSent))
	assert.False(t, MessageFailed.Advances(MessageSending))
}

func TestMessage_WithEditAndTombstone(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	m := Message{ID: "m1", ChatID: "c1", Content: "hello", Attachment: &FileAttachment{FileName: "a.txt"}}

	e := m.WithEdit("hello!", "u1", at)
	assert.Equal(t, "m1", e.ID)
	assert.Equal(t, "hello!", e.Content)
	assert.True(t, e.IsEdited)
	require.NotNil(t, e.EditedAt)
	assert.Equal(t, at, *e.EditedAt)
	assert.Equal(t, "hello", m.Content, "original must be untouched")

	d := m.Tombstone("u1", at)
	assert.Equal(t, "m1", d.ID)
	assert.Equal(t, "c1", d.ChatID)
	assert.True(t, d.IsDeleted)
	assert.Equal(t, DeletedMarker, d.Content)
	assert.Nil(t, d.Attachment)
	assert.NotNil(t, m.Attachment)
}

func TestMessage_MergeMutable(t *testing.T) {
	at := time.Now().UTC()
	local := Message{ID: "m1", SenderID: "u1", Content: "v1", Status: MessageSending, CreatedAt: at}
	remote := Message{ID: "m1", SenderID: "u1", Content: "v2", Status: MessageSent, IsEdited: true, EditedAt: &at}

	local.MergeMutable(remote)
	assert.Equal(t, "v2", local.Content)
	assert.True(t, local.IsEdited)
	assert.Equal(t, MessageSent, local.Status)
	assert.Equal(t, at, local.CreatedAt)

	local.MergeMutable(Message{ID: "m1", Content: "v3", Status: MessageSending})
	assert.Equal(t, MessageSent, local.Status, "status never moves backwards")
}

func TestFileAttachment_SizeFormatted(t *testing.T) {
	tests := map[int64]string{
		0:                      "0 B",
		512:                    "512 B",
		1024:                   "1 KB",
		1536:                   "1.5 KB",
		5 * 1024 * 1024:        "5 MB",
		3 * 1024 * 1024 * 1024: "3 GB",
	}
	for size, want := range tests {
		assert.Equal(t, want, FileAttachment{FileSize: size}.SizeFormatted())
	}
}

func TestFileHelpers(t *testing.T) {
	assert.True(t, IsImageFile("photo.JPG"))
	assert.False(t, IsImageFile("report.pdf"))
	assert.Equal(t, MessageImage, TypeForFile("a.webp"))
	assert.Equal(t, MessageFile, TypeForFile("a.zip"))
	assert.Equal(t, "application/pdf", MimeType("r.PDF"))
	assert.Equal(t, "application/octet-stream", MimeType("blob.unknownext"))
	assert.Equal(t, "[File: r.pdf]", AttachmentPlaceholder("r.pdf"))
}

func TestMessage_JSONFieldNames(t *testing.T) {
	b, err := json.Marshal(Message{ID: "m1", ChatID: "c1", Attachment: &FileAttachment{URL: "u"}})
	require.NoError(t, err)
	s := string(b)
	assert.Contains(t, s, `"chatId":"c1"`)
	assert.Contains(t, s, `"fileAttachment":{`)
	assert.NotContains(t, s, "editedAt")
}
