package models

import (
	"time"
	"unicode/utf8"
)

// ChatType distinguishes 1:1 chats from group chats.
type ChatType string

const (
	ChatPrivate ChatType = "Private"
	ChatGroup   ChatType = "Group"
)

const previewLimit = 30

// Chat is stored at chats/{id}. LastMessage is a denormalized snapshot kept at
// chats/{id}/lastMessage.
type Chat struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        ChatType  `json:"type"`
	CreatedByID string    `json:"createdById"`
	CreatedAt   time.Time `json:"createdAt"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`

	// Participants holds unique user ids. Order carries no meaning.
	Participants []string `json:"participants"`

	LastMessage *Message `json:"lastMessage,omitempty"`

	// UnreadCount is client-local and never persisted.
	UnreadCount int `json:"-"`
}

// HasParticipant reports whether userID is a member of c.
func (c Chat) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// IsPrivateBetween reports whether c is a private chat whose participant set
// is exactly {a, b}.
func (c Chat) IsPrivateBetween(a, b string) bool {
	if c.Type != ChatPrivate || a == b {
		return false
	}
	seen := make(map[string]struct{}, len(c.Participants))
	for _, p := range c.Participants {
		seen[p] = struct{}{}
	}
	if len(seen) != 2 {
		return false
	}
	_, okA := seen[a]
	_, okB := seen[b]
	return okA && okB
}

// LastMessagePreview returns at most 30 characters of the last message's
// display content followed by "..." when truncated.
func (c Chat) LastMessagePreview() string {
	if c.LastMessage == nil {
		return ""
	}
	text := c.LastMessage.DisplayContent()
	if utf8.RuneCountInString(text) <= previewLimit {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewLimit]) + "..."
}

// Clone returns a deep copy of c.
func (c Chat) Clone() Chat {
	c.Participants = append([]string(nil), c.Participants...)
	if c.LastMessage != nil {
		m := c.LastMessage.Clone()
		c.LastMessage = &m
	}
	return c
}
