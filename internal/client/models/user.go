// Package models defines the records exchanged with the remote store and held
// in the client's in-memory lists: users, chats and messages.
package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

// UserStatus is a user's presence state.
type UserStatus string

const (
	StatusOnline       UserStatus = "Online"
	StatusOffline      UserStatus = "Offline"
	StatusDoNotDisturb UserStatus = "DoNotDisturb"
)

// User is stored at users/{id}.
type User struct {
	// ID is stable once assigned at registration.
	ID string `json:"id"`

	// Username is unique across users, compared case-insensitively.
	Username string `json:"username"`

	DisplayName string `json:"displayName"`

	// Email is unique across users, compared case-insensitively.
	Email string `json:"email"`

	// PasswordHash is the encoded argon2id hash. It is never written to
	// the local user.json.
	PasswordHash string `json:"passwordHash,omitempty"`

	// AvatarURL is an external URL or a local path. Optional.
	AvatarURL string `json:"avatarUrl,omitempty"`

	Status UserStatus `json:"status"`

	// LastSeen is the last presence write, UTC.
	LastSeen time.Time `json:"lastSeen"`

	CreatedAt time.Time `json:"createdAt"`

	IsAdmin bool `json:"isAdmin"`

	Bio string `json:"bio,omitempty"`
}

// Initials returns the first letters of the first and last words of the
// display name (or username), upper-cased. It falls back to "U".
func (u User) Initials() string {
	name := strings.TrimSpace(u.DisplayName)
	if name == "" {
		name = strings.TrimSpace(u.Username)
	}
	words := strings.Fields(name)
	if len(words) == 0 {
		return "U"
	}

	first, _ := utf8.DecodeRuneInString(words[0])
	initials := string(first)
	if len(words) > 1 {
		last, _ := utf8.DecodeRuneInString(words[len(words)-1])
		initials += string(last)
	}
	return strings.ToUpper(initials)
}

// Name returns the display name, or the username when it is empty.
func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// Public returns a copy without credential material.
func (u User) Public() User {
	u.PasswordHash = ""
	return u
}
