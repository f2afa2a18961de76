// Package session holds the authenticated user of the running client. One
// Session is created at startup and passed to every component constructor.
package session

import (
	"sync"

	"github.com/dmitrijs2005/chatsync/internal/client/models"
	"github.com/dmitrijs2005/chatsync/internal/common"
)

type Session struct {
	mu   sync.RWMutex
	user *models.User
}

func New() *Session {
	return &Session{}
}

// Set makes u the current user.
func (s *Session) Set(u models.User) {
	u = u.Public()
	s.mu.Lock()
	s.user = &u
	s.mu.Unlock()
}

func (s *Session) Clear() {
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()
}

// User returns a copy of the current user.
func (s *Session) User() (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return models.User{}, false
	}
	return *s.user, true
}

// Require returns the current user or common.ErrNotAuthenticated.
func (s *Session) Require() (models.User, error) {
	u, ok := s.User()
	if !ok {
		return models.User{}, common.ErrNotAuthenticated
	}
	return u, nil
}

// UserID returns the current user id, or "" when signed out.
func (s *Session) UserID() string {
	u, _ := s.User()
	return u.ID
}

// Update applies fn to the current user. It is a no-op when signed out.
func (s *Session) Update(fn func(u *models.User)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user != nil {
		fn(s.user)
	}
}
