// Package localstate persists the signed-in user, the settings map and the
// theme preference as JSON files in the client's data directory.
package localstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/dmitrijs2005/chatsync/internal/client/models"
	"github.com/dmitrijs2005/chatsync/internal/filex"
	"github.com/dmitrijs2005/chatsync/internal/logging"
)

const (
	userFile     = "user.json"
	settingsFile = "settings.json"
	themeFile    = "theme.json"
)

type Store struct {
	dir string
	log logging.Logger

	// serializes read-modify-write of settings.json
	mu sync.Mutex
}

// New returns a store rooted at dir, creating it if needed.
func New(dir string, log logging.Logger) (*Store, error) {
	abs, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, err
	}
	return &Store{dir: abs, log: log.With("component", "localstate")}, nil
}

// Dir returns the absolute data directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *Store) writeJSON(name string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return filex.WriteFileAtomic(s.path(name), b, 0o600)
}

// readJSON decodes name into v. It reports false when the file is missing
// or does not parse.
func (s *Store) readJSON(name string, v any) bool {
	b, err := os.ReadFile(s.path(name))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn(context.Background(), "local file unreadable", "file", name, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(b, v); err != nil {
		s.log.Warn(context.Background(), "local file corrupt, ignoring", "file", name, "error", err)
		return false
	}
	return true
}

// SaveUser overwrites the stored user. Credential material is never
// written.
func (s *Store) SaveUser(u models.User) error {
	return s.writeJSON(userFile, u.Public())
}

// LoadUser returns the stored user. A missing or corrupt file counts as
// absent.
func (s *Store) LoadUser() (models.User, bool) {
	var u models.User
	if !s.readJSON(userFile, &u) || u.ID == "" {
		return models.User{}, false
	}
	return u, true
}

// ClearUser removes the stored user.
func (s *Store) ClearUser() error {
	err := os.Remove(s.path(userFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Settings returns a copy of the settings map.
func (s *Store) Settings() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings()
}

func (s *Store) settings() map[string]string {
	m := map[string]string{}
	if !s.readJSON(settingsFile, &m) || m == nil {
		return map[string]string{}
	}
	return m
}

func (s *Store) Setting(key string) (string, bool) {
	v, ok := s.Settings()[key]
	return v, ok
}

func (s *Store) SaveSetting(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.settings()
	m[key] = value
	return s.writeJSON(settingsFile, m)
}

type themeConfig struct {
	IsDarkTheme bool `json:"isDarkTheme"`
}

// DarkTheme returns the theme preference. When no valid file exists the
// light default is written back.
func (s *Store) DarkTheme() bool {
	var c themeConfig
	if s.readJSON(themeFile, &c) {
		return c.IsDarkTheme
	}
	if err := s.writeJSON(themeFile, themeConfig{}); err != nil {
		s.log.Warn(context.Background(), "theme default not saved", "error", err)
	}
	return false
}

func (s *Store) SetDarkTheme(dark bool) error {
	return s.writeJSON(themeFile, themeConfig{IsDarkTheme: dark})
}
