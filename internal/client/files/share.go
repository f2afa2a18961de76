// Package files moves attachment bodies: local sharing through the
// local-scheme map, S3 uploads, downloads and the download log.
package files

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dmitrijs2005/chatsync/internal/client/models"
	"github.com/dmitrijs2005/chatsync/internal/filex"
	"github.com/dmitrijs2005/chatsync/internal/logging"
	"github.com/google/uuid"
)

const (
	LocalScheme  = "local-scheme://"
	mappingsFile = "mappings.json"
)

// Attacher turns a file on disk into an attachment other chat members can
// fetch.
type Attacher interface {
	Attach(ctx context.Context, chatID, srcPath string) (models.FileAttachment, error)
}

// IsLocalURL reports whether url is a local-scheme reference.
func IsLocalURL(url string) bool {
	return strings.HasPrefix(url, LocalScheme)
}

// LocalShare copies files into a shared folder and maps local-scheme URLs to
// the copies. Entries are only ever added.
type LocalShare struct {
	dir   string
	log   logging.Logger
	newID func() string

	mu       sync.RWMutex
	mappings map[string]string
}

var _ Attacher = (*LocalShare)(nil)

// NewLocalShare opens the shared folder at dir and loads its mappings. A
// corrupt mappings file is ignored.
func NewLocalShare(dir string, log logging.Logger) (*LocalShare, error) {
	abs, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, err
	}
	s := &LocalShare{
		dir:      abs,
		log:      log.With("component", "local_share"),
		newID:    uuid.NewString,
		mappings: map[string]string{},
	}
	s.load()
	return s, nil
}

func (s *LocalShare) load() {
	b, err := os.ReadFile(filepath.Join(s.dir, mappingsFile))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn(context.Background(), "mappings unreadable", "error", err)
		}
		return
	}
	m := map[string]string{}
	if err := json.Unmarshal(b, &m); err != nil {
		s.log.Warn(context.Background(), "mappings corrupt, starting empty", "error", err)
		return
	}
	s.mappings = m
}

// Share copies srcPath into the chat's folder under a unique name and
// returns the local-scheme URL and the copy's path.
func (s *LocalShare) Share(chatID, srcPath string) (url, dst string, err error) {
	if chatID == "" || strings.ContainsAny(chatID, `/\`) {
		return "", "", fmt.Errorf("invalid chat id %q", chatID)
	}
	chatDir, err := filex.EnsureDir(s.dir, chatID)
	if err != nil {
		return "", "", err
	}

	name := s.newID() + "_" + filepath.Base(srcPath)
	dst = filepath.Join(chatDir, name)
	if err := copyFile(srcPath, dst); err != nil {
		return "", "", err
	}

	url = LocalScheme + chatID + "/" + name
	s.mu.Lock()
	s.mappings[url] = dst
	err = s.save()
	s.mu.Unlock()
	if err != nil {
		return "", "", err
	}
	return url, dst, nil
}

func (s *LocalShare) save() error {
	b, err := json.MarshalIndent(s.mappings, "", "  ")
	if err != nil {
		return err
	}
	return filex.WriteFileAtomic(filepath.Join(s.dir, mappingsFile), b, 0o600)
}

// Resolve returns the path mapped to a local-scheme URL.
func (s *LocalShare) Resolve(url string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.mappings[url]
	return p, ok
}

// Attach shares srcPath and describes it as a not-uploaded attachment.
func (s *LocalShare) Attach(ctx context.Context, chatID, srcPath string) (models.FileAttachment, error) {
	info, err := os.Stat(srcPath)
	if err != nil {
		return models.FileAttachment{}, err
	}
	url, dst, err := s.Share(chatID, srcPath)
	if err != nil {
		return models.FileAttachment{}, err
	}
	name := filepath.Base(srcPath)
	return models.FileAttachment{
		URL:       url,
		FileName:  name,
		FileSize:  info.Size(),
		FileType:  models.MimeType(name),
		LocalPath: dst,
	}, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
