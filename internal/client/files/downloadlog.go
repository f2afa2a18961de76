package files

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/chatsync/internal/filex"
	"github.com/dmitrijs2005/chatsync/internal/logging"
)

// DownloadEntry is one line of the download log.
type DownloadEntry struct {
	FileName string
	URL      string
	SavePath string
	Success  bool
	Error    string
}

// DownloadLog appends one line per download attempt. Write failures are
// logged and dropped.
type DownloadLog struct {
	path string
	log  logging.Logger
	now  func() time.Time
	mu   sync.Mutex
}

func NewDownloadLog(path string, log logging.Logger) (*DownloadLog, error) {
	if _, err := filex.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}
	return &DownloadLog{path: path, log: log.With("component", "download_log"), now: time.Now}, nil
}

func (l *DownloadLog) Path() string { return l.path }

func (l *DownloadLog) Record(e DownloadEntry) {
	line := fmt.Sprintf("[%s] file: %s, url: %s, path: %s, success: %t, error: %s\n",
		l.now().Format(time.DateTime), oneLine(e.FileName), oneLine(e.URL), oneLine(e.SavePath), e.Success, oneLine(e.Error))

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		l.log.Warn(context.Background(), "download log unavailable", "error", err)
		return
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		l.log.Warn(context.Background(), "download log write failed", "error", err)
	}
}

// oneLine folds every run of whitespace, line breaks included, into a single space.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
