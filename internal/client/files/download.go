package files

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/chatsync/internal/client/models"
	"github.com/dmitrijs2005/chatsync/internal/common"
	"github.com/dmitrijs2005/chatsync/internal/logging"
	"github.com/dmitrijs2005/chatsync/internal/netx"
)

// Downloader saves attachments to disk. Local-scheme URLs are resolved
// through the share; anything else is fetched over HTTP.
type Downloader struct {
	share  *LocalShare
	client *http.Client
	record *DownloadLog
	log    logging.Logger
}

func NewDownloader(share *LocalShare, client *http.Client, record *DownloadLog, log logging.Logger) *Downloader {
	return &Downloader{share: share, client: client, record: record, log: log.With("component", "downloader")}
}

// Download saves att to dest and returns the written path. When dest is a
// directory the attachment's file name is used inside it. Every attempt is
// recorded in the download log.
func (d *Downloader) Download(ctx context.Context, att models.FileAttachment, dest string) (string, error) {
	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		dest = filepath.Join(dest, filepath.Base(att.FileName))
	}

	err := d.fetch(ctx, att, dest)

	entry := DownloadEntry{FileName: att.FileName, URL: att.URL, SavePath: dest, Success: err == nil}
	if err != nil {
		entry.Error = err.Error()
		d.log.Warn(ctx, "download failed", "url", att.URL, "error", err)
	}
	if d.record != nil {
		d.record.Record(entry)
	}
	if err != nil {
		return "", err
	}
	return dest, nil
}

func (d *Downloader) fetch(ctx context.Context, att models.FileAttachment, dest string) error {
	if att.URL == "" {
		return fmt.Errorf("%w: attachment has no url", common.ErrInvalidOperation)
	}

	if IsLocalURL(att.URL) {
		if d.share == nil {
			return fmt.Errorf("%w: %s", common.ErrNotFound, att.URL)
		}
		src, ok := d.share.Resolve(att.URL)
		if !ok {
			return fmt.Errorf("%w: %s is not shared on this machine", common.ErrNotFound, att.URL)
		}
		return copyFile(src, dest)
	}

	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := netx.Download(ctx, d.client, att.URL, f); err != nil {
		_ = f.Close()
		_ = os.Remove(dest)
		return err
	}
	return f.Close()
}
