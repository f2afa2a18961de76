package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/chatsync/internal/client/models"
	"github.com/dmitrijs2005/chatsync/internal/common"
	"github.com/dmitrijs2005/chatsync/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLocalShare_ShareResolveReload(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalShare(dir, logging.Nop())
	require.NoError(t, err)
	s.newID = func() string { return "u1" }

	src := writeTemp(t, "notes.txt", "hello")
	url, dst, err := s.Share("c1", src)
	require.NoError(t, err)
	assert.Equal(t, "local-scheme://c1/u1_notes.txt", url)
	assert.True(t, IsLocalURL(url))

	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))

	got, ok := s.Resolve(url)
	require.True(t, ok)
	assert.Equal(t, dst, got)

	reopened, err := NewLocalShare(dir, logging.Nop())
	require.NoError(t, err)
	got, ok = reopened.Resolve(url)
	require.True(t, ok)
	assert.Equal(t, dst, got)

	_, ok = reopened.Resolve("local-scheme://c1/other")
	assert.False(t, ok)
}

func TestLocalShare_Errors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, mappingsFile), []byte("{oops"), 0o600))
	s, err := NewLocalShare(dir, logging.Nop())
	require.NoError(t, err, "corrupt mappings are ignored")

	_, _, err = s.Share("../escape", writeTemp(t, "a.txt", "x"))
	require.Error(t, err)

	_, _, err = s.Share("c1", filepath.Join(dir, "missing.txt"))
	require.Error(t, err)
}

func TestLocalShare_Attach(t *testing.T) {
	s, err := NewLocalShare(t.TempDir(), logging.Nop())
	require.NoError(t, err)

	att, err := s.Attach(context.Background(), "c1", writeTemp(t, "photo.png", "12345"))
	require.NoError(t, err)
	assert.True(t, IsLocalURL(att.URL))
	assert.Equal(t, "photo.png", att.FileName)
	assert.EqualValues(t, 5, att.FileSize)
	assert.Equal(t, "image/png", att.FileType)
	assert.False(t, att.IsUploaded)
	assert.FileExists(t, att.LocalPath)
}

func TestDownloadLog(t *testing.T) {
	l, err := NewDownloadLog(filepath.Join(t.TempDir(), "logs", "downloads.log"), logging.Nop())
	require.NoError(t, err)
	l.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	l.Record(DownloadEntry{FileName: "a.pdf", URL: "https://x/a.pdf", SavePath: "/tmp/a.pdf", Success: true})
	l.Record(DownloadEntry{FileName: "b.pdf", URL: "https://x/b.pdf", SavePath: "/tmp/b.pdf", Error: "404"})

	b, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "[2026-01-02 03:04:05] file: a.pdf, url: https://x/a.pdf, path: /tmp/a.pdf, success: true, error: ", lines[0])
	assert.Contains(t, lines[1], "success: false, error: 404")
}

func TestDownloader_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, "payload")
	}))
	defer srv.Close()

	dir := t.TempDir()
	record, err := NewDownloadLog(filepath.Join(dir, "downloads.log"), logging.Nop())
	require.NoError(t, err)
	d := NewDownloader(nil, srv.Client(), record, logging.Nop())

	saved, err := d.Download(context.Background(), models.FileAttachment{URL: srv.URL + "/f", FileName: "f.bin"}, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "f.bin"), saved)
	b, err := os.ReadFile(saved)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(b))

	dest := filepath.Join(dir, "gone.bin")
	_, err = d.Download(context.Background(), models.FileAttachment{URL: srv.URL + "/missing", FileName: "gone.bin"}, dest)
	require.Error(t, err)
	assert.NoFileExists(t, dest)

	logged, err := os.ReadFile(record.Path())
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(logged), "\n"))
	assert.Contains(t, string(logged), "success: false, error: download failed: 404 Not Found; body: 404 page not found")
}

func TestDownloadLog_OneLinePerAttempt(t *testing.T) {
	l, err := NewDownloadLog(filepath.Join(t.TempDir(), "downloads.log"), logging.Nop())
	require.NoError(t, err)

	l.Record(DownloadEntry{FileName: "a\nb.txt", URL: "https://x/a", SavePath: "/tmp/a", Error: "bad gateway\r\n<html>\n  oops\n</html>\n"})
	l.Record(DownloadEntry{FileName: "c.txt", URL: "https://x/c", SavePath: "/tmp/c", Success: true})

	b, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "file: a b.txt,")
	assert.True(t, strings.HasSuffix(lines[0], "error: bad gateway <html> oops </html>"), lines[0])
}

func TestDownloader_LocalScheme(t *testing.T) {
	share, err := NewLocalShare(t.TempDir(), logging.Nop())
	require.NoError(t, err)
	att, err := share.Attach(context.Background(), "c1", writeTemp(t, "doc.txt", "local body"))
	require.NoError(t, err)

	d := NewDownloader(share, nil, nil, logging.Nop())
	dest := filepath.Join(t.TempDir(), "copy.txt")
	saved, err := d.Download(context.Background(), att, dest)
	require.NoError(t, err)
	b, err := os.ReadFile(saved)
	require.NoError(t, err)
	assert.Equal(t, "local body", string(b))

	_, err = d.Download(context.Background(), models.FileAttachment{URL: "local-scheme://c1/unknown", FileName: "x"}, dest)
	require.ErrorIs(t, err, common.ErrNotFound)

	_, err = d.Download(context.Background(), models.FileAttachment{FileName: "x"}, dest)
	require.ErrorIs(t, err, common.ErrInvalidOperation)
}

func stubS3(t *testing.T) (*s3.PutObjectInput, *s3.GetObjectInput) {
	t.Helper()
	origLoad, origNew, origPre, origPut, origGet := loadDefaultAWSConfig, newS3ClientFromConfig, newS3PresignClient, putObject, presignGetObject
	t.Cleanup(func() {
		loadDefaultAWSConfig, newS3ClientFromConfig, newS3PresignClient, putObject, presignGetObject = origLoad, origNew, origPre, origPut, origGet
	})

	put := &s3.PutObjectInput{}
	get := &s3.GetObjectInput{}

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "eu-central-1", lo.Region)
		assert.NotNil(t, lo.Credentials)
		return aws.Config{}, nil
	}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		var o s3.Options
		for _, fn := range optFns {
			fn(&o)
		}
		require.NotNil(t, o.BaseEndpoint)
		assert.Equal(t, "http://127.0.0.1:9000", *o.BaseEndpoint)
		assert.True(t, o.UsePathStyle)
		return &s3.Client{}
	}
	newS3PresignClient = func(c *s3.Client) *s3.PresignClient { return &s3.PresignClient{} }
	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		body, err := io.ReadAll(in.Body)
		require.NoError(t, err)
		assert.Equal(t, "image-bytes", string(body))
		*put = *in
		return &s3.PutObjectOutput{}, nil
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		*get = *in
		return &v4.PresignedHTTPRequest{URL: fmt.Sprintf("https://s3.example/%s/%s?sig=1", *in.Bucket, *in.Key)}, nil
	}
	return put, get
}

func newUploader() *S3Uploader {
	u := NewS3Uploader(S3Config{
		Bucket:    "chatsync",
		Region:    "eu-central-1",
		Endpoint:  "http://127.0.0.1:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
	})
	u.newID = func() string { return "u1" }
	return u
}

func TestS3Uploader_Attach(t *testing.T) {
	put, get := stubS3(t)

	att, err := newUploader().Attach(context.Background(), "c1", writeTemp(t, "cat.jpg", "image-bytes"))
	require.NoError(t, err)

	assert.Equal(t, "chatsync", *put.Bucket)
	assert.Equal(t, "chats/c1/u1_cat.jpg", *put.Key)
	assert.Equal(t, "image/jpeg", *put.ContentType)
	assert.EqualValues(t, 11, *put.ContentLength)
	assert.Equal(t, "chats/c1/u1_cat.jpg", *get.Key)

	assert.Equal(t, "https://s3.example/chatsync/chats/c1/u1_cat.jpg?sig=1", att.URL)
	assert.True(t, att.IsUploaded)
	assert.Equal(t, "cat.jpg", att.FileName)
	assert.EqualValues(t, 11, att.FileSize)
}

func TestS3Uploader_Errors(t *testing.T) {
	stubS3(t)
	u := newUploader()
	src := writeTemp(t, "cat.jpg", "image-bytes")

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return nil, errors.New("bucket missing")
	}
	_, err := u.Attach(context.Background(), "c1", src)
	require.ErrorContains(t, err, "bucket missing")

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no creds")
	}
	_, err = u.Attach(context.Background(), "c1", src)
	require.ErrorContains(t, err, "aws config")

	_, err = u.Attach(context.Background(), "c1", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestS3Uploader_DefaultTTL(t *testing.T) {
	assert.Equal(t, DefaultURLTTL, NewS3Uploader(S3Config{}).cfg.URLTTL)
}
