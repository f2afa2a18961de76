package netx

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownload_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte("image-bytes"))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	n, err := Download(context.Background(), srv.Client(), srv.URL+"/a.png", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len("image-bytes")), n)
	assert.Equal(t, "image-bytes", buf.String())
}

func TestDownload_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	_, err := Download(context.Background(), nil, srv.URL, &buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.True(t, strings.HasSuffix(err.Error(), "body: gone"), err.Error())
	assert.Zero(t, buf.Len())
}

func TestDownload_BadURL(t *testing.T) {
	_, err := Download(context.Background(), nil, "://bad", &bytes.Buffer{})
	require.Error(t, err)
}

func TestDownload_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Download(ctx, nil, srv.URL, &bytes.Buffer{})
	require.Error(t, err)
}
