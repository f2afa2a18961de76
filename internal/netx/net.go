// Package netx fetches attachment bodies over HTTP.
package netx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Download streams the body of url into w and returns the number of bytes
// written. A nil client means http.DefaultClient.
func Download(ctx context.Context, client *http.Client, url string, w io.Writer) (int64, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("download failed: %s; body: %s", resp.Status, strings.TrimSpace(string(b)))
	}

	return io.Copy(w, resp.Body)
}
