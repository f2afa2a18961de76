package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{
			name: "all flags",
			args: []string{"cmd", "-a", "127.0.0.1:9090", "-k", "tok", "-e", "mem", "-d", "/tmp/cs",
				"-n", "10", "-t", "5", "-i", "10", "-l", "debug",
				"-s3-bucket", "files", "-s3-region", "eu-west-1", "-s3-endpoint", "http://minio:9000"},
			expected: &Config{
				StoreAddr:           "127.0.0.1:9090",
				StoreToken:          "tok",
				EmbeddedStore:       "mem",
				DataDir:             "/tmp/cs",
				HistoryLimit:        10,
				RemoteTimeout:       5 * time.Second,
				OnlineCheckInterval: 10 * time.Second,
				LogLevel:            "debug",
				S3Bucket:            "files",
				S3Region:            "eu-west-1",
				S3Endpoint:          "http://minio:9000",
			},
		},
		{
			name:     "foreign flags ignored",
			args:     []string{"cmd", "-x", "1", "-c", "cfg.json", "-a", ":1"},
			expected: &Config{StoreAddr: ":1"},
		},
		{name: "incorrect check interval", args: []string{"cmd", "-i", "abc"}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args
			config := &Config{}

			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(config) })
				return
			}
			require.NotPanics(t, func() { parseFlags(config) })
			assert.Empty(t, cmp.Diff(tt.expected, config))
		})
	}
}
