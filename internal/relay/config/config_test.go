package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, ":50051", c.ListenAddr)
	assert.Equal(t, "relay.db", c.DatabaseDSN)
	assert.Empty(t, c.SecretKey)
	assert.Equal(t, 24*time.Hour, c.TokenTTL)
	assert.Equal(t, "info", c.LogLevel)
}

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
			args: []string{"relay", "-a", "127.0.0.1:9090", "-d", "postgres://db", "-s", "secret",
				"-t", "60", "-l", "debug", "-issue-token", "alice-id"},
			expected: &Config{
				ListenAddr:  "127.0.0.1:9090",
				DatabaseDSN: "postgres://db",
				SecretKey:   "secret",
				TokenTTL:    time.Hour,
				IssueToken:  "alice-id",
				LogLevel:    "debug",
			},
		},
		{
			name:     "foreign flags ignored",
			args:     []string{"relay", "-x", "1", "-a", ":1"},
			expected: &Config{ListenAddr: ":1", TokenTTL: 0},
		},
		{
			name:        "bad number",
			args:        []string{"relay", "-t", "soon"},
			expectPanic: true,
		},
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

func TestParseJson(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	path := filepath.Join(dir, "relay.json")
	b, err := json.Marshal(map[string]any{
		"listen_addr":  ":7000",
		"database_dsn": "postgres://x",
		"token_ttl":    "2h",
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))

	t.Run("overlays present fields", func(t *testing.T) {
		os.Args = []string{"relay", "-c", path}
		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, ":7000", cfg.ListenAddr)
		assert.Equal(t, "postgres://x", cfg.DatabaseDSN)
		assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
		assert.Equal(t, "info", cfg.LogLevel)
	})

	t.Run("invalid JSON panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ nope`), 0o600))
		os.Args = []string{"relay", "-config", bad}
		require.Panics(t, func() { parseJson(&Config{}) })
	})

	t.Run("missing file panics", func(t *testing.T) {
		os.Args = []string{"relay", "-config", filepath.Join(dir, "absent.json")}
		require.Panics(t, func() { parseJson(&Config{}) })
	})
}
