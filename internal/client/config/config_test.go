package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "127.0.0.1:50051", c.StoreAddr)
	assert.Empty(t, c.EmbeddedStore)
	assert.Equal(t, "./chatsync-data", c.DataDir)
	assert.Equal(t, 50, c.HistoryLimit)
	assert.Equal(t, 15*time.Second, c.RemoteTimeout)
	assert.Equal(t, 3*time.Second, c.OnlineCheckInterval)
	assert.Equal(t, "info", c.LogLevel)
	assert.Empty(t, c.S3Bucket)
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"cli"}

	cfg := LoadConfig()

	require.NotNil(t, cfg, "LoadConfig must not return nil")
	assert.Equal(t, "127.0.0.1:50051", cfg.StoreAddr)
	assert.Equal(t, 3*time.Second, cfg.OnlineCheckInterval)
}

func TestLoadConfig_FlagsOverrideJSON(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	path := writeTempJSON(t, "", "", map[string]any{
		"store_addr":    "json:1",
		"history_limit": 20,
		"log_level":     "warn",
	})
	os.Args = []string{"cli", "-c", path, "-a", "flag:2"}

	cfg := LoadConfig()
	assert.Equal(t, "flag:2", cfg.StoreAddr)
	assert.Equal(t, 20, cfg.HistoryLimit)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 15*time.Second, cfg.RemoteTimeout)
}
