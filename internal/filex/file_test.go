package filex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDir_CreatesNestedAbsoluteDir(t *testing.T) {
	base := t.TempDir()

	dir, err := EnsureDir(base, "SharedFiles", "chat-1")
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(dir))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	again, err := EnsureDir(base, "SharedFiles", "chat-1")
	require.NoError(t, err)
	assert.Equal(t, dir, again)
}

func TestEnsureDir_FailsWhenPathIsAFile(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "blocker"), []byte("x"), 0o600))

	_, err := EnsureDir(base, "blocker", "sub")
	require.Error(t, err)
}

func TestWriteFileAtomic_ReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user.json")

	require.NoError(t, WriteFileAtomic(path, []byte(`{"id":"1"}`), 0o600))
	require.NoError(t, WriteFileAtomic(path, []byte(`{"id":"2"}`), 0o600))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"2"}`, string(b))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestWriteFileAtomic_MissingDir(t *testing.T) {
	err := WriteFileAtomic(filepath.Join(t.TempDir(), "nope", "x.json"), []byte("{}"), 0o600)
	require.Error(t, err)
}
