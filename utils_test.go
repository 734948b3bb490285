package pax

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathHelpers(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	missing := filepath.Join(dir, "missing")

	assert.True(t, Exists(dir))
	assert.True(t, Exists(file))
	assert.False(t, Exists(missing))

	assert.True(t, IsDir(dir))
	assert.False(t, IsDir(file))
	assert.False(t, IsDir(missing))

	assert.True(t, IsFile(file))
	assert.False(t, IsFile(dir))
	assert.False(t, IsFile(missing))
}

func TestWhich(t *testing.T) {
	path, ok := Which("sh")
	assert.True(t, ok)
	assert.True(t, filepath.IsAbs(path))

	_, ok = Which("nonexistent-binary-xyz-123")
	assert.False(t, ok)
}
