package pake

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateServerKey(t *testing.T) {
	dir := t.TempDir()

	first, err := LoadOrCreateServerKey(dir)
	require.NoError(t, err)

	second, err := LoadOrCreateServerKey(dir)
	require.NoError(t, err)

	// Scalar.Equal compares internal bytes, which differ between a freshly
	// picked key and its unmarshalled form unless the fresh key was
	// canonicalized. Check both the wire form and Equal.
	firstRaw, err := first.MarshalBinary()
	require.NoError(t, err)
	secondRaw, err := second.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, firstRaw, secondRaw, "reloading must return the same key")
	assert.True(t, first.Equal(second), "in-memory and reloaded keys must compare equal")

	if runtime.GOOS != "windows" {
		info, err := os.Stat(filepath.Join(dir, serverKeyFile))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}
}

func TestLoadOrCreateServerKeyFreshPerDir(t *testing.T) {
	a, err := LoadOrCreateServerKey(t.TempDir())
	require.NoError(t, err)
	b, err := LoadOrCreateServerKey(t.TempDir())
	require.NoError(t, err)
	assert.False(t, a.Equal(b))
}

func TestLoadOrCreateServerKeyCorrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, serverKeyFile), []byte("garbage"), 0o600))
	_, err := LoadOrCreateServerKey(dir)
	require.Error(t, err)
}
