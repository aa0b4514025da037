package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "pending.json")
	backend := NewFile(path)

	in := map[string]int{"alpha": 1, "beta": 2}
	require.NoError(t, backend.Save(in))

	out := map[string]int{}
	found, err := backend.Load(&out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, in, out)
}

func TestFileLoadMissing(t *testing.T) {
	backend := NewFile(filepath.Join(t.TempDir(), "nope.json"))

	out := map[string]int{}
	found, err := backend.Load(&out)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, out)
}

func TestFileLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	out := map[string]int{}
	_, err := NewFile(path).Load(&out)
	assert.Error(t, err)
}

func TestFileSaveLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	require.NoError(t, NewFile(path).Save(map[string]string{"k": "v"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}
