package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileDocumentStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "usage.json")
	store := NewFileDocumentStore()

	var missing map[string]int
	found, err := store.Load(ctx, path, &missing)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Save(ctx, path, map[string]int{"vid1.mp4": 2}))

	var got map[string]int
	found, err = store.Load(ctx, path, &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 2, got["vid1.mp4"])

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileDocumentStore_CorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	var v map[string]any
	_, err := NewFileDocumentStore().Load(context.Background(), path, &v)
	assert.Error(t, err)
}
