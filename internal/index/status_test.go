package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadStatus_Empty(t *testing.T) {
	// Given: a corpus that was never indexed
	cfg, root := testConfig(t)

	// When: status is read
	info, err := ReadStatus(cfg)
	require.NoError(t, err)

	// Then: nothing is built and no cache file is created
	assert.False(t, info.Indexed)
	assert.Zero(t, info.CacheEntries)
	assert.Equal(t, []string{root}, info.Roots)
	assert.NoFileExists(t, filepath.Join(root, ".docindex", "chunk_cache.json"))
}

func TestReadStatus_AfterRun(t *testing.T) {
	// Given: an indexed corpus
	cfg, root := testConfig(t)
	writeFile(t, filepath.Join(root, "a.txt"), "alpha")
	writeFile(t, filepath.Join(root, "b.md"), "# Title\n\nbravo")
	r := newTestRunner(t, cfg, hashEmbedder(32))
	_, err := r.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.NoError(t, r.Close())

	// When: status is read from disk
	info, err := ReadStatus(cfg)
	require.NoError(t, err)

	// Then: index, scan state and cache are reported consistently
	assert.True(t, info.Indexed)
	assert.Equal(t, 2, info.Documents)
	assert.Equal(t, 32, info.Dim)
	assert.Equal(t, "hash-32", info.Model)
	assert.Equal(t, 2, info.TrackedFiles)
	assert.Equal(t, 2, info.CacheEntries)
	assert.Zero(t, info.Issues)
	assert.Positive(t, info.IndexSize)
	assert.False(t, info.LastScan.IsZero())
}

func TestRunner_Status(t *testing.T) {
	cfg, root := testConfig(t)
	writeFile(t, filepath.Join(root, "a.txt"), "alpha")
	r := newTestRunner(t, cfg, hashEmbedder(32))
	_, err := r.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	info := r.Status()

	assert.True(t, info.Indexed)
	assert.Equal(t, 1, info.Documents)
	assert.Equal(t, "ready", info.EmbedderStatus)
	assert.Equal(t, "hash (hash-32)", info.Embedder)
	assert.Equal(t, 1, info.CacheEntries)
}
