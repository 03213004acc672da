package cache

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	docerrors "github.com/NOVA-ALLRounder/main-sub002/internal/errors"
)

var backends = []string{BackendJSON, BackendBolt, BackendSQLite}

func forEachBackend(t *testing.T, fn func(t *testing.T, backend, dir string)) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			fn(t, backend, t.TempDir())
		})
	}
}

func openCache(t *testing.T, backend, dir string) Cache {
	t.Helper()
	c, err := Open(backend, dir)
	require.NoError(t, err)
	return c
}

// =============================================================================
// Shared contract
// =============================================================================

func TestContract_GetPutRemove(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend, dir string) {
		c := openCache(t, backend, dir)
		defer func() { _ = c.Close() }()

		// Given: an empty cache
		_, ok, err := c.Get("/corpus/a.txt")
		require.NoError(t, err)
		assert.False(t, ok)

		// When: an entry is put and replaced
		require.NoError(t, c.Put("/corpus/a.txt", "h1", 3))
		require.NoError(t, c.Put("/corpus/a.txt", "h2", 5))

		// Then: the latest value wins
		e, ok, err := c.Get("/corpus/a.txt")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "h2", e.DocHash)
		assert.Equal(t, 5, e.ChunkCount)
		assert.Positive(t, e.UpdatedAt)

		n, err := c.Len()
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		// Remove is idempotent
		require.NoError(t, c.Remove("/corpus/a.txt"))
		require.NoError(t, c.Remove("/corpus/a.txt"))
		_, ok, err = c.Get("/corpus/a.txt")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestContract_KnownPaths(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend, dir string) {
		c := openCache(t, backend, dir)
		defer func() { _ = c.Close() }()

		for _, p := range []string{"/a", "/b", "/문서/c.md"} {
			require.NoError(t, c.Put(p, "h", 1))
		}
		require.NoError(t, c.Remove("/b"))

		known, err := c.KnownPaths()
		require.NoError(t, err)
		assert.Equal(t, map[string]struct{}{"/a": {}, "/문서/c.md": {}}, known)
	})
}

func TestContract_PersistsAcrossReopen(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend, dir string) {
		c := openCache(t, backend, dir)
		require.NoError(t, c.Put("/a", "hash-a", 2))
		require.NoError(t, c.Save())
		require.NoError(t, c.Close())

		reopened := openCache(t, backend, dir)
		defer func() { _ = reopened.Close() }()

		e, ok, err := reopened.Get("/a")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, Entry{DocHash: "hash-a", ChunkCount: 2, UpdatedAt: e.UpdatedAt}, e)
	})
}

func TestContract_UpdatedAtFromClock(t *testing.T) {
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	nowFunc = func() time.Time { return fixed }
	t.Cleanup(func() { nowFunc = time.Now })

	forEachBackend(t, func(t *testing.T, backend, dir string) {
		c := openCache(t, backend, dir)
		defer func() { _ = c.Close() }()

		require.NoError(t, c.Put("/a", "h", 1))
		e, _, err := c.Get("/a")
		require.NoError(t, err)
		assert.InDelta(t, float64(fixed.Unix()), e.UpdatedAt, 1e-3)
	})
}

func TestContract_ConcurrentPuts(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend, dir string) {
		c := openCache(t, backend, dir)
		defer func() { _ = c.Close() }()

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, c.Put(filepath.Join("/p", string(rune('a'+i))), "h", i))
			}(i)
		}
		wg.Wait()

		n, err := c.Len()
		require.NoError(t, err)
		assert.Equal(t, 20, n)
	})
}

func TestContract_CorruptFileStartsEmpty(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend, dir string) {
		// Given: garbage where the backend file should be
		path := filepath.Join(dir, FileName(backend))
		require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("garbage!", 4096)), 0o644))

		// When
		c := openCache(t, backend, dir)
		defer func() { _ = c.Close() }()

		// Then: an empty, usable cache and the bad file kept aside
		n, err := c.Len()
		require.NoError(t, err)
		assert.Zero(t, n)
		require.NoError(t, c.Put("/a", "h", 1))

		matches, _ := filepath.Glob(path + ".corrupt-*")
		assert.Len(t, matches, 1)
	})
}

// =============================================================================
// Backend specifics
// =============================================================================

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open("redis", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, docerrors.ErrCodeConfigInvalid, docerrors.GetCode(err))
}

func TestJSONCache_SaveOnlyWhenDirty(t *testing.T) {
	dir := t.TempDir()
	c, err := OpenJSON(filepath.Join(dir, FileName(BackendJSON)))
	require.NoError(t, err)

	// Nothing written for a clean cache
	require.NoError(t, c.Save())
	_, err = os.Stat(filepath.Join(dir, FileName(BackendJSON)))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, c.Put("/a", "h", 1))
	require.NoError(t, c.Save())
	data, err := os.ReadFile(filepath.Join(dir, FileName(BackendJSON)))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"doc_hash": "h"`)
	assert.Contains(t, string(data), `"chunk_count": 1`)
	assert.Contains(t, string(data), `"updated_at"`)
}

func TestSQLiteCache_MigratesToLatest(t *testing.T) {
	c, err := OpenSQLite(filepath.Join(t.TempDir(), FileName(BackendSQLite)))
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	var name string
	err = c.db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name='idx_chunk_cache_doc_hash'").Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "idx_chunk_cache_doc_hash", name)
}
