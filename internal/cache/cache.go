// Package cache is the content-addressed chunk cache: for each document path
// it records the hash of the normalized extracted text and how many chunks
// were embedded for it. An unchanged hash means the document's chunks and
// vectors are still valid, whatever the filesystem metadata says.
//
// Three interchangeable backends share one contract:
//
//   - json:   a flat JSON map written atomically on Save
//   - bolt:   a bbolt embedded key-value store
//   - sqlite: one SQL table with a versioned schema
//
// The backend is chosen by configuration only.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	docerrors "github.com/NOVA-ALLRounder/main-sub002/internal/errors"
)

// Entry is the cached bookkeeping for one document.
type Entry struct {
	DocHash    string  `json:"doc_hash"`
	ChunkCount int     `json:"chunk_count"`
	UpdatedAt  float64 `json:"updated_at"`
}

// Cache is the chunk cache contract. Implementations are safe for
// concurrent use.
type Cache interface {
	// Get returns the entry for path and whether it exists.
	Get(path string) (Entry, bool, error)

	// Put records docHash and chunkCount for path, replacing any entry.
	Put(path, docHash string, chunkCount int) error

	// KnownPaths returns every path with an entry.
	KnownPaths() (map[string]struct{}, error)

	// Remove deletes the entry for path. Removing a missing path is not an error.
	Remove(path string) error

	// Len returns the number of entries.
	Len() (int, error)

	// Save flushes pending writes to disk.
	Save() error

	// Close flushes and releases the backend.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendJSON   = "json"
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
)

// FileName returns the file the backend keeps inside the data directory.
func FileName(backend string) string {
	switch strings.ToLower(backend) {
	case BackendBolt:
		return "chunk_cache.bolt"
	case BackendSQLite:
		return "chunk_cache.sqlite"
	default:
		return "chunk_cache.json"
	}
}

// Open opens the backend named by configuration in dir.
func Open(backend, dir string) (Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	path := filepath.Join(dir, FileName(backend))

	switch strings.ToLower(backend) {
	case BackendJSON, "":
		return OpenJSON(path)
	case BackendBolt:
		return OpenBolt(path)
	case BackendSQLite:
		return OpenSQLite(path)
	default:
		return nil, docerrors.ConfigError(fmt.Sprintf("unknown cache backend %q", backend), nil).
			WithSuggestion("Set cache.backend to 'json', 'bolt' or 'sqlite'")
	}
}

// nowFunc is swapped in tests.
var nowFunc = time.Now

func nowSeconds() float64 {
	return float64(nowFunc().UnixNano()) / float64(time.Second)
}

// reportCorrupt logs a corrupt backend file and moves it aside so the next
// open starts empty.
func reportCorrupt(path string, cause error) {
	de := docerrors.CacheCorruptionError(path, cause)
	slog.LogAttrs(context.Background(), slog.LevelWarn, "chunk_cache_corrupt", docerrors.LogAttrs(de)...)

	suffix := fmt.Sprintf(".corrupt-%d", nowFunc().Unix())
	_ = os.Rename(path, path+suffix)
	for _, side := range []string{"-wal", "-shm"} {
		_ = os.Remove(path + side)
	}
}
