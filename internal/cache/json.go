package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/google/renameio"
)

// JSONCache keeps the whole map in memory and rewrites the file on Save.
type JSONCache struct {
	path    string
	mu      sync.RWMutex
	entries map[string]Entry
	dirty   bool
}

// OpenJSON loads path. A missing file is an empty cache; a corrupt one is
// reported, moved aside and replaced by an empty cache.
func OpenJSON(path string) (*JSONCache, error) {
	c := &JSONCache{path: path, entries: make(map[string]Entry)}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return c, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read chunk cache: %w", err)
	}

	if err := json.Unmarshal(data, &c.entries); err != nil {
		reportCorrupt(path, err)
		c.entries = make(map[string]Entry)
		return c, nil
	}
	if c.entries == nil {
		c.entries = make(map[string]Entry)
	}
	return c, nil
}

// Get implements Cache.
func (c *JSONCache) Get(path string) (Entry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[path]
	return e, ok, nil
}

// Put implements Cache.
func (c *JSONCache) Put(path, docHash string, chunkCount int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[path] = Entry{DocHash: docHash, ChunkCount: chunkCount, UpdatedAt: nowSeconds()}
	c.dirty = true
	return nil
}

// KnownPaths implements Cache.
func (c *JSONCache) KnownPaths() (map[string]struct{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]struct{}, len(c.entries))
	for p := range c.entries {
		out[p] = struct{}{}
	}
	return out, nil
}

// Remove implements Cache.
func (c *JSONCache) Remove(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[path]; ok {
		delete(c.entries, path)
		c.dirty = true
	}
	return nil
}

// Len implements Cache.
func (c *JSONCache) Len() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries), nil
}

// Save writes the map atomically when it changed since the last save.
func (c *JSONCache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}
	// encoding/json sorts map keys, so equal maps produce equal files.
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal chunk cache: %w", err)
	}
	if err := renameio.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write chunk cache: %w", err)
	}
	c.dirty = false
	return nil
}

// Close implements Cache.
func (c *JSONCache) Close() error {
	return c.Save()
}
