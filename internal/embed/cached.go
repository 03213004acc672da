package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultQueryCacheSize is the default number of query vectors kept.
const DefaultQueryCacheSize = 256

// CachedModel wraps a Model with an LRU of per-text vectors. The CLI and
// MCP server wrap the query-side model so repeated searches skip encoding.
type CachedModel struct {
	inner Model
	cache *lru.Cache[string, []float32]
}

var _ Model = (*CachedModel)(nil)

// NewCachedModel wraps inner. size <= 0 selects DefaultQueryCacheSize.
func NewCachedModel(inner Model, size int) *CachedModel {
	if size <= 0 {
		size = DefaultQueryCacheSize
	}
	cache, _ := lru.New[string, []float32](size)
	return &CachedModel{inner: inner, cache: cache}
}

// cacheKey hashes text together with the model name.
func (c *CachedModel) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text + "\x00" + c.inner.Name()))
	return hex.EncodeToString(sum[:])
}

// Encode returns cached vectors where possible and encodes the rest in one call.
func (c *CachedModel) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		if vec, ok := c.cache.Get(c.cacheKey(text)); ok {
			results[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return results, nil
	}

	fresh, err := c.inner.Encode(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		if j >= len(fresh) {
			break
		}
		results[idx] = fresh[j]
		c.cache.Add(c.cacheKey(texts[idx]), fresh[j])
	}
	return results, nil
}

// Len returns the number of cached vectors.
func (c *CachedModel) Len() int { return c.cache.Len() }

// Dimensions implements Model.
func (c *CachedModel) Dimensions() int { return c.inner.Dimensions() }

// Name implements Model.
func (c *CachedModel) Name() string { return c.inner.Name() }

// Reset purges the cache and resets the inner model.
func (c *CachedModel) Reset() {
	c.cache.Purge()
	if r, ok := c.inner.(Resetter); ok {
		r.Reset()
	}
}

// Close closes the inner model.
func (c *CachedModel) Close() error { return c.inner.Close() }

// Inner returns the wrapped model.
func (c *CachedModel) Inner() Model { return c.inner }
