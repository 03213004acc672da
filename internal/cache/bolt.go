package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	docerrors "github.com/NOVA-ALLRounder/main-sub002/internal/errors"
)

var chunksBucket = []byte("chunks")

// BoltCache stores one JSON-encoded Entry per path in a bbolt bucket.
// Every Put and Remove is its own committed transaction.
type BoltCache struct {
	db *bolt.DB
}

// OpenBolt opens or creates the bbolt file at path. A file bbolt rejects as
// invalid is reported, moved aside and recreated.
func OpenBolt(path string) (*BoltCache, error) {
	db, err := openBolt(path)
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, docerrors.New(docerrors.ErrCodeIndexLocked, "chunk cache is locked by another process", err).
				WithDetail("path", path)
		}
		reportCorrupt(path, err)
		if db, err = openBolt(path); err != nil {
			return nil, fmt.Errorf("failed to open chunk cache: %w", err)
		}
	}
	return &BoltCache{db: db}, nil
}

func openBolt(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(chunksBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Get implements Cache.
func (c *BoltCache) Get(path string) (Entry, bool, error) {
	var (
		e     Entry
		found bool
	)
	err := c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(chunksBucket).Get([]byte(path))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &e)
	})
	if err != nil {
		return Entry{}, false, docerrors.CacheCorruptionError(path, err)
	}
	return e, found, nil
}

// Put implements Cache.
func (c *BoltCache) Put(path, docHash string, chunkCount int) error {
	v, err := json.Marshal(Entry{DocHash: docHash, ChunkCount: chunkCount, UpdatedAt: nowSeconds()})
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(chunksBucket).Put([]byte(path), v)
	})
}

// KnownPaths implements Cache.
func (c *BoltCache) KnownPaths() (map[string]struct{}, error) {
	out := make(map[string]struct{})
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(chunksBucket).ForEach(func(k, _ []byte) error {
			out[string(k)] = struct{}{}
			return nil
		})
	})
	return out, err
}

// Remove implements Cache.
func (c *BoltCache) Remove(path string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(chunksBucket).Delete([]byte(path))
	})
}

// Len implements Cache.
func (c *BoltCache) Len() (int, error) {
	var n int
	err := c.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(chunksBucket).Stats().KeyN
		return nil
	})
	return n, err
}

// Save is a no-op; bbolt commits each transaction.
func (c *BoltCache) Save() error { return nil }

// Close implements Cache.
func (c *BoltCache) Close() error { return c.db.Close() }
