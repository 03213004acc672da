package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	docerrors "github.com/NOVA-ALLRounder/main-sub002/internal/errors"
)

// SQLiteCache stores entries in the chunk_cache table.
type SQLiteCache struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and migrates it. A file
// that is not a usable database is reported, moved aside and recreated.
func OpenSQLite(path string) (*SQLiteCache, error) {
	db, err := openSQLite(path)
	if err != nil {
		if isBusy(err) {
			return nil, docerrors.New(docerrors.ErrCodeIndexLocked, "chunk cache is locked by another process", err).
				WithDetail("path", path)
		}
		reportCorrupt(path, err)
		if db, err = openSQLite(path); err != nil {
			return nil, fmt.Errorf("failed to open chunk cache: %w", err)
		}
	}
	return &SQLiteCache{db: db}, nil
}

func openSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, err
	}
	// One connection keeps pragmas and writes on the same handle.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set %q: %w", p, err)
		}
	}

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		_ = db.Close()
		return nil, fmt.Errorf("integrity check failed: %s", result)
	}

	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func isBusy(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "database is locked") || strings.Contains(s, "sqlite_busy")
}

// Get implements Cache.
func (c *SQLiteCache) Get(path string) (Entry, bool, error) {
	var e Entry
	err := c.db.QueryRow(
		"SELECT doc_hash, chunk_count, updated_at FROM chunk_cache WHERE path = ?", path,
	).Scan(&e.DocHash, &e.ChunkCount, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to read chunk cache: %w", err)
	}
	return e, true, nil
}

// Put implements Cache.
func (c *SQLiteCache) Put(path, docHash string, chunkCount int) error {
	_, err := c.db.Exec(`
		INSERT INTO chunk_cache (path, doc_hash, chunk_count, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			doc_hash = excluded.doc_hash,
			chunk_count = excluded.chunk_count,
			updated_at = excluded.updated_at`,
		path, docHash, chunkCount, nowSeconds())
	if err != nil {
		return fmt.Errorf("failed to write chunk cache: %w", err)
	}
	return nil
}

// KnownPaths implements Cache.
func (c *SQLiteCache) KnownPaths() (map[string]struct{}, error) {
	rows, err := c.db.Query("SELECT path FROM chunk_cache")
	if err != nil {
		return nil, fmt.Errorf("failed to list chunk cache: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]struct{})
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out[p] = struct{}{}
	}
	return out, rows.Err()
}

// Remove implements Cache.
func (c *SQLiteCache) Remove(path string) error {
	if _, err := c.db.Exec("DELETE FROM chunk_cache WHERE path = ?", path); err != nil {
		return fmt.Errorf("failed to delete from chunk cache: %w", err)
	}
	return nil
}

// Len implements Cache.
func (c *SQLiteCache) Len() (int, error) {
	var n int
	err := c.db.QueryRow("SELECT COUNT(*) FROM chunk_cache").Scan(&n)
	return n, err
}

// Save checkpoints the WAL into the main database file.
func (c *SQLiteCache) Save() error {
	_, err := c.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// Close implements Cache.
func (c *SQLiteCache) Close() error {
	_ = c.Save()
	return c.db.Close()
}
