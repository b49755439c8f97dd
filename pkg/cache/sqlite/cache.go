// Package sqlite provides the durable response cache. Every operation is a
// single self-contained statement against the cache_entries table, so the
// store is safe for concurrent readers and writers; the expensive producer
// call never happens inside a store transaction.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/droidpilot-ai/droidpilot/pkg/models"
)

// Cache is a key/value response cache backed by SQLite, with per-entry TTL,
// lazy expiry on read, and bounded growth via PruneToLimit.
type Cache struct {
	db         *sql.DB
	defaultTTL time.Duration
	hits       atomic.Int64
	misses     atomic.Int64
}

const createCacheTable = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	created_at REAL NOT NULL,
	expires_at REAL NOT NULL,
	metadata TEXT
);
CREATE INDEX IF NOT EXISTS idx_cache_expires ON cache_entries(expires_at);
`

// New creates a Cache with the given database path and default TTL.
// WAL plus a busy timeout lets concurrent writers queue instead of
// failing with SQLITE_BUSY.
func New(dbPath string, defaultTTL time.Duration) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &Cache{db: db, defaultTTL: defaultTTL}, nil
}

// DefaultTTL returns the TTL applied when Set is called with ttl <= 0.
func (c *Cache) DefaultTTL() time.Duration {
	return c.defaultTTL
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// Get retrieves a cached value. An expired entry is deleted on the read
// that finds it and reported as a miss. Storage errors are also misses:
// the cache is an optimization, never a correctness dependency.
func (c *Cache) Get(key string) ([]byte, bool) {
	var value []byte
	var expiresAt float64

	err := c.db.QueryRow(
		`SELECT value, expires_at FROM cache_entries WHERE key = ?`, key,
	).Scan(&value, &expiresAt)

	if err != nil {
		if err != sql.ErrNoRows {
			log.Printf("cache get %s: %v", key, err)
		}
		c.misses.Add(1)
		return nil, false
	}

	if nowSeconds() > expiresAt {
		if _, err := c.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
			log.Printf("cache lazy expire %s: %v", key, err)
		}
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return value, true
}

// Set stores a value under key with the given TTL, replacing any previous
// entry for the same key. A ttl <= 0 uses the store default. Metadata is
// kept for diagnostics only and never consulted on the read path.
func (c *Cache) Set(key string, value []byte, ttl time.Duration, metadata map[string]string) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	var metadataJSON []byte
	if len(metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("cache set %s: marshal metadata: %w", key, err)
		}
	}

	now := nowSeconds()
	_, err := c.db.Exec(
		`INSERT OR REPLACE INTO cache_entries (key, value, created_at, expires_at, metadata)
		 VALUES (?, ?, ?, ?, ?)`,
		key, value, now, now+ttl.Seconds(), string(metadataJSON),
	)
	if err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Delete removes a single entry. Missing keys are not an error.
func (c *Cache) Delete(key string) error {
	if _, err := c.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}

// Cleanup bulk-deletes all expired entries. Idempotent and safe to run
// concurrently with reads and writes.
func (c *Cache) Cleanup() error {
	_, err := c.db.Exec(`DELETE FROM cache_entries WHERE expires_at < ?`, nowSeconds())
	if err != nil {
		return fmt.Errorf("cache cleanup: %w", err)
	}
	return nil
}

// PruneToLimit deletes the oldest entries by created_at until at most
// maxEntries remain, and returns the number deleted. Eviction is by insert
// age, not access time; access tracking would cost a write on every read.
func (c *Cache) PruneToLimit(maxEntries int) (int64, error) {
	var count int64
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM cache_entries`).Scan(&count); err != nil {
		return 0, fmt.Errorf("cache prune count: %w", err)
	}
	if count <= int64(maxEntries) {
		return 0, nil
	}

	res, err := c.db.Exec(
		`DELETE FROM cache_entries WHERE key IN (
			SELECT key FROM cache_entries ORDER BY created_at ASC LIMIT ?
		)`,
		count-int64(maxEntries),
	)
	if err != nil {
		return 0, fmt.Errorf("cache prune: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes cache entries. If expiredOnly is true, only expired entries
// are removed.
func (c *Cache) Clear(expiredOnly bool) error {
	if expiredOnly {
		return c.Cleanup()
	}
	if _, err := c.db.Exec(`DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// Stats returns cache size and performance metrics without mutating state.
func (c *Cache) Stats() (models.CacheStats, error) {
	var count int64
	var totalBytes sql.NullInt64
	err := c.db.QueryRow(`SELECT COUNT(*), SUM(LENGTH(value)) FROM cache_entries`).Scan(&count, &totalBytes)
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	return models.CacheStats{
		Entries:    count,
		TotalBytes: totalBytes.Int64,
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
	}, nil
}

// Close releases the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}
