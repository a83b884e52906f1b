// Package pagecache stores raw fetched pages in SQLite so repeat runs
// never pay network cost for an identifier already seen. Entries are keyed
// by page kind + identifier (+ listing page number) and served only while
// younger than the configured TTL.
package pagecache

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/viper"
	_ "modernc.org/sqlite"
)

// DefaultTTL is the fallback time-to-live for cached pages (30 days).
const DefaultTTL = 720 * time.Hour

// Schema holds the page cache table definition.
const Schema = `
CREATE TABLE IF NOT EXISTS page_cache (
	cache_key TEXT PRIMARY KEY NOT NULL,
	kind TEXT NOT NULL,
	content BLOB NOT NULL,
	cached_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_page_cache_cached_at ON page_cache(cached_at);
CREATE INDEX IF NOT EXISTS idx_page_cache_kind ON page_cache(kind);
`

// Cache manages the SQLite database connection for page caching.
type Cache struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

var (
	globalCache     *Cache
	globalCacheOnce sync.Once
)

// ResetGlobal closes the current global cache and resets the singleton so
// the next call to GetGlobal creates a new instance. Primarily for tests.
func ResetGlobal() error {
	if globalCache != nil {
		if err := globalCache.Close(); err != nil {
			return err
		}
	}
	globalCache = nil
	globalCacheOnce = sync.Once{}
	return nil
}

// GetGlobal returns the singleton page cache instance.
func GetGlobal() (*Cache, error) {
	var initErr error
	globalCacheOnce.Do(func() {
		dbPath := viper.GetString("cache.dbfile")
		if dbPath == "" {
			dbPath = "./cache.db"
		}
		globalCache, initErr = New(dbPath)
	})
	if initErr != nil {
		return nil, initErr
	}
	return globalCache, nil
}

// New opens (creating if needed) a page cache database at dbPath.
func New(dbPath string) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("failed to connect to cache database: %w", err), closeErr)
	}

	if _, err := db.Exec(Schema); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("failed to create cache table: %w", err), closeErr)
	}

	return &Cache{
		db:   db,
		path: dbPath,
	}, nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Key builds the cache key for one page. page <= 1 is treated as the
// unpaginated (or first) page and omitted from the key, so the book page
// for id 42 and page 1 of its editions listing never collide:
// "book:42" vs "editions:42:p2".
func Key(kind, id string, page int) string {
	if page > 1 {
		return fmt.Sprintf("%s:%s:p%d", kind, id, page)
	}
	return fmt.Sprintf("%s:%s", kind, id)
}

// Get returns the cached content for key if present and younger than ttl.
func (c *Cache) Get(key string, ttl time.Duration) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var content []byte
	var cachedAt time.Time
	err := c.db.QueryRow(`
		SELECT content, cached_at
		FROM page_cache
		WHERE cache_key = ?
	`, key).Scan(&content, &cachedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query cache: %w", err)
	}

	age := time.Now().UTC().Sub(cachedAt)
	if age > ttl {
		slog.Debug("Cache expired", "key", key, "age", age)
		return nil, false, nil
	}

	return content, true, nil
}

// Put stores content under key, replacing any previous entry.
func (c *Cache) Put(key, kind string, content []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(`
		INSERT OR REPLACE INTO page_cache (cache_key, kind, content, cached_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	`, key, kind, content)
	if err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}

	return nil
}

// Clear deletes cache entries. An empty kind clears everything; otherwise
// only entries of that kind are removed. Returns the number of rows deleted.
func (c *Cache) Clear(kind string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var result sql.Result
	var err error
	if kind == "" {
		result, err = c.db.Exec(`DELETE FROM page_cache`)
	} else {
		result, err = c.db.Exec(`DELETE FROM page_cache WHERE kind = ?`, kind)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to delete cache entries: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	slog.Debug("Cache cleared", "kind", kind, "rows_deleted", rowsAffected)
	return rowsAffected, nil
}

// KindCount is one row of Stats output.
type KindCount struct {
	Kind  string
	Count int64
}

// Stats returns per-kind entry counts, ordered by kind.
func (c *Cache) Stats() ([]KindCount, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rows, err := c.db.Query(`
		SELECT kind, COUNT(*)
		FROM page_cache
		GROUP BY kind
		ORDER BY kind
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cache stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []KindCount
	for rows.Next() {
		var kc KindCount
		if err := rows.Scan(&kc.Kind, &kc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan cache stats: %w", err)
		}
		stats = append(stats, kc)
	}
	return stats, rows.Err()
}
