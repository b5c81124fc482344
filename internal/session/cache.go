package session

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is a bounded LRU+TTL cache for parse and tool-discovery results:
// capacities and TTLs are config-driven, never unbounded maps. Wraps
// hashicorp/golang-lru/v2 with an expiry timestamp per entry, since the
// library itself is eviction-policy-only and carries no TTL notion.
type Cache struct {
	lru *lru.Cache[string, entry]
	ttl time.Duration
	mu  sync.Mutex
}

type entry struct {
	value   string
	storeAt time.Time
}

// NewCache returns a Cache bounded to capacity entries, each valid for
// ttl after insertion. capacity<=0 and ttl<=0 fall back to the documented
// defaults (1000 entries, 120s).
func NewCache(capacity int, ttl time.Duration) (*Cache, error) {
	if capacity <= 0 {
		capacity = 1000
	}
	if ttl <= 0 {
		ttl = 120 * time.Second
	}
	l, err := lru.New[string, entry](capacity)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	return &Cache{lru: l, ttl: ttl}, nil
}

// Get returns the cached value for key, if present and not expired.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		return "", false
	}
	if time.Since(e.storeAt) > c.ttl {
		c.lru.Remove(key)
		return "", false
	}
	return e.value, true
}

// Put inserts or refreshes key with value, resetting its TTL clock.
func (c *Cache) Put(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, entry{value: value, storeAt: time.Now()})
}

// Len reports the current entry count (including not-yet-swept expired
// entries; expiry is checked lazily on Get, matching the library's lack
// of a background sweeper).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// ContentHash returns the hex sha256 of content, used as the cache key
// for the optional on-disk mirror.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// DiskMirror persists cache entries as markdown files under
// <workspace>/.vtcode/cache/, keyed by content hash, surviving process
// restarts where the in-memory Cache does not. It is an optional tier:
// never required for correctness, a miss just means a recompute.
type DiskMirror struct {
	dir string
}

// NewDiskMirror returns a DiskMirror rooted under workspaceRoot.
func NewDiskMirror(workspaceRoot string) (*DiskMirror, error) {
	dir := filepath.Join(workspaceRoot, ".vtcode", "cache")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &DiskMirror{dir: dir}, nil
}

func (d *DiskMirror) path(hash string) string {
	return filepath.Join(d.dir, hash+".md")
}

// Load returns the mirrored value for hash, if present on disk.
func (d *DiskMirror) Load(hash string) (string, bool) {
	data, err := os.ReadFile(d.path(hash))
	if err != nil {
		return "", false
	}
	return string(data), true
}

// Store writes value to disk under hash, best-effort (a write failure is
// not fatal since the mirror is purely an optional speedup).
func (d *DiskMirror) Store(hash, value string) error {
	return os.WriteFile(d.path(hash), []byte(value), 0o644)
}
