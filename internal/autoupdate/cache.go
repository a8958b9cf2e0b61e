package autoupdate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrCacheCorrupted is returned when the cache file cannot be parsed
var ErrCacheCorrupted = errors.New("cache file is corrupted")

// DefaultCacheTTL is the freshness window of a cached observation
const DefaultCacheTTL = 24 * time.Hour

// CacheEntry is one source's answer for one package.
type CacheEntry struct {
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// cacheFile represents the JSON structure stored on disk
type cacheFile struct {
	Entries map[string]CacheEntry `json:"entries"`
}

// Cache stores upstream answers per package and source, keyed
// "category/package@source", and expires them after TTL.
type Cache struct {
	entries map[string]CacheEntry
	ttl     time.Duration
	path    string
	mu      sync.RWMutex
	nowFunc func() time.Time
}

// CacheOption is a functional option for configuring Cache
type CacheOption func(*Cache)

// WithTTL sets a custom TTL for the cache
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithNowFunc sets a custom time function for testing
func WithNowFunc(fn func() time.Time) CacheOption {
	return func(c *Cache) {
		c.nowFunc = fn
	}
}

// CacheKey joins a package atom and a source name.
func CacheKey(pkg, source string) string {
	return pkg + "@" + source
}

// CacheSource names the cache slot of a source for one prerelease mode, so
// answers given with prereleases allowed never serve a stable-only check.
func CacheSource(source string, allowPrerelease bool) string {
	if allowPrerelease {
		return source + "+pre"
	}
	return source
}

// NewCache loads dir/cache.json, starting empty when the file is missing
// or corrupted. A corrupted file is overwritten on the next write.
func NewCache(dir string, opts ...CacheOption) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	cache := &Cache{
		entries: make(map[string]CacheEntry),
		ttl:     DefaultCacheTTL,
		path:    filepath.Join(dir, "cache.json"),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(cache)
	}

	if err := cache.load(); err != nil && !os.IsNotExist(err) {
		cache.entries = make(map[string]CacheEntry)
	}

	return cache, nil
}

func (c *Cache) load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return err
	}

	var cf cacheFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheCorrupted, err)
	}
	if cf.Entries != nil {
		c.entries = cf.Entries
	}
	return nil
}

// TTL returns the freshness window.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns the fresh entry for pkg and source.
func (c *Cache) Get(pkg, source string) (CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[CacheKey(pkg, source)]
	if !exists || c.isExpired(entry) {
		return CacheEntry{}, false
	}
	return entry, true
}

// GetWithForce is Get, except force always misses.
func (c *Cache) GetWithForce(pkg, source string, force bool) (CacheEntry, bool) {
	if force {
		return CacheEntry{}, false
	}
	return c.Get(pkg, source)
}

func (c *Cache) isExpired(entry CacheEntry) bool {
	return c.nowFunc().Sub(entry.Timestamp) >= c.ttl
}

// Set stores version for pkg and source, stamped now, and persists.
func (c *Cache) Set(pkg, source, version string) (CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := CacheEntry{Version: version, Timestamp: c.nowFunc()}
	c.entries[CacheKey(pkg, source)] = entry
	return entry, c.saveUnsafe()
}

// Package returns every entry of pkg, fresh or not, keyed by source.
func (c *Cache) Package(pkg string) map[string]CacheEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]CacheEntry)
	prefix := pkg + "@"
	for key, entry := range c.entries {
		if source, ok := strings.CutPrefix(key, prefix); ok {
			out[source] = entry
		}
	}
	return out
}

// Keys returns all cache keys sorted.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Save persists the cache to disk.
func (c *Cache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveUnsafe()
}

// saveUnsafe writes through a temp file and rename. Caller holds the write lock.
func (c *Cache) saveUnsafe() error {
	data, err := json.MarshalIndent(cacheFile{Entries: c.entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename cache file: %w", err)
	}
	return nil
}

// Delete removes every source entry of pkg.
func (c *Cache) Delete(pkg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := pkg + "@"
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return c.saveUnsafe()
}

// Clear removes all entries.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]CacheEntry)
	return c.saveUnsafe()
}

// Len returns the number of entries in the cache.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Cleanup removes expired entries and returns how many were dropped.
func (c *Cache) Cleanup() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if c.isExpired(entry) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed, c.saveUnsafe()
}
