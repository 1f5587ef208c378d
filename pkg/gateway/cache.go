package gateway

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gyanpath/gyanpath-agent/pkg/log"
	"github.com/gyanpath/gyanpath-agent/pkg/metrics"
	"github.com/gyanpath/gyanpath-agent/pkg/storage"
	"github.com/gyanpath/gyanpath-agent/pkg/types"
)

// staticExts are app shell assets pinned for the lifetime of a generation.
var staticExts = map[string]bool{
	".js":    true,
	".mjs":   true,
	".css":   true,
	".html":  true,
	".json":  true,
	".ico":   true,
	".svg":   true,
	".woff":  true,
	".woff2": true,
	".ttf":   true,
}

// runtimeExts are media assets subject to LRU eviction under the quota.
var runtimeExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
	".mp4":  true,
	".webm": true,
	".m4v":  true,
	".mp3":  true,
	".pdf":  true,
	".vtt":  true,
}

// Classify maps a request path to a cache class by extension. The second
// return is false for paths the gateway never caches on its own.
func Classify(path string) (types.CacheClass, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if staticExts[ext] {
		return types.CacheClassStatic, true
	}
	if runtimeExts[ext] {
		return types.CacheClassRuntime, true
	}
	return "", false
}

// Cache stores response bodies on disk under one directory per generation
// and indexes them in the local store by URL.
type Cache struct {
	store      storage.Store
	root       string
	generation string
	quota      int64

	mu           sync.Mutex
	runtimeBytes int64
	staticBytes  int64
}

// NewCache opens the cache directory for the current generation and rebuilds
// the byte accounting from the index.
func NewCache(store storage.Store, dataDir, generation string, quota int64) (*Cache, error) {
	root := filepath.Join(dataDir, "cache")
	if err := os.MkdirAll(filepath.Join(root, generation), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}

	c := &Cache{
		store:      store,
		root:       root,
		generation: generation,
		quota:      quota,
	}

	entries, err := store.ListCacheEntries()
	if err != nil {
		return nil, fmt.Errorf("failed to load cache index: %w", err)
	}
	for _, e := range entries {
		if e.Generation != generation {
			continue
		}
		switch e.Class {
		case types.CacheClassRuntime:
			c.runtimeBytes += e.Size
		case types.CacheClassStatic:
			c.staticBytes += e.Size
		}
	}
	c.setGauges()

	return c, nil
}

// Generation returns the generation this cache serves from.
func (c *Cache) Generation() string {
	return c.generation
}

// RuntimeBytes returns the current runtime cache size.
func (c *Cache) RuntimeBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runtimeBytes
}

// Put writes one response body to disk and indexes it. Runtime entries that
// would push the cache over the quota evict the least recently accessed
// runtime entries first. Static entries are never evicted within a
// generation.
func (c *Cache) Put(url string, class types.CacheClass, contentType string, data []byte) (*types.CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := int64(len(data))
	if class == types.CacheClassRuntime && c.quota > 0 {
		if err := c.evictLocked(size); err != nil {
			return nil, err
		}
	}

	path := filepath.Join(c.root, c.generation, c.fileName(url))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write cache file: %w", err)
	}

	// Replacing an entry must not double-count its bytes.
	if prev, err := c.store.GetCacheEntry(url); err == nil && prev.Generation == c.generation {
		c.subtractLocked(prev)
	}

	now := time.Now()
	entry := &types.CacheEntry{
		URL:         url,
		Class:       class,
		Generation:  c.generation,
		Path:        path,
		Size:        size,
		ContentType: contentType,
		StoredAt:    now,
		LastAccess:  now,
	}
	if err := c.store.PutCacheEntry(entry); err != nil {
		os.Remove(path)
		return nil, err
	}

	switch class {
	case types.CacheClassRuntime:
		c.runtimeBytes += size
	case types.CacheClassStatic:
		c.staticBytes += size
	}
	c.setGauges()

	return entry, nil
}

// Get returns the indexed entry and its bytes, bumping LastAccess. Entries
// from other generations and entries whose file vanished report not found.
func (c *Cache) Get(url string) (*types.CacheEntry, []byte, error) {
	entry, err := c.store.GetCacheEntry(url)
	if err != nil {
		return nil, nil, err
	}
	if entry.Generation != c.generation {
		return nil, nil, fmt.Errorf("cache entry %s: %w", url, storage.ErrNotFound)
	}

	logger := log.WithComponent("gateway")

	data, err := os.ReadFile(entry.Path)
	if err != nil {
		// Index row without a backing file. Drop it.
		c.mu.Lock()
		c.subtractLocked(entry)
		c.setGauges()
		c.mu.Unlock()
		if delErr := c.store.DeleteCacheEntry(url); delErr != nil {
			logger.Warn().Err(delErr).Str("url", url).Msg("failed to drop stale cache index row")
		}
		return nil, nil, fmt.Errorf("cache entry %s: %w", url, storage.ErrNotFound)
	}

	entry.LastAccess = time.Now()
	if err := c.store.PutCacheEntry(entry); err != nil {
		logger.Warn().Err(err).Str("url", url).Msg("failed to bump cache last access")
	}

	return entry, data, nil
}

// Delete removes one entry and its file.
func (c *Cache) Delete(url string) error {
	entry, err := c.store.GetCacheEntry(url)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleteLocked(entry)
}

// Prune removes every on-disk generation other than the current one along
// with its index rows. Called once at startup, after a generation change
// this is what frees the previous build's shell assets.
func (c *Cache) Prune() (int, error) {
	removed := 0

	entries, err := c.store.ListCacheEntries()
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if e.Generation == c.generation {
			continue
		}
		if err := c.store.DeleteCacheEntry(e.URL); err != nil {
			return removed, err
		}
		removed++
	}

	dirs, err := os.ReadDir(c.root)
	if err != nil {
		return removed, err
	}
	logger := log.WithComponent("gateway")
	for _, d := range dirs {
		if !d.IsDir() || d.Name() == c.generation {
			continue
		}
		if err := os.RemoveAll(filepath.Join(c.root, d.Name())); err != nil {
			return removed, fmt.Errorf("failed to remove stale generation %s: %w", d.Name(), err)
		}
		logger.Info().Str("generation", d.Name()).Msg("pruned stale cache generation")
	}

	return removed, nil
}

// evictLocked makes room for an incoming runtime write by evicting the least
// recently accessed runtime entries.
func (c *Cache) evictLocked(incoming int64) error {
	logger := log.WithComponent("gateway")
	for c.runtimeBytes+incoming > c.quota {
		victim, err := c.oldestRuntime()
		if err != nil {
			return err
		}
		if victim == nil {
			// Nothing left to evict. Let the write proceed rather than
			// refuse a single oversized asset.
			return nil
		}
		if err := c.deleteLocked(victim); err != nil {
			return err
		}
		metrics.CacheEvictionsTotal.Inc()
		logger.Debug().Str("url", victim.URL).Int64("size", victim.Size).Msg("evicted runtime cache entry")
	}
	return nil
}

func (c *Cache) oldestRuntime() (*types.CacheEntry, error) {
	entries, err := c.store.ListCacheEntries()
	if err != nil {
		return nil, err
	}
	var oldest *types.CacheEntry
	for _, e := range entries {
		if e.Class != types.CacheClassRuntime || e.Generation != c.generation {
			continue
		}
		if oldest == nil || e.LastAccess.Before(oldest.LastAccess) {
			oldest = e
		}
	}
	return oldest, nil
}

func (c *Cache) deleteLocked(entry *types.CacheEntry) error {
	if err := os.Remove(entry.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := c.store.DeleteCacheEntry(entry.URL); err != nil {
		return err
	}
	c.subtractLocked(entry)
	c.setGauges()
	return nil
}

func (c *Cache) subtractLocked(entry *types.CacheEntry) {
	switch entry.Class {
	case types.CacheClassRuntime:
		c.runtimeBytes -= entry.Size
	case types.CacheClassStatic:
		c.staticBytes -= entry.Size
	}
}

func (c *Cache) setGauges() {
	metrics.CacheBytes.WithLabelValues(string(types.CacheClassRuntime)).Set(float64(c.runtimeBytes))
	metrics.CacheBytes.WithLabelValues(string(types.CacheClassStatic)).Set(float64(c.staticBytes))
}

// fileName derives a stable on-disk name from the URL, keeping the extension
// so the files stay inspectable.
func (c *Cache) fileName(url string) string {
	ext := strings.ToLower(filepath.Ext(url))
	if i := strings.IndexAny(ext, "?#"); i >= 0 {
		ext = ext[:i]
	}
	sum := sha256.Sum256([]byte(url))
	return fmt.Sprintf("%x%s", sum[:16], ext)
}
