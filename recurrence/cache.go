package recurrence

import (
	"crypto/sha256"
	"slices"
	"sync"
	"time"
)

// cacheEntry is one decoded blob and its bookkeeping.
type cacheEntry struct {
	blob       *Blob
	expiresAt  time.Time
	accessedAt time.Time
}

// DecodeCache remembers decoded blobs by the hash of their encoding. Cached
// blobs are never handed out directly; Decode returns deep copies so callers
// may mutate what they get.
type DecodeCache struct {
	entries         map[[sha256.Size]byte]*cacheEntry
	mutex           sync.RWMutex
	ttl             time.Duration
	maxEntries      int
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	closeOnce       sync.Once
}

// CacheConfig sizes a DecodeCache.
type CacheConfig struct {
	TTL             time.Duration // entry lifetime
	MaxEntries      int           // least recently used entries go above this
	CleanupInterval time.Duration // sweep period
}

// DefaultCacheConfig is used by DefaultConfig.
var DefaultCacheConfig = CacheConfig{
	TTL:             15 * time.Minute,
	MaxEntries:      1000,
	CleanupInterval: 5 * time.Minute,
}

// NewDecodeCache creates a decode cache and starts its cleanup goroutine.
// Close stops it.
func NewDecodeCache(config CacheConfig) *DecodeCache {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultCacheConfig.CleanupInterval
	}
	c := &DecodeCache{
		entries:         make(map[[sha256.Size]byte]*cacheEntry),
		ttl:             config.TTL,
		maxEntries:      config.MaxEntries,
		cleanupInterval: config.CleanupInterval,
		stopCleanup:     make(chan struct{}),
	}

	go c.cleanupLoop()

	return c
}

// Decode returns the decoded form of data, decoding it only on a miss.
// Decode errors are not cached.
func (c *DecodeCache) Decode(data []byte) (*Blob, error) {
	key := sha256.Sum256(data)
	now := time.Now()

	c.mutex.Lock()
	entry, ok := c.entries[key]
	if ok && now.After(entry.expiresAt) {
		delete(c.entries, key)
		ok = false
	}
	if ok {
		entry.accessedAt = now
		b := entry.blob.Clone()
		c.mutex.Unlock()
		cacheLookups.WithLabelValues("hit").Inc()
		return b, nil
	}
	c.mutex.Unlock()
	cacheLookups.WithLabelValues("miss").Inc()

	b, err := Decode(data)
	if err != nil {
		return nil, err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries[key] = &cacheEntry{
		blob:       b.Clone(),
		expiresAt:  now.Add(c.ttl),
		accessedAt: now,
	}
	if len(c.entries) > c.maxEntries {
		c.cleanup()
	}
	return b, nil
}

// Invalidate forgets the blob encoded as data.
func (c *DecodeCache) Invalidate(data []byte) {
	key := sha256.Sum256(data)
	c.mutex.Lock()
	delete(c.entries, key)
	c.mutex.Unlock()
}

// cleanup removes expired entries, then the least recently used ones while
// over the limit. Callers hold the write lock.
func (c *DecodeCache) cleanup() {
	now := time.Now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
	if len(c.entries) <= c.maxEntries {
		return
	}

	type keyAccess struct {
		key        [sha256.Size]byte
		accessedAt time.Time
	}
	list := make([]keyAccess, 0, len(c.entries))
	for key, entry := range c.entries {
		list = append(list, keyAccess{key: key, accessedAt: entry.accessedAt})
	}
	slices.SortFunc(list, func(a, b keyAccess) int {
		return a.accessedAt.Compare(b.accessedAt)
	})
	excess := len(c.entries) - c.maxEntries
	for _, ka := range list[:excess] {
		delete(c.entries, ka.key)
	}
}

func (c *DecodeCache) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mutex.Lock()
			c.cleanup()
			c.mutex.Unlock()
		case <-c.stopCleanup:
			return
		}
	}
}

// Close stops the cleanup goroutine and clears the cache. It is safe to
// call more than once.
func (c *DecodeCache) Close() {
	c.closeOnce.Do(func() {
		close(c.stopCleanup)
	})
	c.mutex.Lock()
	c.entries = make(map[[sha256.Size]byte]*cacheEntry)
	c.mutex.Unlock()
}

// CacheStats is a snapshot of a DecodeCache.
type CacheStats struct {
	TotalEntries   int
	ExpiredEntries int
	ActiveEntries  int
}

// Stats counts live and expired entries.
func (c *DecodeCache) Stats() CacheStats {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	now := time.Now()
	expired := 0
	for _, entry := range c.entries {
		if now.After(entry.expiresAt) {
			expired++
		}
	}
	return CacheStats{
		TotalEntries:   len(c.entries),
		ExpiredEntries: expired,
		ActiveEntries:  len(c.entries) - expired,
	}
}
