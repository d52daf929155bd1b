// Package cache provides short-lived caching of acquisition results so
// repeated requests for the same listing do not burn rate budget.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/propscout/propscout/pkg/models"
)

// Cache is the interface for record caching implementations.
type Cache interface {
	// Get retrieves a cached record by canonical URL.
	Get(key string) (*models.PropertyRecord, bool)

	// Set stores a record with the specified TTL, replacing any existing
	// entry for the key.
	Set(key string, rec *models.PropertyRecord, ttl time.Duration)

	// Delete removes an entry. No-op when the key is absent.
	Delete(key string)

	// Stats reports entry count and hit/miss counters.
	Stats() models.CacheStats

	// Close releases cache resources.
	Close()
}

type entry struct {
	key       string
	rec       *models.PropertyRecord
	expiresAt time.Time
}

// MemoryCache is an in-memory record cache with LRU eviction.
type MemoryCache struct {
	mu         sync.Mutex
	store      map[string]*list.Element
	lru        *list.List // front = most recently used
	maxEntries int
	hits       uint64
	misses     uint64
}

// NewMemoryCache creates a MemoryCache holding at most maxEntries records.
func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &MemoryCache{
		store:      make(map[string]*list.Element),
		lru:        list.New(),
		maxEntries: maxEntries,
	}
}

// Get returns the cached record for key, expiring stale entries lazily.
func (c *MemoryCache) Get(key string) (*models.PropertyRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.store[key]
	if !ok {
		c.misses++
		return nil, false
	}
	e := el.Value.(*entry)
	if time.Now().After(e.expiresAt) {
		c.removeLocked(el)
		c.misses++
		return nil, false
	}
	c.lru.MoveToFront(el)
	c.hits++
	return e.rec, true
}

// Set stores a record, evicting the least recently used entry when full.
func (c *MemoryCache) Set(key string, rec *models.PropertyRecord, ttl time.Duration) {
	if rec == nil || ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.store[key]; ok {
		e := el.Value.(*entry)
		e.rec = rec
		e.expiresAt = time.Now().Add(ttl)
		c.lru.MoveToFront(el)
		return
	}

	el := c.lru.PushFront(&entry{key: key, rec: rec, expiresAt: time.Now().Add(ttl)})
	c.store[key] = el

	for c.lru.Len() > c.maxEntries {
		if back := c.lru.Back(); back != nil {
			c.removeLocked(back)
		}
	}
}

// Delete removes an entry by key.
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.store[key]; ok {
		c.removeLocked(el)
	}
}

// Stats reports current cache effectiveness.
func (c *MemoryCache) Stats() models.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.CacheStats{
		Entries: c.lru.Len(),
		Hits:    c.hits,
		Misses:  c.misses,
	}
}

// Close clears the cache.
func (c *MemoryCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = make(map[string]*list.Element)
	c.lru.Init()
}

func (c *MemoryCache) removeLocked(el *list.Element) {
	e := el.Value.(*entry)
	c.lru.Remove(el)
	delete(c.store, e.key)
}
