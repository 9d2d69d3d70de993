// Package cache provides the in-process TTL cache used by the metrics aggregator.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const cleanupInterval = 10 * time.Minute

// MemoryCache implements cache.Cache on top of go-cache. It is safe for
// concurrent use.
type MemoryCache struct {
	store *gocache.Cache
}

func NewMemoryCache(defaultTTL time.Duration) *MemoryCache {
	return &MemoryCache{store: gocache.New(defaultTTL, cleanupInterval)}
}

func (c *MemoryCache) Get(key string) (interface{}, bool) {
	return c.store.Get(key)
}

// Set stores value for ttl. A non-positive ttl uses the default TTL.
func (c *MemoryCache) Set(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	c.store.Set(key, value, ttl)
}

func (c *MemoryCache) Delete(keys ...string) {
	for _, k := range keys {
		c.store.Delete(k)
	}
}

// Len returns the number of stored items, including expired ones not yet cleaned up.
func (c *MemoryCache) Len() int {
	return c.store.ItemCount()
}
