package cache

import (
	"log/slog"
	"sync"
	"time"
)

// Cache is the process-wide entry point to a Store. Every operation holds a
// single mutex for its full duration; reads and writes share it.
//
// A Cache is created once and shared by pointer with everything that needs it.
type Cache struct {
	mu     sync.Mutex
	store  *Store
	logger *slog.Logger
}

// New creates a Cache over a fresh Store.
func New(cfg Config) *Cache {
	cfg = cfg.withDefaults()
	return &Cache{
		store:  NewStore(cfg),
		logger: cfg.Logger,
	}
}

// Set inserts or overwrites key with the default TTL.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Put(key, value)
}

// SetTTL inserts or overwrites key with the given lifetime.
// A non-positive ttl means the default.
func (c *Cache) SetTTL(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.PutTTL(key, value, ttl)
}

// Get returns the value for key and whether it was found.
// Expired entries are reported as absent.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Get(key)
}

// Delete removes key. Deleting a missing key is a no-op.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Delete(key)
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Clear()
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Len()
}

// Sweep reclaims expired entries and returns how many were removed.
func (c *Cache) Sweep() int {
	removed := c.sweepLocked()
	if removed > 0 {
		c.logger.Debug("expired cache entries swept", "removed", removed)
	}
	return removed
}

func (c *Cache) sweepLocked() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Sweep()
}

// Capacity returns the maximum number of entries.
func (c *Cache) Capacity() int { return c.store.Capacity() }

// TTL returns the default entry lifetime.
func (c *Cache) TTL() time.Duration { return c.store.TTL() }
