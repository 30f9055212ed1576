package slice

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultCleanupInterval is how often expired cursors are purged.
const DefaultCleanupInterval = 30 * time.Minute

// Cache holds the last served cursor of recent listings. Entries expire
// and may vanish at any time; a miss only costs a slower query.
type Cache struct {
	cache *gocache.Cache
}

// NewCache creates a cache whose entries live for ttl.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{cache: gocache.New(ttl, DefaultCleanupInterval)}
}

// Get returns the cursor stored under key.
func (c *Cache) Get(key string) (Cursor, bool) {
	v, found := c.cache.Get(key)
	if !found {
		return Cursor{}, false
	}
	cur, ok := v.(Cursor)
	return cur, ok
}

// Put stores cur under key with the default expiration.
func (c *Cache) Put(key string, cur Cursor) {
	c.cache.SetDefault(key, cur)
}

// Len returns the number of stored entries, including expired ones not yet purged.
func (c *Cache) Len() int {
	return c.cache.ItemCount()
}

// Flush drops every entry.
func (c *Cache) Flush() {
	c.cache.Flush()
}
