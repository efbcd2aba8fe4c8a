package cache

import (
	"sync"
	"time"

	"github.com/rxlens/backend/internal/domain"
)

const janitorInterval = 10 * time.Minute

// cacheItem is one cached candidate set with its expiration.
type cacheItem struct {
	candidates []domain.RxNormCandidate
	expiration time.Time
}

// MemoryCache is a thread-safe in-memory cache for candidate lookups with
// TTL support. Name queries repeat across a directory run (one product,
// many package codes), so hits cut remote traffic substantially.
type MemoryCache struct {
	data  map[string]cacheItem
	mutex sync.RWMutex
	stop  chan struct{}
	once  sync.Once
}

// NewMemoryCache creates a new in-memory candidate cache and starts its
// expiry janitor.
func NewMemoryCache() *MemoryCache {
	c := &MemoryCache{
		data: make(map[string]cacheItem),
		stop: make(chan struct{}),
	}
	go c.cleanupExpired()
	return c
}

// Close stops the expiry janitor. The cache itself stays usable; safe to
// call more than once.
func (c *MemoryCache) Close() {
	c.once.Do(func() { close(c.stop) })
}

// Get returns the cached candidates for a key, if present and not expired.
func (c *MemoryCache) Get(key string) ([]domain.RxNormCandidate, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	item, exists := c.data[key]
	if !exists || time.Now().After(item.expiration) {
		return nil, false
	}
	return item.candidates, true
}

// Set stores a candidate set under key for ttl. An empty set is cached too;
// "no candidates" is as cacheable as a hit.
func (c *MemoryCache) Set(key string, candidates []domain.RxNormCandidate, ttl time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data[key] = cacheItem{
		candidates: candidates,
		expiration: time.Now().Add(ttl),
	}
}

// Size returns the current number of entries.
func (c *MemoryCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.data)
}

// cleanupExpired removes expired entries periodically until Close.
func (c *MemoryCache) cleanupExpired() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mutex.Lock()
			now := time.Now()
			for key, item := range c.data {
				if now.After(item.expiration) {
					delete(c.data, key)
				}
			}
			c.mutex.Unlock()
		}
	}
}
