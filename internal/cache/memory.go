package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/goblinnotes/goblin/internal/failure"
)

// MemoryCache implements an in-memory store with a byte capacity.
//
// In LRU mode it evicts the least recently used entries to make room, which
// is how the fetch layer keeps its transport cache. In quota mode it rejects
// writes that do not fit, which is how a browser's storage quota behaves.
type MemoryCache struct {
	capacity int64 // Maximum size in bytes
	size     int64 // Current size in bytes
	quota    bool  // Reject instead of evicting

	// LRU implementation
	items    map[string]*list.Element
	eviction *list.List

	// Synchronization
	mu sync.RWMutex

	// Metrics
	stats CacheStats
}

// memoryCacheEntry represents an entry in the memory cache
type memoryCacheEntry struct {
	key       string
	value     []byte
	size      int64
	timestamp time.Time
	hits      int64
}

// NewMemoryCache creates a new evicting memory cache with the specified
// capacity in bytes.
func NewMemoryCache(capacity int64) *MemoryCache {
	return &MemoryCache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		eviction: list.New(),
		stats: CacheStats{
			Capacity: capacity,
		},
	}
}

// NewQuotaMemoryCache creates a memory store that fails writes with a quota
// error once capacity is reached.
func NewQuotaMemoryCache(capacity int64) *MemoryCache {
	c := NewMemoryCache(capacity)
	c.quota = true
	return c
}

// Get retrieves a value from the cache.
func (c *MemoryCache) Get(key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return nil, false, nil
	}

	// Move to front (most recently used)
	c.eviction.MoveToFront(elem)
	entry := elem.Value.(*memoryCacheEntry)
	entry.hits++

	c.stats.Hits++
	c.stats.LastAccess = time.Now()
	return entry.value, true, nil
}

// Put stores a value in the cache.
func (c *MemoryCache) Put(key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	valueSize := int64(len(value))

	var existing int64
	if elem, ok := c.items[key]; ok {
		existing = elem.Value.(*memoryCacheEntry).size
	}

	if c.quota && c.size-existing+valueSize > c.capacity {
		return failure.New(failure.CodeQuotaExceeded,
			fmt.Sprintf("memory store full writing %s (%d bytes)", key, valueSize), failure.ErrQuotaExceeded)
	}

	// Check if key already exists
	if elem, ok := c.items[key]; ok {
		c.eviction.MoveToFront(elem)
		entry := elem.Value.(*memoryCacheEntry)

		c.size += valueSize - entry.size

		entry.value = value
		entry.size = valueSize
		entry.timestamp = time.Now()

		for c.size > c.capacity && c.eviction.Len() > 1 {
			c.evictOldest()
		}

		c.stats.Size = c.size
		c.stats.Writes++
		return nil
	}

	// Check if value is too large for cache
	if valueSize > c.capacity {
		return ErrItemTooLarge
	}

	// Evict items if necessary
	for c.size+valueSize > c.capacity && c.eviction.Len() > 0 {
		c.evictOldest()
	}

	entry := &memoryCacheEntry{
		key:       key,
		value:     value,
		size:      valueSize,
		timestamp: time.Now(),
	}

	elem := c.eviction.PushFront(entry)
	c.items[key] = elem
	c.size += valueSize

	c.stats.Size = c.size
	c.stats.Writes++
	return nil
}

// Delete removes an entry from the cache.
func (c *MemoryCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil
	}

	c.removeElement(elem)
	return nil
}

// Clear removes all entries from the cache.
func (c *MemoryCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.eviction.Init()
	c.size = 0
	c.stats.Size = 0

	return nil
}

// Size returns the current cache size in bytes.
func (c *MemoryCache) Size() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.size
}

// Stats returns cache statistics.
func (c *MemoryCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.stats
	stats.Size = c.size
	stats.ItemCount = int64(len(c.items))

	if stats.Hits+stats.Misses > 0 {
		stats.HitRate = float64(stats.Hits) / float64(stats.Hits+stats.Misses)
	}

	return stats
}

// evictOldest removes the least recently used item (must be called with lock held).
func (c *MemoryCache) evictOldest() {
	elem := c.eviction.Back()
	if elem != nil {
		c.removeElement(elem)
		c.stats.Evictions++
		c.stats.LastEvict = time.Now()
	}
}

// removeElement removes an element from the cache (must be called with lock held).
func (c *MemoryCache) removeElement(elem *list.Element) {
	c.eviction.Remove(elem)
	entry := elem.Value.(*memoryCacheEntry)
	delete(c.items, entry.key)
	c.size -= entry.size
}

// Contains checks if a key exists in the cache without updating LRU.
func (c *MemoryCache) Contains(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.items[key]
	return ok
}

// Keys returns all keys in the cache.
func (c *MemoryCache) Keys() ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.items))
	for key := range c.items {
		keys = append(keys, key)
	}
	return keys, nil
}

// Close is a no-op; memory caches hold no external resources.
func (c *MemoryCache) Close() error {
	return nil
}
