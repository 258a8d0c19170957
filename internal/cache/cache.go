// Package cache provides a TTL-bounded in-memory cache for analysis results.
package cache

import (
	"fmt"
	"sync"
	"time"
)

// entry pairs a cached value with its storage time
type entry[T any] struct {
	value    T
	storedAt time.Time
}

// Cache is a generic key-value cache with time-based invalidation.
// A background sweep removes expired entries every TTL interval so memory
// stays bounded; Close stops the sweep so shutdown never hangs on a timer.
type Cache[T any] struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]entry[T]

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a cache with the given TTL and starts its background sweep
func New[T any](ttl time.Duration) *Cache[T] {
	c := &Cache[T]{
		ttl:     ttl,
		entries: make(map[string]entry[T]),
		done:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Get returns the cached value for key if it is present and fresh.
// An expired entry is treated as a miss.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		var zero T
		return zero, false
	}
	if time.Since(e.storedAt) >= c.ttl {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, unconditionally overwriting any previous entry
func (c *Cache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[T]{value: value, storedAt: time.Now()}
}

// Delete removes the entry for key, if any
func (c *Cache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of entries currently held, including any expired
// entries not yet swept.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the background sweep. Safe to call more than once.
func (c *Cache[T]) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// sweepLoop removes expired entries every TTL interval
func (c *Cache[T]) sweepLoop() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

func (c *Cache[T]) sweep() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if now.Sub(e.storedAt) >= c.ttl {
			delete(c.entries, key)
		}
	}
}

// CodebaseKey returns the cache key for a whole-project analysis
func CodebaseKey(path string) string {
	return fmt.Sprintf("codebase:%s", path)
}

// FileKey returns the content-addressed cache key for a single-file analysis.
// Including the content hash means edits invalidate the entry automatically.
func FileKey(path, contentHash string) string {
	return fmt.Sprintf("file:%s:%s", path, contentHash)
}
