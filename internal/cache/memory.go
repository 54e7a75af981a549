// Package cache provides an in-memory cache with per-entry expiry.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// expired reports whether the entry is past its deadline. A zero deadline
// never expires.
func (e entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Cache is a concurrency-safe map whose entries expire after a TTL.
// Expired entries are invisible to Get and are swept by a janitor goroutine.
type Cache[V any] struct {
	mutex sync.RWMutex
	items map[string]entry[V]
	ttl   time.Duration

	stop chan struct{}
	once sync.Once
	done sync.WaitGroup
}

// New creates a cache. A ttl <= 0 keeps entries until they are deleted;
// a sweep <= 0 disables the janitor.
func New[V any](ttl, sweep time.Duration) *Cache[V] {
	c := &Cache[V]{
		items: make(map[string]entry[V]),
		ttl:   ttl,
		stop:  make(chan struct{}),
	}

	if sweep > 0 {
		c.done.Add(1)
		go c.janitor(sweep)
	}
	return c
}

// Set stores value under key, replacing any previous entry.
func (c *Cache[V]) Set(key string, value V) {
	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = time.Now().Add(c.ttl)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.items[key] = entry[V]{value: value, expiresAt: expiresAt}
}

// Get returns the value stored under key if it has not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	e, ok := c.items[key]
	if !ok || e.expired(time.Now()) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// GetOrLoad returns the cached value for key, calling load and caching its
// result on a miss. Errors are returned and not cached.
func (c *Cache[V]) GetOrLoad(key string, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}

// Delete removes key.
func (c *Cache[V]) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.items, key)
}

// Clear removes all entries.
func (c *Cache[V]) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.items = make(map[string]entry[V])
}

// Len returns the number of stored entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.items)
}

// Close stops the janitor. The cache stays usable.
func (c *Cache[V]) Close() {
	c.once.Do(func() { close(c.stop) })
	c.done.Wait()
}

func (c *Cache[V]) janitor(every time.Duration) {
	defer c.done.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			c.sweep(now)
		}
	}
}

func (c *Cache[V]) sweep(now time.Time) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for key, e := range c.items {
		if e.expired(now) {
			delete(c.items, key)
		}
	}
}
