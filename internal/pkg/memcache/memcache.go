// Package memcache is an in-process cache driver for single-instance
// deployments and tests.
package memcache

import (
	"context"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type entry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Cache is a size-bounded LRU with per-entry expiry.
type Cache struct {
	mu    sync.Mutex // serialises read-modify-write operations
	items *lru.Cache[string, entry]
	now   func() time.Time
}

func New(size int) (*Cache, error) {
	if size <= 0 {
		size = 1024
	}
	items, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	return &Cache{items: items, now: time.Now}, nil
}

func (c *Cache) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}

// lookupLocked returns a live entry, evicting it when expired.
func (c *Cache) lookupLocked(key string) (entry, bool) {
	e, ok := c.items.Get(key)
	if !ok {
		return entry{}, false
	}
	if e.expired(c.now()) {
		c.items.Remove(key)
		return entry{}, false
	}
	return e, true
}

func (c *Cache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lookupLocked(key)
	if !ok {
		return "", nil
	}
	return e.value, nil
}

func (c *Cache) SetWithExpiry(_ context.Context, key string, ttl time.Duration, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Add(key, entry{value: value, expiresAt: c.expiry(ttl)})
	return nil
}

func (c *Cache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		c.items.Remove(key)
	}
	return nil
}

func (c *Cache) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.lookupLocked(key); ok {
		return false, nil
	}
	c.items.Add(key, entry{value: value, expiresAt: c.expiry(ttl)})
	return true, nil
}

func (c *Cache) DelIfEqual(_ context.Context, key, value string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lookupLocked(key)
	if !ok || e.value != value {
		return false, nil
	}
	c.items.Remove(key)
	return true, nil
}

func (c *Cache) IncrWithExpiry(_ context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lookupLocked(key)
	if !ok {
		c.items.Add(key, entry{value: "1", expiresAt: c.expiry(ttl)})
		return 1, nil
	}
	n, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		return 0, err
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	c.items.Add(key, e)
	return n, nil
}

func (c *Cache) Ping(context.Context) error { return nil }

func (c *Cache) Len() int { return c.items.Len() }
