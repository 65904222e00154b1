// Package cache defines the key/value contract shared by the redis and
// in-process drivers, plus the lease built on top of it.
package cache

import (
	"context"
	"time"
)

// Store is satisfied by *redis.Client and *memcache.Cache.
type Store interface {
	// Get returns ("", nil) when the key does not exist.
	Get(ctx context.Context, key string) (string, error)
	SetWithExpiry(ctx context.Context, key string, ttl time.Duration, value string) error
	Del(ctx context.Context, keys ...string) error
	// SetNX stores value only when key is absent and reports whether it did.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// DelIfEqual deletes key only while it still holds value.
	DelIfEqual(ctx context.Context, key, value string) (bool, error)
	// IncrWithExpiry increments a counter, setting ttl when the counter is created.
	IncrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Ping(ctx context.Context) error
}
