package memcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCache(t *testing.T, size int) (*Cache, *fakeClock) {
	t.Helper()
	c, err := New(size)
	require.NoError(t, err)
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c.now = clock.now
	return c, clock
}

func TestGetSetExpiry(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache(t, 8)

	v, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, c.SetWithExpiry(ctx, "k", time.Hour, "payload"))
	v, _ = c.Get(ctx, "k")
	assert.Equal(t, "payload", v)

	clock.advance(59 * time.Minute)
	v, _ = c.Get(ctx, "k")
	assert.Equal(t, "payload", v)

	clock.advance(2 * time.Minute)
	v, _ = c.Get(ctx, "k")
	assert.Empty(t, v)
	assert.Equal(t, 0, c.Len())
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, 2)

	require.NoError(t, c.SetWithExpiry(ctx, "a", 0, "1"))
	require.NoError(t, c.SetWithExpiry(ctx, "b", 0, "2"))
	_, _ = c.Get(ctx, "a")
	require.NoError(t, c.SetWithExpiry(ctx, "c", 0, "3"))

	a, _ := c.Get(ctx, "a")
	b, _ := c.Get(ctx, "b")
	assert.Equal(t, "1", a)
	assert.Empty(t, b)
}

func TestSetNXAndDelIfEqual(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache(t, 8)

	ok, err := c.SetNX(ctx, "lock", "one", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = c.SetNX(ctx, "lock", "two", time.Minute)
	assert.False(t, ok)

	deleted, _ := c.DelIfEqual(ctx, "lock", "two")
	assert.False(t, deleted)
	deleted, _ = c.DelIfEqual(ctx, "lock", "one")
	assert.True(t, deleted)

	ok, _ = c.SetNX(ctx, "lock", "three", time.Minute)
	assert.True(t, ok)
	clock.advance(2 * time.Minute)
	ok, _ = c.SetNX(ctx, "lock", "four", time.Minute)
	assert.True(t, ok, "expired claims can be re-taken")
}

func TestIncrWithExpiry(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache(t, 8)

	for want := int64(1); want <= 3; want++ {
		n, err := c.IncrWithExpiry(ctx, "hits", time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	clock.advance(2 * time.Second)
	n, err := c.IncrWithExpiry(ctx, "hits", time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
