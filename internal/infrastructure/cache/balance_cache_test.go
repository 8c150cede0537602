package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stokado/internal/core/entity"
	"stokado/internal/core/id"
	"stokado/internal/core/types"
)

func newTestCache(t *testing.T) (*BalanceCache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewBalanceCache(client, 5*time.Minute), srv
}

func TestCacheRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	key := entity.PartitionKey{ItemID: id.New(), LocationID: id.New()}
	ctx := context.Background()

	_, ok := c.Get(ctx, key)
	assert.False(t, ok, "miss on cold cache")

	c.Set(ctx, key, types.MustQuantity("12.5"))

	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, types.MustQuantity("12.5"), got)
}

func TestCacheInvalidate(t *testing.T) {
	c, _ := newTestCache(t)
	key := entity.PartitionKey{ItemID: id.New(), LocationID: id.New()}
	ctx := context.Background()

	c.Set(ctx, key, types.MustQuantity("3"))
	c.Invalidate(ctx, key)

	_, ok := c.Get(ctx, key)
	assert.False(t, ok)
}

func TestCacheEntriesExpire(t *testing.T) {
	c, srv := newTestCache(t)
	key := entity.PartitionKey{ItemID: id.New(), LocationID: id.New()}
	ctx := context.Background()

	c.Set(ctx, key, types.MustQuantity("3"))
	srv.FastForward(6 * time.Minute)

	_, ok := c.Get(ctx, key)
	assert.False(t, ok, "staleness window elapsed")
}

func TestCacheCorruptValueIsDropped(t *testing.T) {
	c, srv := newTestCache(t)
	key := entity.PartitionKey{ItemID: id.New(), LocationID: id.New()}
	ctx := context.Background()

	require.NoError(t, srv.Set("balance:"+key.String(), "garbage"))

	_, ok := c.Get(ctx, key)
	assert.False(t, ok)
	assert.False(t, srv.Exists("balance:"+key.String()), "corrupt entry is invalidated")
}

func TestCacheKeysAreSeparatePerPartition(t *testing.T) {
	c, _ := newTestCache(t)
	itemID := id.New()
	keyA := entity.PartitionKey{ItemID: itemID, LocationID: id.New()}
	keyB := entity.PartitionKey{ItemID: itemID, LocationID: id.New()}
	ctx := context.Background()

	c.Set(ctx, keyA, types.MustQuantity("1"))
	c.Set(ctx, keyB, types.MustQuantity("2"))

	a, ok := c.Get(ctx, keyA)
	require.True(t, ok)
	b, ok := c.Get(ctx, keyB)
	require.True(t, ok)
	assert.NotEqual(t, a, b)
}
