// Package cache provides the Redis-backed balance cache.
package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"stokado/internal/core/entity"
	"stokado/internal/core/types"
	"stokado/internal/domain/ledger"
	"stokado/pkg/logger"
)

const balanceKeyPrefix = "balance:"

// BalanceCache is a read-through cache of partition balances. Every ledger
// write invalidates its partition key; the TTL bounds staleness for writes
// that bypass this process (offline imports straight into the database) and
// for a reader that re-caches a pre-invalidation value it read concurrently
// with a writer.
//
// All operations are best effort: Redis being down degrades reads to the
// database, it never fails them.
type BalanceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewBalanceCache creates the cache. ttl is the accepted staleness window.
func NewBalanceCache(client *redis.Client, ttl time.Duration) *BalanceCache {
	return &BalanceCache{client: client, ttl: ttl}
}

// Get returns the cached balance and whether the key was present.
func (c *BalanceCache) Get(ctx context.Context, key entity.PartitionKey) (types.Quantity, bool) {
	val, err := c.client.Get(ctx, balanceKeyPrefix+key.String()).Result()
	if err != nil {
		if err != redis.Nil {
			logger.Warn(ctx, "balance cache read failed", "key", key, "error", err)
		}
		return 0, false
	}

	scaled, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		logger.Warn(ctx, "balance cache value corrupt", "key", key, "value", val)
		c.Invalidate(ctx, key)
		return 0, false
	}
	return types.NewQuantityFromInt64Scaled(scaled), true
}

// Set stores the balance under the partition key with the staleness TTL.
func (c *BalanceCache) Set(ctx context.Context, key entity.PartitionKey, balance types.Quantity) {
	err := c.client.Set(ctx, balanceKeyPrefix+key.String(),
		strconv.FormatInt(balance.Int64Scaled(), 10), c.ttl).Err()
	if err != nil {
		logger.Warn(ctx, "balance cache write failed", "key", key, "error", err)
	}
}

// Invalidate drops the partition's cached balance.
func (c *BalanceCache) Invalidate(ctx context.Context, key entity.PartitionKey) {
	if err := c.client.Del(ctx, balanceKeyPrefix+key.String()).Err(); err != nil {
		logger.Warn(ctx, "balance cache invalidate failed", "key", key, "error", err)
	}
}

var _ ledger.BalanceCache = (*BalanceCache)(nil)
