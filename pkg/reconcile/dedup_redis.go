package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "stockpilot:dedup:"

// RedisDeduplicator keeps the key set in Redis so deduplication survives
// process restarts and is shared between replicas. Each key carries a TTL
// equal to the retention window, which stands in for the coarse periodic
// sweep of the in-memory store.
type RedisDeduplicator struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedisDeduplicator creates a Redis-backed deduplicator.
func NewRedisDeduplicator(addr, password string, db int, retention time.Duration) *RedisDeduplicator {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisDeduplicator{client: rdb, retention: retention}
}

// Admit uses SET NX for an atomic check-and-insert.
func (d *RedisDeduplicator) Admit(ctx context.Context, key Key) (bool, error) {
	admitted, err := d.client.SetNX(ctx, redisKeyPrefix+key.String(), "1", d.retention).Result()
	if err != nil {
		return false, fmt.Errorf("dedup admit: %w", err)
	}
	return admitted, nil
}

// Release deletes the key.
func (d *RedisDeduplicator) Release(ctx context.Context, key Key) error {
	if err := d.client.Del(ctx, redisKeyPrefix+key.String()).Err(); err != nil {
		return fmt.Errorf("dedup release: %w", err)
	}
	return nil
}

// Sweep deletes every dedup key. Per-key TTLs already bound memory, so this
// is only reached via an explicit operator action.
func (d *RedisDeduplicator) Sweep(ctx context.Context) error {
	iter := d.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := d.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("dedup sweep: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("dedup sweep: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (d *RedisDeduplicator) Close() error { return d.client.Close() }
