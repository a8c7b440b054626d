package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCache is a Redis-backed resolution cache. Invalidation is
// generation-based: Purge bumps an in-process generation counter that is part
// of every key, so stale entries simply age out via their TTL. The resolver
// is the single writer, which keeps the counter correct without any
// cross-process coordination.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	gen    atomic.Uint64
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(url string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	return &RedisCache{client: client, ttl: ttl}, nil
}

func (c *RedisCache) redisKey(key string) string {
	return fmt.Sprintf("hostkit:resolution:%d:%s", c.gen.Load(), key)
}

// Get retrieves a cached resolution result.
func (c *RedisCache) Get(ctx context.Context, key string) (*ResolutionResult, bool) {
	data, err := c.client.Get(ctx, c.redisKey(key)).Result()
	if err != nil {
		return nil, false
	}

	var result ResolutionResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		// Corrupt entry, drop it.
		c.client.Del(ctx, c.redisKey(key))
		return nil, false
	}

	return &result, true
}

// Set stores a resolution result.
func (c *RedisCache) Set(ctx context.Context, key string, result *ResolutionResult) {
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	c.client.Set(ctx, c.redisKey(key), data, c.ttl)
}

// Purge invalidates every cached result by advancing the key generation.
func (c *RedisCache) Purge(_ context.Context) {
	c.gen.Add(1)
}

// Type identifies the cache backend in metrics.
func (c *RedisCache) Type() string { return "redis" }

// Close releases the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
