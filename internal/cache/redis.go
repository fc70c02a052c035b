package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces every key this service writes to Redis.
const DefaultKeyPrefix = "connectorgw:"

// clearBatch is the SCAN page size used by Clear.
const clearBatch = 500

// Redis is a Redis-backed cache. Keys are stored as <prefix><name>:<key>.
type Redis struct {
	name       string
	client     *redis.Client
	prefix     string
	defaultTTL time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedis connects to opts.RedisURL and verifies the connection.
func NewRedis(opts Options) (*Redis, error) {
	if opts.RedisURL == "" {
		return nil, fmt.Errorf("%w: redis url is required", ErrInvalidConfig)
	}
	ropts, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid redis URL: %v", ErrInvalidConfig, err)
	}
	client := redis.NewClient(ropts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return newRedisWithClient(opts, client), nil
}

func newRedisWithClient(opts Options, client *redis.Client) *Redis {
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	metrics().init(opts.Name, BackendRedis)
	slog.Info("redis cache initialized", "cache", opts.Name, "prefix", prefix, "ttl", opts.TTL)
	return &Redis{
		name:       opts.Name,
		client:     client,
		prefix:     prefix + opts.Name + ":",
		defaultTTL: opts.TTL,
	}
}

func (c *Redis) key(k string) string {
	return c.prefix + k
}

// Get retrieves a value from the cache.
func (c *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	switch {
	case err == nil:
		c.hits.Add(1)
		metrics().hits.WithLabelValues(c.name, BackendRedis).Inc()
		return val, nil
	case errors.Is(err, redis.Nil):
		c.misses.Add(1)
		metrics().misses.WithLabelValues(c.name, BackendRedis).Inc()
		return nil, ErrCacheMiss
	default:
		metrics().errors.WithLabelValues(c.name, BackendRedis, "get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}
}

// Set stores a value in the cache.
func (c *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	if ttl < 0 {
		ttl = 0 // no expiry
	}
	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		metrics().errors.WithLabelValues(c.name, BackendRedis, "set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes a value from the cache.
func (c *Redis) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		metrics().errors.WithLabelValues(c.name, BackendRedis, "delete").Inc()
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// Clear deletes every key under this cache's prefix. Keys written by other
// caches sharing the database are left alone.
func (c *Redis) Clear(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.prefix+"*", clearBatch).Result()
		if err != nil {
			metrics().errors.WithLabelValues(c.name, BackendRedis, "clear").Inc()
			return removed, fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				metrics().errors.WithLabelValues(c.name, BackendRedis, "clear").Inc()
				return removed, fmt.Errorf("redis delete: %w", err)
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

// Close closes the Redis client.
func (c *Redis) Close() error {
	return c.client.Close()
}

// Stats returns hit/miss counters. Size is not tracked for Redis.
func (c *Redis) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
}
