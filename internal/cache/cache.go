// Package cache stores upstream payloads and rendered responses.
//
// Two backends implement Cache: an in-process LRU and Redis. Both are
// namespaced by a cache name ("origin", "response") so they can share a
// Redis database and be cleared independently.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
)

// Common cache errors.
var (
	// ErrCacheMiss indicates that the key was not found in the cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidConfig indicates that the cache options are invalid.
	ErrInvalidConfig = errors.New("invalid cache configuration")
)

// Backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Cache is a byte-oriented key/value store with per-entry TTL.
type Cache interface {
	// Get returns ErrCacheMiss when key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value. A ttl of 0 uses the cache default; a negative ttl
	// stores without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	// Clear removes every entry of this cache and reports how many were
	// removed.
	Clear(ctx context.Context) (int, error)

	Close() error

	Stats() Stats
}

// Stats contains cache statistics.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Size   int64 `json:"size"`
}

// HitRate returns the cache hit rate as a percentage.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// Options selects and configures a backend.
type Options struct {
	Name       string        // namespace and metrics label, e.g. "origin"
	Backend    string        // memory (default) or redis
	TTL        time.Duration // default entry TTL
	MaxEntries int           // memory only
	RedisURL   string        // redis only
	KeyPrefix  string        // redis only, default "connectorgw:"
}

// New builds the backend named by opts.Backend.
func New(opts Options) (Cache, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	switch strings.ToLower(opts.Backend) {
	case BackendMemory, "":
		return NewMemory(opts.Name, opts.MaxEntries, opts.TTL), nil
	case BackendRedis:
		return NewRedis(opts)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, opts.Backend)
	}
}

// Key hashes the parts into a fixed-length cache key. Parts are separated
// so that ("ab", "c") and ("a", "bc") differ.
func Key(parts ...string) string {
	h := xxh3.HashString128(strings.Join(parts, "\x00"))
	return fmt.Sprintf("%016x%016x", h.Hi, h.Lo)
}
