package fetch

import (
	"context"
	"errors"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/JonMunkholm/connectorgw/internal/cache"
	"github.com/JonMunkholm/connectorgw/internal/logging"
)

// CacheObserver receives origin cache lookups. metrics.Collector implements it.
type CacheObserver interface {
	CacheHit(cache string)
	CacheMiss(cache string)
}

// Cached serves calls from the origin cache and fills it on misses.
//
// When the context carries a Stage, fresh payloads are staged there instead
// of written, and reach the cache only when the run commits the stage.
type Cached struct {
	next     Fetcher
	cache    cache.Cache
	ttl      time.Duration
	name     string
	observer CacheObserver
}

// NewCached wraps next with c. name labels lookups for obs (may be nil).
func NewCached(next Fetcher, c cache.Cache, ttl time.Duration, name string, obs CacheObserver) *Cached {
	return &Cached{next: next, cache: c, ttl: ttl, name: name, observer: obs}
}

// Fetch implements Fetcher.
func (c *Cached) Fetch(ctx context.Context, req Request) ([]byte, error) {
	key := RequestKey(req)
	stage := stageFrom(ctx)

	if stage != nil {
		if body, ok := stage.get(key); ok {
			return body, nil
		}
	}

	body, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		c.hit()
		return body, nil
	case !errors.Is(err, cache.ErrCacheMiss):
		logging.FromContext(ctx).Warn("origin cache lookup failed", "call", req.Name, "error", err)
	}
	c.miss()

	body, err = c.next.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	if stage != nil {
		stage.put(key, body)
		return body, nil
	}
	if err := c.cache.Set(ctx, key, body, c.ttl); err != nil {
		logging.FromContext(ctx).Warn("origin cache write failed", "call", req.Name, "error", err)
	}
	return body, nil
}

func (c *Cached) hit() {
	if c.observer != nil {
		c.observer.CacheHit(c.name)
	}
}

func (c *Cached) miss() {
	if c.observer != nil {
		c.observer.CacheMiss(c.name)
	}
}

// RequestKey identifies a bound call for caching.
func RequestKey(req Request) string {
	args, _ := json.Marshal(req.Call.Arguments)
	return cache.Key(req.Type(), req.BaseURL, req.Call.Method, req.Call.Endpoint, string(args))
}

// Stage collects origin cache writes made during one run.
type Stage struct {
	mu      sync.Mutex
	entries map[string][]byte
	order   []string
}

// NewStage returns an empty stage.
func NewStage() *Stage {
	return &Stage{entries: make(map[string][]byte)}
}

func (s *Stage) get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.entries[key]
	return b, ok
}

func (s *Stage) put(key string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; !ok {
		s.order = append(s.order, key)
	}
	s.entries[key] = body
}

// Len returns the number of staged entries.
func (s *Stage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Commit writes every staged entry to c and empties the stage. It stops at
// the first write error and reports how many entries were written.
func (s *Stage) Commit(ctx context.Context, c cache.Cache, ttl time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	written := 0
	for _, key := range s.order {
		if err := c.Set(ctx, key, s.entries[key], ttl); err != nil {
			return written, err
		}
		written++
	}
	s.entries = make(map[string][]byte)
	s.order = nil
	return written, nil
}

// Discard drops every staged entry and reports how many there were.
func (s *Stage) Discard() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.order)
	s.entries = make(map[string][]byte)
	s.order = nil
	return n
}

type stageKey struct{}

// WithStage returns a context whose cached fetches stage into s.
func WithStage(ctx context.Context, s *Stage) context.Context {
	return context.WithValue(ctx, stageKey{}, s)
}

func stageFrom(ctx context.Context) *Stage {
	s, _ := ctx.Value(stageKey{}).(*Stage)
	return s
}
