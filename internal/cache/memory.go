package cache

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultMaxEntries bounds a memory cache created without a limit.
const DefaultMaxEntries = 10000

// Memory is an in-process LRU cache.
type Memory struct {
	name       string
	maxEntries int
	defaultTTL time.Duration
	now        func() time.Time

	mu       sync.Mutex
	items    map[string]*list.Element
	eviction *list.List

	hits   atomic.Int64
	misses atomic.Int64
}

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewMemory creates an LRU cache holding at most maxEntries entries.
func NewMemory(name string, maxEntries int, defaultTTL time.Duration) *Memory {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	metrics().init(name, BackendMemory)
	return &Memory{
		name:       name,
		maxEntries: maxEntries,
		defaultTTL: defaultTTL,
		now:        time.Now,
		items:      make(map[string]*list.Element),
		eviction:   list.New(),
	}
}

// Get retrieves a value from the cache.
func (c *Memory) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.miss()
		return nil, ErrCacheMiss
	}
	entry := elem.Value.(*memoryEntry)
	if c.expired(entry) {
		c.removeElement(elem)
		c.miss()
		return nil, ErrCacheMiss
	}

	c.eviction.MoveToFront(elem)
	c.hits.Add(1)
	metrics().hits.WithLabelValues(c.name, BackendMemory).Inc()
	return entry.value, nil
}

func (c *Memory) miss() {
	c.misses.Add(1)
	metrics().misses.WithLabelValues(c.name, BackendMemory).Inc()
}

func (c *Memory) expired(e *memoryEntry) bool {
	return !e.expiresAt.IsZero() && c.now().After(e.expiresAt)
}

// Set stores a value in the cache.
func (c *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	entry := &memoryEntry{key: key, value: value}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.eviction.MoveToFront(elem)
		elem.Value = entry
		return nil
	}

	c.items[key] = c.eviction.PushFront(entry)
	for c.eviction.Len() > c.maxEntries {
		c.removeElement(c.eviction.Back())
		metrics().evictions.WithLabelValues(c.name, BackendMemory).Inc()
	}
	metrics().size.WithLabelValues(c.name, BackendMemory).Set(float64(c.eviction.Len()))
	return nil
}

// Delete removes a value from the cache.
func (c *Memory) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
	return nil
}

// Clear drops every entry.
func (c *Memory) Clear(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.eviction.Len()
	c.items = make(map[string]*list.Element)
	c.eviction.Init()
	metrics().size.WithLabelValues(c.name, BackendMemory).Set(0)
	return n, nil
}

// Close releases the entries.
func (c *Memory) Close() error {
	_, err := c.Clear(context.Background())
	return err
}

// Stats returns cache statistics.
func (c *Memory) Stats() Stats {
	c.mu.Lock()
	size := int64(c.eviction.Len())
	c.mu.Unlock()

	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   size,
	}
}

// Sweep removes expired entries and reports how many were removed.
func (c *Memory) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []*list.Element
	for elem := c.eviction.Back(); elem != nil; elem = elem.Prev() {
		if c.expired(elem.Value.(*memoryEntry)) {
			expired = append(expired, elem)
		}
	}
	for _, elem := range expired {
		c.removeElement(elem)
	}
	if len(expired) > 0 {
		slog.Debug("cache sweep removed expired entries", "cache", c.name, "removed", len(expired))
		metrics().size.WithLabelValues(c.name, BackendMemory).Set(float64(c.eviction.Len()))
	}
	return len(expired)
}

// removeElement must be called with the lock held.
func (c *Memory) removeElement(elem *list.Element) {
	c.eviction.Remove(elem)
	delete(c.items, elem.Value.(*memoryEntry).key)
}
