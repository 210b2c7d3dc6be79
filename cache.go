package authz

import (
	"context"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
)

// MemoryCache is a mutex-guarded map with per-entry TTL. It is the
// zero-dependency default decision cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryCacheEntry
}

type memoryCacheEntry struct {
	value     string
	expiresAt time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryCacheEntry)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return "", false
	}
	return entry.value, true
}

func (c *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = memoryCacheEntry{value: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

// Flush drops every entry.
func (c *MemoryCache) Flush() {
	c.mu.Lock()
	for k := range c.entries {
		delete(c.entries, k)
	}
	c.mu.Unlock()
}

// RistrettoCache backs the decision cache with a ristretto cache for
// high-concurrency deployments.
type RistrettoCache struct {
	cache *ristretto.Cache
}

// RistrettoConfig sizes the underlying cache.
type RistrettoConfig struct {
	NumCounters int64 `json:"num_counters" yaml:"num_counters"`
	MaxCost     int64 `json:"max_cost" yaml:"max_cost"`
	BufferItems int64 `json:"buffer_items" yaml:"buffer_items"`
}

func NewRistrettoCache(cfg RistrettoConfig) (*RistrettoCache, error) {
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = 1e6
	}
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = 1 << 24
	}
	if cfg.BufferItems <= 0 {
		cfg.BufferItems = 64
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &RistrettoCache{cache: c}, nil
}

func (c *RistrettoCache) Get(_ context.Context, key string) (string, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (c *RistrettoCache) Set(_ context.Context, key, value string, ttl time.Duration) {
	c.cache.SetWithTTL(key, value, int64(len(key)+len(value)), ttl)
}

func (c *RistrettoCache) Close() {
	c.cache.Close()
}
