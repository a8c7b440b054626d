package resolver

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// ResultCache memoizes resolution results keyed by "<id>@<version-or-latest>".
// Implementations must drop everything on Purge; the resolver purges on every
// mutation of the installed-plugin set.
type ResultCache interface {
	Get(ctx context.Context, key string) (*ResolutionResult, bool)
	Set(ctx context.Context, key string, result *ResolutionResult)
	Purge(ctx context.Context)
	Type() string
}

const (
	defaultCacheEntries = 256
	defaultCacheTTL     = 5 * time.Minute
)

// MemoryCache is the default in-process resolution cache backed by an
// expirable LRU.
type MemoryCache struct {
	cache *lru.LRU[string, *ResolutionResult]
}

// NewMemoryCache creates an in-memory resolution cache. Zero values select
// the defaults.
func NewMemoryCache(maxEntries int, ttl time.Duration) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = defaultCacheEntries
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	return &MemoryCache{
		cache: lru.NewLRU[string, *ResolutionResult](maxEntries, nil, ttl),
	}
}

// Get retrieves a cached resolution result.
func (c *MemoryCache) Get(_ context.Context, key string) (*ResolutionResult, bool) {
	return c.cache.Get(key)
}

// Set stores a resolution result.
func (c *MemoryCache) Set(_ context.Context, key string, result *ResolutionResult) {
	c.cache.Add(key, result)
}

// Purge drops every cached result.
func (c *MemoryCache) Purge(_ context.Context) {
	c.cache.Purge()
}

// Type identifies the cache backend in metrics.
func (c *MemoryCache) Type() string { return "memory" }

// Len returns the number of cached results.
func (c *MemoryCache) Len() int { return c.cache.Len() }
