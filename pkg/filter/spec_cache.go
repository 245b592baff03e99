package filter

import (
	"context"

	memcache "github.com/goware/cachestore-mem"
	cachestore "github.com/goware/cachestore2"
)

// SpecCache caches resolved contract specs keyed by address. One is created
// fresh per watcher tick so specs fetched mid-tick are reused across
// monitors/blocks but never outlive it.
type SpecCache struct {
	store cachestore.Store[string]
}

// NewSpecCache builds a small in-memory, per-tick cache keyed by address.
func NewSpecCache() (*SpecCache, error) {
	store, err := memcache.NewCacheWithSize[string](256)
	if err != nil {
		return nil, err
	}
	return &SpecCache{store: store}, nil
}

// GetOrFetch returns the cached spec for address, or calls fetch and caches
// the result. fetch is typically the chain client's get_contract_spec.
func (c *SpecCache) GetOrFetch(ctx context.Context, address string, fetch func(ctx context.Context) (string, error)) (string, error) {
	return c.store.GetOrSetWithLockEx(ctx, address, func(ctx context.Context, key string) (string, error) {
		return fetch(ctx)
	}, 0)
}
