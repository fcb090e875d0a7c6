package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

type MemoryCache struct {
	c *ttlcache.Cache[TileCacheKey, TileCacheValue]
}

// NewMemoryCache keeps at most capacity payloads (0 means unbounded), each
// for ttl. Call Close to stop the expiry loop.
func NewMemoryCache(ttl time.Duration, capacity uint64) *MemoryCache {
	opts := []ttlcache.Option[TileCacheKey, TileCacheValue]{
		ttlcache.WithTTL[TileCacheKey, TileCacheValue](ttl),
	}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[TileCacheKey, TileCacheValue](capacity))
	}
	c := ttlcache.New(opts...)
	go c.Start()
	return &MemoryCache{c: c}
}

var _ TileCache = (*MemoryCache)(nil)

func (c *MemoryCache) Get(_ context.Context, k TileCacheKey) (TileCacheValue, bool, error) {
	item := c.c.Get(k)
	if item == nil {
		return nil, false, nil
	}
	return item.Value(), true, nil
}

func (c *MemoryCache) Set(_ context.Context, k TileCacheKey, v TileCacheValue) error {
	c.c.Set(k, v, ttlcache.DefaultTTL)
	return nil
}

func (c *MemoryCache) Len() int {
	return c.c.Len()
}

func (c *MemoryCache) Close() error {
	c.c.Stop()
	return nil
}
