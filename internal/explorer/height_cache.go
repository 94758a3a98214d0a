package explorer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// HeightCache keeps the last known chain height for a network. A stale value
// is refreshed on read; if the refresh fails the stale value is served.
type HeightCache struct {
	mu        sync.Mutex
	ttl       time.Duration
	height    int64
	updatedAt time.Time
	now       func() time.Time
}

func NewHeightCache(ttl time.Duration) *HeightCache {
	return &HeightCache{ttl: ttl, now: time.Now}
}

func (c *HeightCache) get(ctx context.Context, fetch func(context.Context) (int64, error), logger *logrus.Logger) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.updatedAt.IsZero() && c.now().Sub(c.updatedAt) < c.ttl {
		return c.height, nil
	}
	height, err := fetch(ctx)
	if err != nil {
		if c.updatedAt.IsZero() {
			return 0, err
		}
		logger.WithError(err).Warn("fail to refresh chain height, serving cached value")
		return c.height, nil
	}
	c.height = height
	c.updatedAt = c.now()
	return height, nil
}

// Set stores a height observed elsewhere, e.g. by the block monitor.
func (c *HeightCache) Set(height int64) {
	c.mu.Lock()
	c.height = height
	c.updatedAt = c.now()
	c.mu.Unlock()
}

// Invalidate forces the next read to hit the explorer. The last value is
// kept as a fallback.
func (c *HeightCache) Invalidate() {
	c.mu.Lock()
	if !c.updatedAt.IsZero() {
		c.updatedAt = time.Unix(1, 0)
	}
	c.mu.Unlock()
}

// Cached wraps an Explorer and serves the chain height from a HeightCache.
type Cached struct {
	Explorer
	heights *HeightCache
	logger  *logrus.Logger
}

func NewCached(inner Explorer, ttl time.Duration, logger *logrus.Logger) *Cached {
	return &Cached{
		Explorer: inner,
		heights:  NewHeightCache(ttl),
		logger:   logger,
	}
}

func (c *Cached) GetBlockchainHeight(ctx context.Context) (int64, error) {
	return c.heights.get(ctx, c.Explorer.GetBlockchainHeight, c.logger)
}

// RefreshHeight bypasses the TTL and reports whether the height moved.
func (c *Cached) RefreshHeight(ctx context.Context) (int64, bool, error) {
	height, err := c.Explorer.GetBlockchainHeight(ctx)
	if err != nil {
		return 0, false, err
	}
	c.heights.mu.Lock()
	changed := c.heights.height != height
	c.heights.height = height
	c.heights.updatedAt = c.heights.now()
	c.heights.mu.Unlock()
	return height, changed, nil
}

func (c *Cached) Heights() *HeightCache {
	return c.heights
}
