package eligibility

import (
	"context"
	"sync"
	"time"
)

// Cache memoizes fetched snapshots for a bounded time-to-live so repeated
// reads within one cycle do not hammer the source or the estimator.
type Cache struct {
	fetcher *Fetcher
	ttl     time.Duration

	mu    sync.Mutex
	snap  *Snapshot
	stale bool
}

// NewCache wraps a Fetcher with the given time-to-live.
func NewCache(fetcher *Fetcher, ttl time.Duration) *Cache {
	return &Cache{fetcher: fetcher, ttl: ttl}
}

// Fetch returns the cached snapshot when it is fresh, otherwise recomputes
// and replaces it. A failed recompute leaves the previous snapshot in
// place and returns the error.
func (c *Cache) Fetch(ctx context.Context, force bool) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !force && !c.stale && c.snap != nil && time.Since(c.snap.FetchedAt) < c.ttl {
		return c.snap, nil
	}

	fresh, err := c.fetcher.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	c.snap = fresh
	c.stale = false
	return fresh, nil
}

// Invalidate marks the snapshot stale so the next Fetch recomputes
// regardless of age.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stale = true
}
