// Package parkmeta caches slowly-changing park metadata with a fixed TTL.
// The cache is an explicit object owned by the caller, never a hidden
// package-level global, so tests can control time and staleness.
package parkmeta

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/PArns/v4.ml.park.fan/internal/metrics"
	"github.com/PArns/v4.ml.park.fan/internal/models"
)

// Fetcher is the read contract the cache refreshes through.
type Fetcher interface {
	Parks(ctx context.Context, parkIDs []string) ([]models.Park, error)
}

type cacheEntry struct {
	park      models.Park
	fetchedAt time.Time
}

// Cache holds park metadata for up to one TTL. An expired or missing
// entry triggers a synchronous, rate-limited refetch that blocks only the
// calling batch.
type Cache struct {
	fetcher Fetcher
	ttl     time.Duration
	limiter *rate.Limiter
	now     func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// Stats is a point-in-time view of cache occupancy.
type Stats struct {
	Entries int
	Fresh   int
	Expired int
}

func New(fetcher Fetcher, ttl time.Duration, refreshPerMinute int) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if refreshPerMinute <= 0 {
		refreshPerMinute = 30
	}
	return &Cache{
		fetcher: fetcher,
		ttl:     ttl,
		limiter: rate.NewLimiter(rate.Limit(float64(refreshPerMinute)/60), refreshPerMinute),
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Get returns metadata for the requested parks, refetching stale or
// unknown ids in a single batched call.
func (c *Cache) Get(ctx context.Context, parkIDs []string) ([]models.Park, error) {
	now := c.now()
	out := make([]models.Park, 0, len(parkIDs))
	var stale []string

	c.mu.RLock()
	for _, id := range parkIDs {
		entry, ok := c.entries[id]
		if ok && now.Sub(entry.fetchedAt) < c.ttl {
			out = append(out, entry.park)
			metrics.ParkMetaCache.WithLabelValues("hit").Inc()
			continue
		}
		stale = append(stale, id)
		metrics.ParkMetaCache.WithLabelValues("miss").Inc()
	}
	c.mu.RUnlock()

	if len(stale) == 0 {
		return out, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("park metadata refresh rate limit: %w", err)
	}
	fetched, err := c.fetcher.Parks(ctx, stale)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh park metadata: %w", err)
	}

	c.mu.Lock()
	for _, p := range fetched {
		c.entries[p.ID] = cacheEntry{park: p, fetchedAt: now}
	}
	c.mu.Unlock()

	out = append(out, fetched...)
	return out, nil
}

// Invalidate drops one entry.
func (c *Cache) Invalidate(parkID string) {
	c.mu.Lock()
	delete(c.entries, parkID)
	c.mu.Unlock()
}

// InvalidateAll drops every entry.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// Stats reports current occupancy.
func (c *Cache) Stats() Stats {
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := Stats{Entries: len(c.entries)}
	for _, entry := range c.entries {
		if now.Sub(entry.fetchedAt) < c.ttl {
			st.Fresh++
		} else {
			st.Expired++
		}
	}
	return st
}
