// Package cache keeps recently served trend reads in memory until the next
// committed generation.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/maypok86/otter/v2"

	"example.com/wellness/internal/dataset"
	"example.com/wellness/internal/domain"
)

// Invalidator drops cached reads after a new generation is committed.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// NoopInvalidator satisfies Invalidator without doing anything.
type NoopInvalidator struct{}

// Invalidate implements Invalidator.
func (NoopInvalidator) Invalidate(context.Context) error { return nil }

const latestKey = "latest"

type entry struct {
	records []domain.DailyMetricRecord
	record  *domain.DailyMetricRecord
}

// TrendCache wraps a domain.TrendReader with a bounded, expiring cache.
// Results are shared between callers and must not be mutated.
//
// A read that started before Invalidate is not stored. Invalidation only
// reaches this process; writers elsewhere are seen once entries expire.
type TrendCache struct {
	next  domain.TrendReader
	cache *otter.Cache[string, entry]

	mu         sync.RWMutex
	generation uint64
}

var _ domain.TrendReader = (*TrendCache)(nil)

// NewTrendCache constructs a TrendCache holding up to size entries for ttl.
func NewTrendCache(next domain.TrendReader, size int, ttl time.Duration) *TrendCache {
	if size <= 0 {
		size = 256
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &TrendCache{
		next: next,
		cache: otter.Must(&otter.Options[string, entry]{
			MaximumSize:      size,
			ExpiryCalculator: otter.ExpiryWriting[string, entry](ttl),
		}),
	}
}

// ListTrends implements domain.TrendReader.
func (c *TrendCache) ListTrends(ctx context.Context, from, to time.Time) ([]domain.DailyMetricRecord, error) {
	key := "list:" + dayKey(from) + ".." + dayKey(to)
	if e, ok := c.cache.GetIfPresent(key); ok {
		return e.records, nil
	}
	gen := c.currentGeneration()
	records, err := c.next.ListTrends(ctx, from, to)
	if err != nil {
		return nil, err
	}
	c.store(gen, key, entry{records: records})
	return records, nil
}

// GetTrend implements domain.TrendReader.
func (c *TrendCache) GetTrend(ctx context.Context, day time.Time) (*domain.DailyMetricRecord, error) {
	key := "day:" + dayKey(day)
	if e, ok := c.cache.GetIfPresent(key); ok {
		return e.record, nil
	}
	gen := c.currentGeneration()
	rec, err := c.next.GetTrend(ctx, day)
	if err != nil {
		return nil, err
	}
	c.store(gen, key, entry{record: rec})
	return rec, nil
}

// LatestTrend implements domain.TrendReader.
func (c *TrendCache) LatestTrend(ctx context.Context) (*domain.DailyMetricRecord, error) {
	if e, ok := c.cache.GetIfPresent(latestKey); ok {
		return e.record, nil
	}
	gen := c.currentGeneration()
	rec, err := c.next.LatestTrend(ctx)
	if err != nil {
		return nil, err
	}
	c.store(gen, latestKey, entry{record: rec})
	return rec, nil
}

// Invalidate drops every cached read and discards reads still in flight.
func (c *TrendCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.cache.InvalidateAll()
	return nil
}

func (c *TrendCache) currentGeneration() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// store sets key unless an invalidation happened since gen was read.
func (c *TrendCache) store(gen uint64, key string, e entry) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.generation != gen {
		return
	}
	c.cache.Set(key, e)
}

func dayKey(t time.Time) string {
	if t.IsZero() {
		return "*"
	}
	return t.Format(dataset.DayLayout)
}
