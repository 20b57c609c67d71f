package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/wellness/internal/domain"
)

type countingReader struct {
	lists, gets, latest int
	err                 error
}

func (r *countingReader) ListTrends(context.Context, time.Time, time.Time) ([]domain.DailyMetricRecord, error) {
	r.lists++
	if r.err != nil {
		return nil, r.err
	}
	return []domain.DailyMetricRecord{{Date: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}}, nil
}

func (r *countingReader) GetTrend(_ context.Context, day time.Time) (*domain.DailyMetricRecord, error) {
	r.gets++
	return &domain.DailyMetricRecord{Date: day}, nil
}

func (r *countingReader) LatestTrend(context.Context) (*domain.DailyMetricRecord, error) {
	r.latest++
	return nil, nil
}

func TestTrendCacheServesRepeatsUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	next := &countingReader{}
	c := NewTrendCache(next, 16, time.Minute)
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)

	for i := 0; i < 3; i++ {
		records, err := c.ListTrends(ctx, from, to)
		require.NoError(t, err)
		require.Len(t, records, 1)
	}
	require.Equal(t, 1, next.lists)

	_, err := c.ListTrends(ctx, from, time.Time{})
	require.NoError(t, err)
	require.Equal(t, 2, next.lists, "different range is a different key")

	for i := 0; i < 2; i++ {
		rec, err := c.LatestTrend(ctx)
		require.NoError(t, err)
		require.Nil(t, rec)
	}
	require.Equal(t, 1, next.latest, "absent results are cached too")

	_, err = c.GetTrend(ctx, from)
	require.NoError(t, err)
	_, err = c.GetTrend(ctx, from)
	require.NoError(t, err)
	require.Equal(t, 1, next.gets)

	require.NoError(t, c.Invalidate(ctx))
	_, err = c.ListTrends(ctx, from, to)
	require.NoError(t, err)
	require.Equal(t, 3, next.lists)
}

func TestTrendCacheDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	next := &countingReader{err: errors.New("db down")}
	c := NewTrendCache(next, 0, 0)

	_, err := c.ListTrends(ctx, time.Time{}, time.Time{})
	require.Error(t, err)
	_, err = c.ListTrends(ctx, time.Time{}, time.Time{})
	require.Error(t, err)
	require.Equal(t, 2, next.lists)
}

// slowReader blocks LatestTrend until release is closed.
type slowReader struct {
	countingReader
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
}

func (r *slowReader) LatestTrend(context.Context) (*domain.DailyMetricRecord, error) {
	r.mu.Lock()
	r.calls++
	first := r.calls == 1
	r.mu.Unlock()
	if first {
		close(r.started)
		<-r.release
	}
	return &domain.DailyMetricRecord{Date: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}, nil
}

func TestTrendCacheDropsReadsOverlappingInvalidate(t *testing.T) {
	ctx := context.Background()
	next := &slowReader{started: make(chan struct{}), release: make(chan struct{})}
	c := NewTrendCache(next, 16, time.Minute)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.LatestTrend(ctx)
	}()

	<-next.started
	require.NoError(t, c.Invalidate(ctx))
	close(next.release)
	<-done

	_, err := c.LatestTrend(ctx)
	require.NoError(t, err)
	_, err = c.LatestTrend(ctx)
	require.NoError(t, err)

	next.mu.Lock()
	defer next.mu.Unlock()
	require.Equal(t, 2, next.calls, "the read begun before Invalidate is not served afterwards")
}
