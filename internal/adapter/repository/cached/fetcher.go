package cached

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"sync-admin/internal/adapter/cache"
	domain "sync-admin/internal/domain/table"
	"sync-admin/internal/usecase/table"
	"sync-admin/pkg/metrics"
)

// Fetcher implements table.Fetcher with caching support.
// It wraps an upstream fetcher and a page cache.
type Fetcher[T any] struct {
	next    table.Fetcher[T]
	cache   cache.PageCache[T]
	log     *zap.Logger
	metrics *metrics.Metrics
	group   singleflight.Group
}

// NewFetcher creates a cache-aside fetcher. A nil cache only deduplicates
// concurrent identical requests.
func NewFetcher[T any](next table.Fetcher[T], c cache.PageCache[T], log *zap.Logger, m *metrics.Metrics) *Fetcher[T] {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Fetcher[T]{
		next:    next,
		cache:   c,
		log:     log,
		metrics: m,
	}
}

// Fetch returns a page using the cache-aside pattern.
func (f *Fetcher[T]) Fetch(ctx context.Context, req domain.FetchRequest) (*domain.Page[T], error) {
	if page := f.lookup(ctx, req); page != nil {
		return page, nil
	}

	// Identical concurrent requests share one upstream call. The shared call
	// outlives a single caller's cancellation; each caller still stops
	// waiting when its own ctx ends.
	key := req.Key()
	ch := f.group.DoChan(key, func() (any, error) {
		shared := context.WithoutCancel(ctx)

		if page := f.lookup(shared, req); page != nil {
			return page, nil
		}

		page, err := f.next.Fetch(shared, req)
		if err != nil {
			return nil, err
		}

		if f.cache != nil {
			if err := f.cache.Set(shared, req, page); err != nil {
				f.log.Warn("failed to cache page", zap.String("key", key), zap.Error(err))
			}
		}
		return page, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Page[T]), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops cached pages so the next fetch goes upstream.
func (f *Fetcher[T]) Invalidate(ctx context.Context) error {
	if f.cache == nil {
		return nil
	}
	return f.cache.Invalidate(ctx)
}

func (f *Fetcher[T]) lookup(ctx context.Context, req domain.FetchRequest) *domain.Page[T] {
	if f.cache == nil {
		return nil
	}
	page, err := f.cache.Get(ctx, req)
	switch {
	case err != nil:
		f.metrics.CacheLookups.WithLabelValues("error").Inc()
		f.log.Warn("cache get error, falling back to upstream", zap.Error(err))
		return nil
	case page == nil:
		f.metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil
	default:
		f.metrics.CacheLookups.WithLabelValues("hit").Inc()
		return page
	}
}
