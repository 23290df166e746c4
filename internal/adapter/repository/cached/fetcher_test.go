package cached

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"sync-admin/internal/adapter/cache"
	"sync-admin/internal/domain/project"
	domain "sync-admin/internal/domain/table"
	"sync-admin/pkg/metrics"
)

// MockFetcher is a mock implementation of table.Fetcher
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, req domain.FetchRequest) (*domain.Page[project.Project], error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Page[project.Project]), args.Error(1)
}

var req = domain.FetchRequest{Page: 1, Limit: 20, SortBy: "createdAt:DESC"}

func page() *domain.Page[project.Project] {
	return domain.NewPage([]project.Project{{ID: "p1", Name: "Apollo"}}, 2)
}

func newPageCache(t *testing.T) (cache.PageCache[project.Project], *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewRedisPageCache[project.Project](client, "projects", time.Minute, zaptest.NewLogger(t)), mr
}

func TestFetcher_CacheAside(t *testing.T) {
	pc, _ := newPageCache(t)
	upstream := new(MockFetcher)
	upstream.On("Fetch", mock.Anything, req).Return(page(), nil).Once()
	m := metrics.New(nil)

	f := NewFetcher[project.Project](upstream, pc, zaptest.NewLogger(t), m)

	first, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Apollo", first.Items[0].Name)

	second, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.Items, second.Items)
	assert.Equal(t, 2, second.TotalPages)

	upstream.AssertExpectations(t)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
}

func TestFetcher_UpstreamErrorIsNotCached(t *testing.T) {
	pc, _ := newPageCache(t)
	upstream := new(MockFetcher)
	upstream.On("Fetch", mock.Anything, req).Return(nil, errors.New("boom")).Once()
	upstream.On("Fetch", mock.Anything, req).Return(page(), nil).Once()

	f := NewFetcher[project.Project](upstream, pc, zaptest.NewLogger(t), nil)

	_, err := f.Fetch(context.Background(), req)
	assert.EqualError(t, err, "boom")

	got, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, got.Items, 1)
	upstream.AssertExpectations(t)
}

func TestFetcher_CacheDownFallsBackToUpstream(t *testing.T) {
	pc, mr := newPageCache(t)
	mr.Close()
	upstream := new(MockFetcher)
	upstream.On("Fetch", mock.Anything, req).Return(page(), nil)
	m := metrics.New(nil)

	f := NewFetcher[project.Project](upstream, pc, zaptest.NewLogger(t), m)

	got, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, got.Items, 1)
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.CacheLookups.WithLabelValues("error")), 1.0)
}

func TestFetcher_SingleFlight(t *testing.T) {
	release := make(chan time.Time)
	upstream := new(MockFetcher)
	upstream.On("Fetch", mock.Anything, req).
		WaitUntil(release).
		Return(page(), nil).
		Once()

	f := NewFetcher[project.Project](upstream, nil, zaptest.NewLogger(t), nil)

	const callers = 5
	var wg sync.WaitGroup
	results := make([]*domain.Page[project.Project], callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := f.Fetch(context.Background(), req)
			assert.NoError(t, err)
			results[i] = p
		}()
	}

	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	upstream.AssertNumberOfCalls(t, "Fetch", 1)
	for _, p := range results {
		require.NotNil(t, p)
		assert.Equal(t, "p1", p.Items[0].ID)
	}
}

func TestFetcher_CallerCancellation(t *testing.T) {
	release := make(chan time.Time)
	upstream := new(MockFetcher)
	upstream.On("Fetch", mock.Anything, req).WaitUntil(release).Return(page(), nil).Once()
	t.Cleanup(func() { close(release) })

	f := NewFetcher[project.Project](upstream, nil, zaptest.NewLogger(t), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.Fetch(ctx, req)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("fetch did not return after cancellation")
	}
}

func TestFetcher_Invalidate(t *testing.T) {
	pc, mr := newPageCache(t)
	upstream := new(MockFetcher)
	upstream.On("Fetch", mock.Anything, req).Return(page(), nil).Twice()

	f := NewFetcher[project.Project](upstream, pc, zaptest.NewLogger(t), nil)

	_, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, mr.Keys(), 1)

	require.NoError(t, f.Invalidate(context.Background()))
	assert.Empty(t, mr.Keys())

	_, err = f.Fetch(context.Background(), req)
	require.NoError(t, err)
	upstream.AssertExpectations(t)

	assert.NoError(t, NewFetcher[project.Project](upstream, nil, zaptest.NewLogger(t), nil).Invalidate(context.Background()))
}
