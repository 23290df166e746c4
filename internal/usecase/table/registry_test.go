package table

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"sync-admin/internal/domain/project"
	domain "sync-admin/internal/domain/table"
	apperrors "sync-admin/pkg/errors"
	"sync-admin/pkg/logger"
	"sync-admin/pkg/metrics"
)

func setupRegistry(t *testing.T, idle time.Duration) (*Registry, *metrics.Metrics) {
	log := zaptest.NewLogger(t)
	m := metrics.New(nil)
	fetcher := FetcherFunc[project.Project](func(ctx context.Context, req domain.FetchRequest) (*domain.Page[project.Project], error) {
		return domain.NewPage([]project.Project{{ID: "1", Name: "alpha"}}, 1), nil
	})
	r := NewRegistry(map[string]Factory{
		ProjectsTable: func(ctx context.Context) Session {
			return NewProjectController(ctx, fetcher, Options{PageSize: 20, Debounce: 10 * time.Millisecond}, log, m)
		},
	}, idle, log, m)
	t.Cleanup(r.Close)
	return r, m
}

func TestRegistry_CreateGetDelete(t *testing.T) {
	r, m := setupRegistry(t, 0)

	id, s, err := r.Create(context.Background(), ProjectsTable)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, ProjectsTable, s.Table())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSessions))

	got, err := r.Get(id)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return got.View().Status == StatusReady }, time.Second, 2*time.Millisecond)

	require.NoError(t, r.Delete(id))
	assert.Equal(t, 0, r.Len())

	_, err = r.Get(id)
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	assert.ErrorIs(t, r.Delete(id), apperrors.ErrSessionNotFound)
}

func TestRegistry_UnknownTable(t *testing.T) {
	r, _ := setupRegistry(t, 0)

	_, _, err := r.Create(context.Background(), "invoices")

	var nf *apperrors.NotFoundError
	assert.ErrorAs(t, err, &nf)
	assert.Equal(t, []string{ProjectsTable}, r.Tables())
}

func TestRegistry_ReapIdleSessions(t *testing.T) {
	r, m := setupRegistry(t, time.Minute)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	stale, _, err := r.Create(context.Background(), ProjectsTable)
	require.NoError(t, err)

	now = now.Add(45 * time.Second)
	fresh, _, err := r.Create(context.Background(), ProjectsTable)
	require.NoError(t, err)

	now = now.Add(30 * time.Second)
	assert.Equal(t, 1, r.Reap())

	_, err = r.Get(stale)
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	_, err = r.Get(fresh)
	assert.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSessions))
}

func TestRegistry_ReapDisabled(t *testing.T) {
	r, _ := setupRegistry(t, 0)
	_, _, err := r.Create(context.Background(), ProjectsTable)
	require.NoError(t, err)

	assert.Equal(t, 0, r.Reap())
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_TouchKeepsSessionAlive(t *testing.T) {
	r, _ := setupRegistry(t, time.Minute)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	id, _, err := r.Create(context.Background(), ProjectsTable)
	require.NoError(t, err)

	for range 5 {
		now = now.Add(30 * time.Second)
		require.NoError(t, r.Touch(id))
		assert.Equal(t, 0, r.Reap())
	}
	assert.ErrorIs(t, r.Touch("missing"), apperrors.ErrSessionNotFound)
}

func TestRegistry_AttachedSessionIsNotReaped(t *testing.T) {
	r, _ := setupRegistry(t, time.Minute)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	id, _, err := r.Create(context.Background(), ProjectsTable)
	require.NoError(t, err)

	s, release, err := r.Attach(id)
	require.NoError(t, err)
	assert.Equal(t, ProjectsTable, s.Table())

	now = now.Add(time.Hour)
	assert.Equal(t, 0, r.Reap())

	// Idle time counts from the moment the stream goes away.
	release()
	release()
	now = now.Add(30 * time.Second)
	assert.Equal(t, 0, r.Reap())

	now = now.Add(time.Minute)
	assert.Equal(t, 1, r.Reap())

	_, _, err = r.Attach(id)
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestRegistry_FetchContextCarriesIDs(t *testing.T) {
	log := zaptest.NewLogger(t)
	type seen struct{ session, request string }
	calls := make(chan seen, 4)
	fetcher := FetcherFunc[project.Project](func(ctx context.Context, req domain.FetchRequest) (*domain.Page[project.Project], error) {
		calls <- seen{session: logger.GetSessionID(ctx), request: logger.GetRequestID(ctx)}
		return domain.NewPage[project.Project](nil, 1), nil
	})
	r := NewRegistry(map[string]Factory{
		ProjectsTable: func(ctx context.Context) Session {
			return NewProjectController(ctx, fetcher, Options{PageSize: 20}, log, nil)
		},
	}, 0, log, nil)
	t.Cleanup(r.Close)

	id, s, err := r.Create(logger.WithRequestID(context.Background(), "req-create"), ProjectsTable)
	require.NoError(t, err)

	got := <-calls
	assert.Equal(t, seen{session: id, request: "req-create"}, got)

	s.Refresh(logger.WithRequestID(context.Background(), "req-refresh"))
	got = <-calls
	assert.Equal(t, seen{session: id, request: "req-refresh"}, got)
}
