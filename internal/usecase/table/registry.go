package table

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "sync-admin/pkg/errors"
	"sync-admin/pkg/logger"
	"sync-admin/pkg/metrics"
)

// Factory creates a fresh session for a table. ctx carries the session id
// and is the parent of every fetch the session issues.
type Factory func(ctx context.Context) Session

type entry struct {
	session  Session
	lastSeen time.Time
	attached int // open streams; attached sessions are never idle
}

// Registry keeps the live table sessions, one per dashboard view.
type Registry struct {
	factories map[string]Factory
	idle      time.Duration
	log       *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewRegistry creates a registry. Sessions unused for longer than idle are
// reaped; zero disables reaping.
func NewRegistry(factories map[string]Factory, idle time.Duration, log *zap.Logger, m *metrics.Metrics) *Registry {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Registry{
		factories: factories,
		idle:      idle,
		log:       log,
		metrics:   m,
		now:       time.Now,
		sessions:  make(map[string]*entry),
	}
}

// Tables returns the names of the tables sessions can be opened for.
func (r *Registry) Tables() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// Create opens a new session on table and starts its first fetch. The first
// fetch carries the request id found in ctx.
func (r *Registry) Create(ctx context.Context, table string) (string, Session, error) {
	factory, ok := r.factories[table]
	if !ok {
		return "", nil, apperrors.NewNotFoundError("table", fmt.Sprintf("table %q not found", table))
	}

	id := uuid.NewString()
	s := factory(logger.WithSessionID(context.Background(), id))

	r.mu.Lock()
	r.sessions[id] = &entry{session: s, lastSeen: r.now()}
	count := len(r.sessions)
	r.mu.Unlock()

	r.metrics.ActiveSessions.Set(float64(count))
	r.log.Info("session created", zap.String("session_id", id), zap.String("table", table))

	s.Refresh(ctx)
	return id, s, nil
}

// Get returns the session with id and marks it as used.
func (r *Registry) Get(id string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	e.lastSeen = r.now()
	return e.session, nil
}

// Touch marks the session with id as used.
func (r *Registry) Touch(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return apperrors.ErrSessionNotFound
	}
	e.lastSeen = r.now()
	return nil
}

// Attach returns the session with id for a long-lived connection. The
// session is not reaped until release is called; its idle time starts then.
func (r *Registry) Attach(id string) (Session, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return nil, nil, apperrors.ErrSessionNotFound
	}
	e.attached++
	e.lastSeen = r.now()

	var once sync.Once
	release := func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			e.attached--
			e.lastSeen = r.now()
		})
	}
	return e.session, release, nil
}

// Delete closes and removes the session with id.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	count := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return apperrors.ErrSessionNotFound
	}

	e.session.Close()
	r.metrics.ActiveSessions.Set(float64(count))
	r.log.Info("session deleted", zap.String("session_id", id))
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Reap closes sessions idle for longer than the idle timeout and returns how
// many were closed. Sessions with an attached stream are skipped.
func (r *Registry) Reap() int {
	if r.idle <= 0 {
		return 0
	}

	cutoff := r.now().Add(-r.idle)
	var expired []Session

	r.mu.Lock()
	for id, e := range r.sessions {
		if e.attached == 0 && e.lastSeen.Before(cutoff) {
			expired = append(expired, e.session)
			delete(r.sessions, id)
			r.log.Debug("session expired", zap.String("session_id", id))
		}
	}
	count := len(r.sessions)
	r.mu.Unlock()

	for _, s := range expired {
		s.Close()
	}
	r.metrics.ActiveSessions.Set(float64(count))
	return len(expired)
}

// Run reaps idle sessions every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if r.idle <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Reap(); n > 0 {
				r.log.Info("idle sessions reaped", zap.Int("count", n))
			}
		}
	}
}

// Close closes every session.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range sessions {
		e.session.Close()
	}
	r.metrics.ActiveSessions.Set(0)
}
