package handler

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"sync-admin/internal/domain/project"
	domain "sync-admin/internal/domain/table"
	"sync-admin/internal/usecase/table"
	"sync-admin/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubFetcher serves a fixed set of projects and records requests.
type stubFetcher struct {
	fail      atomic.Bool
	calls     atomic.Int32
	last      atomic.Value
	requestID atomic.Value
	sessionID atomic.Value
}

func (f *stubFetcher) Fetch(ctx context.Context, req domain.FetchRequest) (*domain.Page[project.Project], error) {
	f.calls.Add(1)
	f.last.Store(req)
	f.requestID.Store(logger.GetRequestID(ctx))
	f.sessionID.Store(logger.GetSessionID(ctx))
	if f.fail.Load() {
		return nil, errors.New("upstream down")
	}
	return domain.NewPage([]project.Project{
		{ID: "p1", Name: "Apollo", Status: project.StatusCompleted, CreatedAt: "2025-01-02T10:00:00Z",
			Owner: &project.User{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}},
		{ID: "p2", Name: "Borealis", Status: "ARCHIVED", CreatedAt: "2025-01-03T10:00:00Z"},
	}, 3), nil
}

func (f *stubFetcher) lastRequest() domain.FetchRequest {
	req, _ := f.last.Load().(domain.FetchRequest)
	return req
}

type countingInvalidator struct{ n atomic.Int32 }

func (i *countingInvalidator) Invalidate(context.Context) error {
	i.n.Add(1)
	return nil
}

type testEnv struct {
	router   *gin.Engine
	registry *table.Registry
	fetcher  *stubFetcher
	inv      *countingInvalidator
}

func setup(t *testing.T) *testEnv {
	return setupWithIdle(t, time.Hour)
}

func setupWithIdle(t *testing.T, idle time.Duration) *testEnv {
	log := zaptest.NewLogger(t)
	f := &stubFetcher{}
	inv := &countingInvalidator{}

	registry := table.NewRegistry(map[string]table.Factory{
		table.ProjectsTable: func(ctx context.Context) table.Session {
			return table.NewProjectController(ctx, f, table.Options{PageSize: 20, Debounce: 10 * time.Millisecond}, log, nil)
		},
	}, idle, log, nil)
	t.Cleanup(registry.Close)

	th := NewTableHandler(registry, map[string]Invalidator{table.ProjectsTable: inv}, log)
	sh := NewStreamHandler(registry, nil, log)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if id := c.GetHeader("X-Request-ID"); id != "" {
			c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), id))
		}
		c.Next()
	})
	r.POST("/v1/tables/:table/sessions", th.CreateSession)
	r.GET("/v1/sessions/:id", th.GetSession)
	r.DELETE("/v1/sessions/:id", th.DeleteSession)
	r.PUT("/v1/sessions/:id/search", th.Search)
	r.POST("/v1/sessions/:id/sort", th.Sort)
	r.PUT("/v1/sessions/:id/page", th.SetPage)
	r.POST("/v1/sessions/:id/refresh", th.Refresh)
	r.GET("/v1/sessions/:id/export", th.Export)
	r.GET("/v1/sessions/:id/stream", sh.Stream)

	return &testEnv{router: r, registry: registry, fetcher: f, inv: inv}
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) table.View {
	t.Helper()
	var v table.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

// openSession creates a projects session and waits for its first page.
func (e *testEnv) openSession(t *testing.T) string {
	t.Helper()
	w := e.do(http.MethodPost, "/v1/tables/projects/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ID)

	require.Eventually(t, func() bool {
		return decodeView(t, e.do(http.MethodGet, "/v1/sessions/"+resp.ID, nil)).Status == table.StatusReady
	}, time.Second, 5*time.Millisecond)
	return resp.ID
}

func TestSetPage_FetchCarriesRequestAndSessionID(t *testing.T) {
	env := setup(t)
	id := env.openSession(t)

	body, _ := json.Marshal(PageRequest{Page: 2})
	req := httptest.NewRequest(http.MethodPut, "/v1/sessions/"+id+"/page", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "req-page-2")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	require.Eventually(t, func() bool { return env.fetcher.lastRequest().Page == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "req-page-2", env.fetcher.requestID.Load())
	assert.Equal(t, id, env.fetcher.sessionID.Load())
}

func TestCreateSession_InitialFetch(t *testing.T) {
	env := setup(t)
	id := env.openSession(t)

	assert.Equal(t, domain.FetchRequest{Page: 1, Limit: 20, Search: "", SortBy: "createdAt:DESC"}, env.fetcher.lastRequest())

	v := decodeView(t, env.do(http.MethodGet, "/v1/sessions/"+id, nil))
	assert.Equal(t, 3, v.TotalPages)
	require.Len(t, v.Items, 2)

	first := v.Items[0].(map[string]any)
	assert.Equal(t, "Apollo", first["project"])
	assert.Equal(t, "Completed", first["status"])
	assert.Equal(t, "completed", first["statusCategory"])
	assert.Equal(t, "2025-01-02", first["createdAt"])

	second := v.Items[1].(map[string]any)
	assert.Equal(t, "ARCHIVED", second["status"])
	assert.Equal(t, "neutral", second["statusCategory"])
	assert.Equal(t, "", second["owner"])
}

func TestCreateSession_UnknownTable(t *testing.T) {
	env := setup(t)
	w := env.do(http.MethodPost, "/v1/tables/milestones/sessions", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "not_found")
}

func TestUnknownSession(t *testing.T) {
	env := setup(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/v1/sessions/nope"},
		{http.MethodDelete, "/v1/sessions/nope"},
		{http.MethodPost, "/v1/sessions/nope/refresh"},
		{http.MethodGet, "/v1/sessions/nope/export"},
		{http.MethodGet, "/v1/sessions/nope/stream"},
	} {
		w := env.do(tc.method, tc.path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, "%s %s", tc.method, tc.path)
	}
}

func TestSearch_DebouncesAndResetsPage(t *testing.T) {
	env := setup(t)
	id := env.openSession(t)

	w := env.do(http.MethodPut, "/v1/sessions/"+id+"/page", PageRequest{Page: 3})
	require.Equal(t, http.StatusOK, w.Code)
	require.Eventually(t, func() bool { return env.fetcher.lastRequest().Page == 3 }, time.Second, 5*time.Millisecond)

	for _, q := range []string{"a", "ap", "apo"} {
		w = env.do(http.MethodPut, "/v1/sessions/"+id+"/search", SearchRequest{Query: q})
		require.Equal(t, http.StatusAccepted, w.Code)
	}
	v := decodeView(t, w)
	assert.Equal(t, "apo", v.Query.Search)

	require.Eventually(t, func() bool {
		req := env.fetcher.lastRequest()
		return req.Search == "apo" && req.Page == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSearch_TooLong(t *testing.T) {
	env := setup(t)
	id := env.openSession(t)

	w := env.do(http.MethodPut, "/v1/sessions/"+id+"/search", SearchRequest{Query: strings.Repeat("x", 101)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "validation_error")
}

func TestSort(t *testing.T) {
	env := setup(t)
	id := env.openSession(t)

	w := env.do(http.MethodPost, "/v1/sessions/"+id+"/sort", SortRequest{Key: "name"})
	require.Equal(t, http.StatusOK, w.Code)
	v := decodeView(t, w)
	assert.Equal(t, "name:ASC", v.Query.SortBy)
	assert.Equal(t, table.StatusLoading, v.Status)
	assert.Empty(t, v.Items)

	w = env.do(http.MethodPost, "/v1/sessions/"+id+"/sort", SortRequest{Key: "name"})
	assert.Equal(t, "name:DESC", decodeView(t, w).Query.SortBy)

	w = env.do(http.MethodPost, "/v1/sessions/"+id+"/sort", SortRequest{Key: "password"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/v1/sessions/"+id+"/sort", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetPage(t *testing.T) {
	env := setup(t)
	id := env.openSession(t)

	w := env.do(http.MethodPut, "/v1/sessions/"+id+"/page", PageRequest{Page: 9})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, decodeView(t, w).Query.Page, "clamped to total pages")

	w = env.do(http.MethodPut, "/v1/sessions/"+id+"/page", map[string]int{"page": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefresh_InvalidatesCacheAndRefetches(t *testing.T) {
	env := setup(t)
	id := env.openSession(t)
	before := env.fetcher.calls.Load()

	w := env.do(http.MethodPost, "/v1/sessions/"+id+"/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, int32(1), env.inv.n.Load())
	require.Eventually(t, func() bool { return env.fetcher.calls.Load() > before }, time.Second, 5*time.Millisecond)
}

func TestFetchErrorRendersGenericMessage(t *testing.T) {
	env := setup(t)
	id := env.openSession(t)
	env.fetcher.fail.Store(true)

	env.do(http.MethodPost, "/v1/sessions/"+id+"/refresh", nil)

	var v table.View
	require.Eventually(t, func() bool {
		v = decodeView(t, env.do(http.MethodGet, "/v1/sessions/"+id, nil))
		return v.Status == table.StatusError
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Error loading projects", v.Error)
	assert.Empty(t, v.Items)
}

func TestExport(t *testing.T) {
	env := setup(t)
	id := env.openSession(t)

	w := env.do(http.MethodGet, "/v1/sessions/"+id+"/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="Projects_List.csv"`, w.Header().Get("Content-Disposition"))
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")

	records, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"Project", "Owner", "Email", "CreatedAt", "Status", "chat"}, records[0])
	assert.Equal(t, []string{"Apollo", "Ada Lovelace", "ada@example.com", "2025-01-02", "Completed", "ada@example.com"}, records[1])
	assert.Equal(t, []string{"Borealis", "", "", "2025-01-03", "ARCHIVED", ""}, records[2])
}

func TestDeleteSession(t *testing.T) {
	env := setup(t)
	id := env.openSession(t)

	w := env.do(http.MethodDelete, "/v1/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, env.registry.Len())

	w = env.do(http.MethodGet, "/v1/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
