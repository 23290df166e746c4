package table

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	domain "sync-admin/internal/domain/table"
	apperrors "sync-admin/pkg/errors"
	"sync-admin/pkg/logger"
	"sync-admin/pkg/metrics"
)

// Schema describes how the records of one table are displayed and exported.
type Schema[T any] struct {
	Name         string           // table name used in logs and metrics
	ExportName   string           // base filename of the CSV export
	Columns      []string         // export header
	Row          func(T) []string // export row, in Columns order
	Present      func(T) any      // view item
	SortableKeys []string         // empty allows any key
	ErrorMessage string           // generic message rendered on fetch failure
}

// Options configures a controller.
type Options struct {
	PageSize    int
	DefaultSort domain.Sort
	Debounce    time.Duration
}

// Controller drives one paginated, sortable, searchable table. It owns the
// query state, debounces search input and guarantees that only the response
// to the most recently issued query is ever rendered.
type Controller[T any] struct {
	schema    Schema[T]
	fetcher   Fetcher[T]
	log       *zap.Logger
	metrics   *metrics.Metrics
	debouncer *Debouncer

	root     context.Context
	shutdown context.CancelFunc

	mu          sync.Mutex
	searchReqID string // request that pushed the pending search
	state       domain.QueryState
	lastReq     domain.FetchRequest
	issued      bool
	version     uint64
	cancel      context.CancelFunc
	status      Status
	page        *domain.Page[T]
	pages       int // page count of the last loaded page, 0 before the first
	subs        map[int]chan View
	nextSub     int
	closed      bool
}

// NewController creates a controller in the loading state. Call Refresh to
// issue the first fetch. Values in ctx, such as the session id, reach every
// fetch; its cancellation does not, the controller lives until Close.
func NewController[T any](ctx context.Context, f Fetcher[T], schema Schema[T], opts Options, log *zap.Logger, m *metrics.Metrics) *Controller[T] {
	if m == nil {
		m = metrics.New(nil)
	}
	if opts.PageSize < 1 {
		opts.PageSize = 20
	}

	root, shutdown := context.WithCancel(context.WithoutCancel(ctx))
	c := &Controller[T]{
		schema:   schema,
		fetcher:  f,
		log:      logger.ForTable(ctx, log, schema.Name),
		metrics:  m,
		root:     root,
		shutdown: shutdown,
		state:    domain.NewQueryState(opts.PageSize, opts.DefaultSort),
		status:   StatusLoading,
		subs:     make(map[int]chan View),
	}
	c.debouncer = NewDebouncer(opts.Debounce, c.settleSearch)
	return c
}

// Table returns the table name.
func (c *Controller[T]) Table() string {
	return c.schema.Name
}

// Search records raw search input. The fetch happens once the input settles
// and carries the request id of the last push.
func (c *Controller[T]) Search(ctx context.Context, raw string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.state = c.state.WithRawSearch(raw)
	c.searchReqID = logger.GetRequestID(ctx)
	c.mu.Unlock()

	c.debouncer.Push(raw)
}

// settleSearch is the debouncer callback.
func (c *Controller[T]) settleSearch(search string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.metrics.DebounceSettled.WithLabelValues(c.schema.Name).Inc()
	c.state = c.state.WithSettledSearch(search)
	c.log.Debug("search settled", zap.String("search", search))
	c.issueLocked(c.searchReqID, false)
}

// RequestSort toggles the sort on key and refetches.
func (c *Controller[T]) RequestSort(ctx context.Context, key string) (View, error) {
	if len(c.schema.SortableKeys) > 0 && !slices.Contains(c.schema.SortableKeys, key) {
		return c.View(), apperrors.NewValidationError("key", fmt.Sprintf("%q is not a sortable column", key))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = c.state.WithSort(key)
	c.issueLocked(logger.GetRequestID(ctx), false)
	return c.viewLocked(), nil
}

// SetPage moves to page. Once a page has loaded the value is clamped to the
// last known page count.
func (c *Controller[T]) SetPage(ctx context.Context, page int) View {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pages > 0 && page > c.pages {
		page = c.pages
	}
	c.state = c.state.WithPage(page)
	c.issueLocked(logger.GetRequestID(ctx), false)
	return c.viewLocked()
}

// Refresh refetches the current query unconditionally.
func (c *Controller[T]) Refresh(ctx context.Context) View {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.issueLocked(logger.GetRequestID(ctx), true)
	return c.viewLocked()
}

// State returns a copy of the current query state.
func (c *Controller[T]) State() domain.QueryState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// issueLocked starts a fetch for the current state unless the same request
// is already the latest one and force is false. reqID tags the fetch with the
// triggering request. Caller holds c.mu.
func (c *Controller[T]) issueLocked(reqID string, force bool) {
	if c.closed {
		return
	}

	req := c.state.Request()
	if !force && c.issued && req == c.lastReq {
		return
	}

	if c.cancel != nil {
		c.cancel()
	}

	c.version++
	version := c.version
	parent := c.root
	if reqID != "" {
		parent = logger.WithRequestID(parent, reqID)
	}
	ctx, cancel := context.WithCancel(parent)
	c.cancel = cancel
	c.lastReq = req
	c.issued = true

	c.status = StatusLoading
	c.page = nil
	c.notifyLocked()

	c.log.Debug("fetch issued",
		zap.String("request_id", reqID),
		zap.Uint64("version", version),
		zap.Int("page", req.Page),
		zap.Int("limit", req.Limit),
		zap.String("search", req.Search),
		zap.String("sort_by", req.SortBy),
	)

	go c.run(ctx, version, req)
}

func (c *Controller[T]) run(ctx context.Context, version uint64, req domain.FetchRequest) {
	start := time.Now()
	page, err := c.fetcher.Fetch(ctx, req)
	c.metrics.FetchDuration.WithLabelValues(c.schema.Name).Observe(time.Since(start).Seconds())

	c.commit(version, page, err)
}

// commit applies a fetch result if it belongs to the latest request.
func (c *Controller[T]) commit(version uint64, page *domain.Page[T], err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || version != c.version {
		c.metrics.StaleDiscarded.WithLabelValues(c.schema.Name).Inc()
		c.log.Debug("stale response discarded", zap.Uint64("version", version), zap.Uint64("latest", c.version))
		return
	}

	switch {
	case err != nil:
		c.metrics.FetchTotal.WithLabelValues(c.schema.Name, "error").Inc()
		c.log.Warn("fetch failed", zap.Uint64("version", version), zap.Error(err))
		c.status = StatusError
		c.page = nil
	case page == nil:
		c.metrics.FetchTotal.WithLabelValues(c.schema.Name, "ok").Inc()
		c.status = StatusReady
		c.page = domain.NewPage[T](nil, 1)
	default:
		c.metrics.FetchTotal.WithLabelValues(c.schema.Name, "ok").Inc()
		c.status = StatusReady
		c.page = domain.NewPage(page.Items, page.TotalPages)
	}
	if c.page != nil {
		c.pages = c.page.TotalPages
	}

	c.cancel()
	c.cancel = nil
	c.notifyLocked()
}

// View returns the current rendered snapshot.
func (c *Controller[T]) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller[T]) viewLocked() View {
	v := View{
		Table:   c.schema.Name,
		Status:  c.status,
		Version: c.version,
		Query: QueryView{
			Page:          c.state.Page,
			PageSize:      c.state.PageSize,
			Search:        c.state.RawSearch,
			AppliedSearch: c.state.DebouncedSearch,
			SortKey:       c.state.Sort.Key,
			SortDirection: string(c.state.Sort.Direction),
			SortBy:        c.state.Sort.String(),
		},
		Items:      []any{},
		TotalPages: 1,
	}
	if len(c.schema.SortableKeys) > 0 {
		v.Query.Indicators = make(map[string]string, len(c.schema.SortableKeys))
		for _, key := range c.schema.SortableKeys {
			v.Query.Indicators[key] = c.state.Sort.Indicator(key)
		}
	}

	switch c.status {
	case StatusError:
		v.Error = c.schema.ErrorMessage
	case StatusReady:
		v.TotalPages = c.page.TotalPages
		v.Items = make([]any, 0, len(c.page.Items))
		for _, item := range c.page.Items {
			v.Items = append(v.Items, c.schema.Present(item))
		}
	}

	return v
}

// Export writes the currently loaded page as CSV and returns the artifact's
// filename. It never fetches; with no page loaded only the header is written.
func (c *Controller[T]) Export(w io.Writer) (string, error) {
	c.mu.Lock()
	var items []T
	if c.status == StatusReady && c.page != nil {
		items = slices.Clone(c.page.Items)
	}
	c.mu.Unlock()

	cw := csv.NewWriter(w)
	if err := cw.Write(c.schema.Columns); err != nil {
		return "", fmt.Errorf("failed to write export header: %w", err)
	}
	for _, item := range items {
		if err := cw.Write(c.schema.Row(item)); err != nil {
			return "", fmt.Errorf("failed to write export row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", fmt.Errorf("failed to flush export: %w", err)
	}

	c.metrics.ExportsTotal.WithLabelValues(c.schema.Name).Inc()
	c.log.Info("table exported", zap.Int("rows", len(items)))
	return c.schema.ExportName + ".csv", nil
}

// Subscribe returns a channel receiving every new view, starting with the
// current one. Slow receivers only ever see the latest view.
func (c *Controller[T]) Subscribe() (<-chan View, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan View, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.viewLocked()

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

func (c *Controller[T]) notifyLocked() {
	if len(c.subs) == 0 {
		return
	}
	v := c.viewLocked()
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

// Close stops the debouncer, cancels any in-flight fetch and closes all
// subscriptions.
func (c *Controller[T]) Close() {
	c.debouncer.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.shutdown()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
}
