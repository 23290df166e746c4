package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors exported by the table service.
type Metrics struct {
	FetchTotal       *prometheus.CounterVec   // by table and outcome (ok, error)
	FetchDuration    *prometheus.HistogramVec // by table
	StaleDiscarded   *prometheus.CounterVec   // responses dropped by the latest-wins guard
	DebounceSettled  *prometheus.CounterVec
	ExportsTotal     *prometheus.CounterVec
	CacheLookups     *prometheus.CounterVec // by result (hit, miss, error)
	ActiveSessions   prometheus.Gauge
	RateLimitedTotal prometheus.Counter
}

// New creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which tests use.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_admin_fetch_total",
			Help: "Page fetches by table and outcome",
		}, []string{"table", "outcome"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sync_admin_fetch_duration_seconds",
			Help:    "Latency of page fetches",
			Buckets: prometheus.DefBuckets,
		}, []string{"table"}),
		StaleDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_admin_stale_responses_discarded_total",
			Help: "Fetch responses discarded because a newer query was issued",
		}, []string{"table"}),
		DebounceSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_admin_search_settled_total",
			Help: "Search inputs that settled after the debounce window",
		}, []string{"table"}),
		ExportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_admin_exports_total",
			Help: "CSV exports by table",
		}, []string{"table"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_admin_page_cache_lookups_total",
			Help: "Page cache lookups by result",
		}, []string{"result"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sync_admin_active_sessions",
			Help: "Live table sessions",
		}),
		RateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_admin_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.FetchTotal, m.FetchDuration, m.StaleDiscarded, m.DebounceSettled,
			m.ExportsTotal, m.CacheLookups, m.ActiveSessions, m.RateLimitedTotal,
		)
	}

	return m
}
