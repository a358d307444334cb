// Package metrics provides Prometheus metrics for the scouting server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Label values
const (
	CacheHit  = "hit"
	CacheMiss = "miss"

	SummaryOK          = "ok"
	SummarySkipped     = "skipped"
	SummaryUnavailable = "unavailable"
	SummaryMalformed   = "malformed"
)

// Manager owns every metric of the process. It implements database.Observer.
type Manager struct {
	namespace        string
	histogramBuckets []float64
	registry         *prometheus.Registry
	runtime          bool

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	busyRetries   *prometheus.CounterVec
	busyExhausted *prometheus.CounterVec

	exportCache    *prometheus.CounterVec
	exportDuration prometheus.Histogram

	scrapeFailures *prometheus.CounterVec
	summaries      *prometheus.CounterVec
}

// NewManager creates a manager on its own registry unless one is given.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "scout",
		histogramBuckets: prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	if m.runtime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route pattern, method and status code",
	}, []string{"route", "method", "status"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration by route pattern and method",
		Buckets:   m.histogramBuckets,
	}, []string{"route", "method"})

	m.busyRetries = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "storage",
		Name:      "busy_retries_total",
		Help:      "Operations retried because the database file was busy",
	}, []string{"op"})

	m.busyExhausted = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "storage",
		Name:      "busy_exhausted_total",
		Help:      "Operations that stayed busy after every retry",
	}, []string{"op"})

	m.exportCache = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "export",
		Name:      "cache_lookups_total",
		Help:      "Dossier export cache lookups by result",
	}, []string{"result"})

	m.exportDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "export",
		Name:      "render_duration_seconds",
		Help:      "Time to build a dossier PDF, summary included",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	m.scrapeFailures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "scraper",
		Name:      "failures_total",
		Help:      "Failed scrapes by operation and reason",
	}, []string{"operation", "reason"})

	m.summaries = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "summarizer",
		Name:      "requests_total",
		Help:      "Summary requests by outcome",
	}, []string{"result"})
}

// Handler serves the registry in the Prometheus text format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records one served request.
func (m *Manager) RecordHTTPRequest(route, method string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// BusyRetry implements database.Observer.
func (m *Manager) BusyRetry(op string) {
	m.busyRetries.WithLabelValues(op).Inc()
}

// BusyExhausted implements database.Observer.
func (m *Manager) BusyExhausted(op string) {
	m.busyExhausted.WithLabelValues(op).Inc()
}

// RecordExportCache records a cache lookup result (CacheHit or CacheMiss).
func (m *Manager) RecordExportCache(result string) {
	m.exportCache.WithLabelValues(result).Inc()
}

// ObserveExport records how long a regeneration took.
func (m *Manager) ObserveExport(elapsed time.Duration) {
	m.exportDuration.Observe(elapsed.Seconds())
}

// RecordScrapeFailure counts a failed scrape.
func (m *Manager) RecordScrapeFailure(operation, reason string) {
	m.scrapeFailures.WithLabelValues(operation, reason).Inc()
}

// RecordSummary counts a summary request by outcome.
func (m *Manager) RecordSummary(result string) {
	m.summaries.WithLabelValues(result).Inc()
}
