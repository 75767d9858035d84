// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ledger metrics
	RPCCallLatency  *prometheus.HistogramVec
	LedgerFailures  *prometheus.CounterVec
	FeedDeliveries  prometheus.Counter
	FeedErrors      prometheus.Counter
	RetrievalWindow prometheus.Histogram

	// Event metrics
	EventsDispatched *prometheus.CounterVec
	HandlerFailures  *prometheus.CounterVec
	HandlersActive   prometheus.Gauge

	// Content metrics
	ContentFetches   *prometheus.CounterVec
	ContentCacheHits *prometheus.CounterVec

	// Cache metrics
	CacheEntries prometheus.Gauge
	CacheReloads *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "market_sync"
	}

	return &Metrics{
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "rpc_call_latency_seconds",
			Help:      "Ledger RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		LedgerFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "failures_total",
			Help:      "Total number of failed ledger calls by kind and operation",
		}, []string{"kind", "op"}),
		FeedDeliveries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "feed_deliveries_total",
			Help:      "Total number of events delivered by the ledger feed",
		}),
		FeedErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "feed_errors_total",
			Help:      "Total number of undecodable feed deliveries",
		}),
		RetrievalWindow: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "window_size",
			Help:      "Number of concurrent item reads per retrieval window",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
		}),

		EventsDispatched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dispatched_total",
			Help:      "Total number of events dispatched by name",
		}, []string{"event"}),
		HandlerFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "handler_failures_total",
			Help:      "Total number of failed event handlers by event name",
		}, []string{"event"}),
		HandlersActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "handlers",
			Help:      "Number of registered event handlers",
		}),

		ContentFetches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "content",
			Name:      "fetches_total",
			Help:      "Total number of content fetches by backend and status",
		}, []string{"backend", "status"}),
		ContentCacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "content",
			Name:      "cache_lookups_total",
			Help:      "Total number of content cache lookups by result",
		}, []string{"result"}),

		CacheEntries: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Current number of entries in the item view",
		}),
		CacheReloads: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "reloads_total",
			Help:      "Total number of item view loads by mode",
		}, []string{"mode"}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordLedgerFailure counts a failed ledger call. kind is "read" or "write".
func RecordLedgerFailure(kind, op string) {
	DefaultMetrics.LedgerFailures.WithLabelValues(kind, op).Inc()
}

// RecordFeedDelivery counts one feed delivery.
func RecordFeedDelivery(err error) {
	if err != nil {
		DefaultMetrics.FeedErrors.Inc()
		return
	}
	DefaultMetrics.FeedDeliveries.Inc()
}

// RecordRetrievalWindow records the size of one retrieval window.
func RecordRetrievalWindow(size int) {
	DefaultMetrics.RetrievalWindow.Observe(float64(size))
}

// RecordEventDispatched counts a dispatched event.
func RecordEventDispatched(name string) {
	DefaultMetrics.EventsDispatched.WithLabelValues(name).Inc()
}

// RecordHandlerFailure counts a failed handler invocation.
func RecordHandlerFailure(name string) {
	DefaultMetrics.HandlerFailures.WithLabelValues(name).Inc()
}

// SetHandlerCount updates the registered handler gauge.
func SetHandlerCount(n int) {
	DefaultMetrics.HandlersActive.Set(float64(n))
}

// RecordContentFetch counts a content fetch from backend.
func RecordContentFetch(backend string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.ContentFetches.WithLabelValues(backend, status).Inc()
}

// RecordContentCacheLookup counts a content cache hit or miss.
func RecordContentCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	DefaultMetrics.ContentCacheHits.WithLabelValues(result).Inc()
}

// SetCacheEntries updates the item view size gauge.
func SetCacheEntries(n int) {
	DefaultMetrics.CacheEntries.Set(float64(n))
}

// RecordCacheReload counts an item view load. mode is "full", "filtered" or "claimable".
func RecordCacheReload(mode string) {
	DefaultMetrics.CacheReloads.WithLabelValues(mode).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
