// Package metrics exposes Prometheus collectors for the fetch service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scansSubmittedTotal        prometheus.Counter
	scanURLsSubmittedTotal     prometheus.Counter
	urlsFetchedTotal           *prometheus.CounterVec
	chunkMessagesTotal         *prometheus.CounterVec
	cacheLookupsTotal          *prometheus.CounterVec
	activeChunkWorkers         prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scansSubmittedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fetchservice_scans_submitted_total",
				Help: "Total number of scan requests admitted.",
			},
		)

		scanURLsSubmittedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fetchservice_scan_urls_submitted_total",
				Help: "Total number of URLs submitted across all scans.",
			},
		)

		urlsFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fetchservice_urls_fetched_total",
				Help: "Total number of single-URL fetches, labeled by outcome status.",
			},
			[]string{"status"},
		)

		chunkMessagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fetchservice_chunk_messages_total",
				Help: "Total number of chunk messages consumed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fetchservice_result_cache_lookups_total",
				Help: "Total result-page cache lookups, labeled hit or miss.",
			},
			[]string{"outcome"},
		)

		activeChunkWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "fetchservice_active_chunk_workers",
				Help: "Number of chunk messages currently being processed.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveScanSubmitted records an admitted scan and its URL count.
func ObserveScanSubmitted(urls int) {
	if scansSubmittedTotal == nil {
		return
	}
	scansSubmittedTotal.Inc()
	scanURLsSubmittedTotal.Add(float64(urls))
}

// ObserveFetch increments the per-URL fetch counter for the given status.
func ObserveFetch(status string) {
	if urlsFetchedTotal == nil {
		return
	}
	urlsFetchedTotal.WithLabelValues(status).Inc()
}

// ObserveChunk increments the chunk message counter for the given outcome.
func ObserveChunk(outcome string) {
	if chunkMessagesTotal == nil {
		return
	}
	chunkMessagesTotal.WithLabelValues(outcome).Inc()
}

// ObserveCache increments the result cache lookup counter.
func ObserveCache(outcome string) {
	if cacheLookupsTotal == nil {
		return
	}
	cacheLookupsTotal.WithLabelValues(outcome).Inc()
}

// ObserveWorkerStart increments the active chunk workers gauge.
func ObserveWorkerStart() {
	if activeChunkWorkers == nil {
		return
	}
	activeChunkWorkers.Inc()
}

// ObserveWorkerDone decrements the active chunk workers gauge.
func ObserveWorkerDone() {
	if activeChunkWorkers == nil {
		return
	}
	activeChunkWorkers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
