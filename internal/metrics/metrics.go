// Package metrics exposes Prometheus collectors for the toolinfo crawler.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchesTotal               *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	fetchBytesTotal            *prometheus.CounterVec
	reconcileActionsTotal      *prometheus.CounterVec
	toolsDeletedTotal          prometheus.Counter
	lastRunInvalidTargets      prometheus.Gauge
	runsTotal                  *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry. It is safe to
// call more than once.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolhub_fetches_total",
				Help: "Toolinfo fetches, labeled by site and status class.",
			},
			[]string{"site", "status_class"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolhub_fetch_duration_seconds",
				Help:    "Histogram of toolinfo fetch latencies, labeled by site.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
			},
			[]string{"site"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolhub_fetch_bytes_total",
				Help: "Toolinfo bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		reconcileActionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolhub_reconcile_actions_total",
				Help: "Reconciliation decisions, labeled by action.",
			},
			[]string{"action"},
		)

		toolsDeletedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "toolhub_tools_deleted_total",
				Help: "Tools soft-deleted because their target stopped listing them.",
			},
		)

		lastRunInvalidTargets = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "toolhub_last_run_invalid_targets",
				Help: "Invalid targets in the most recent crawl run.",
			},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolhub_runs_total",
				Help: "Crawl runs, labeled by result.",
			},
			[]string{"result"},
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

// SanitizeSite extracts a lowercase hostname from rawURL, or "unknown".
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// StatusClass groups an HTTP status code; 0 means no response.
func StatusClass(code int) string {
	switch {
	case code == 0:
		return "none"
	case code >= 100 && code < 600:
		return strconv.Itoa(code/100) + "xx"
	default:
		return "other"
	}
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one toolinfo fetch.
func ObserveFetch(rawURL string, statusCode int, bytesFetched int, duration time.Duration) {
	Init()
	site := SanitizeSite(rawURL)
	fetchesTotal.WithLabelValues(site, StatusClass(statusCode)).Inc()
	fetchDurationSeconds.WithLabelValues(site).Observe(duration.Seconds())
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveAction counts one reconciliation decision.
func ObserveAction(action string) {
	Init()
	reconcileActionsTotal.WithLabelValues(action).Inc()
}

// ObserveDeleted counts soft-deleted tools.
func ObserveDeleted(n int) {
	Init()
	if n > 0 {
		toolsDeletedTotal.Add(float64(n))
	}
}

// ObserveRun records a finished run and its invalid target count.
func ObserveRun(invalidTargets int) {
	Init()
	result := "clean"
	if invalidTargets > 0 {
		result = "partial"
	}
	runsTotal.WithLabelValues(result).Inc()
	lastRunInvalidTargets.Set(float64(invalidTargets))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
