// Package metrics exposes process-wide Prometheus collectors for the
// aggregation pipeline and its HTTP surface.
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
	dedupResolutionsTotal      *prometheus.CounterVec
	keywordMatchesTotal        prometheus.Counter
	datasetRows                prometheus.Gauge
	datasetWritesTotal         *prometheus.CounterVec
	publishTotal               *prometheus.CounterVec
	digestEmailsTotal          *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	fetchRequestsTotal         *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		dedupResolutionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rfp_dedup_resolutions_total",
				Help: "Dedup resolutions, labeled by status.",
			},
			[]string{"status"},
		)

		keywordMatchesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "rfp_keyword_matches_total",
				Help: "Records flagged by the deductive keyword filter.",
			},
		)

		datasetRows = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "rfp_dataset_rows",
				Help: "Rows in the dataset after the most recent commit.",
			},
		)

		datasetWritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rfp_dataset_writes_total",
				Help: "Dataset commits, labeled by result.",
			},
			[]string{"result"},
		)

		publishTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rfp_publish_total",
				Help: "Record notifications published, labeled by backend and result.",
			},
			[]string{"backend", "result"},
		)

		digestEmailsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rfp_digest_emails_total",
				Help: "Digest emails sent, labeled by kind and result.",
			},
			[]string{"kind", "result"},
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

		fetchRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rfp_fetch_requests_total",
				Help: "Outbound source requests, labeled by host and status.",
			},
			[]string{"host", "status"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "rfp_active_workers",
				Help: "Orchestrator workers currently calling a source.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rfp_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)
	})
}

// SanitizeHost extracts a lowercase hostname from rawURL, or "unknown".
func SanitizeHost(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveResolution counts one dedup resolution.
func ObserveResolution(status string) {
	if dedupResolutionsTotal == nil {
		return
	}
	dedupResolutionsTotal.WithLabelValues(status).Inc()
}

// ObserveMatches adds n keyword-matched records.
func ObserveMatches(n int) {
	if keywordMatchesTotal == nil || n <= 0 {
		return
	}
	keywordMatchesTotal.Add(float64(n))
}

// ObserveDatasetCommit records a dataset commit and, on success, its row count.
func ObserveDatasetCommit(rows int, err error) {
	if datasetWritesTotal == nil {
		return
	}
	if err != nil {
		datasetWritesTotal.WithLabelValues("error").Inc()
		return
	}
	datasetWritesTotal.WithLabelValues("success").Inc()
	datasetRows.Set(float64(rows))
}

// ObservePublish counts one notification publish attempt.
func ObservePublish(backend string, err error) {
	if publishTotal == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	publishTotal.WithLabelValues(backend, result).Inc()
}

// ObserveDigestEmail counts one digest delivery attempt.
func ObserveDigestEmail(kind string, err error) {
	if digestEmailsTotal == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	digestEmailsTotal.WithLabelValues(kind, result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveFetch counts one outbound source request. Status is the HTTP code
// or "error" when no response arrived.
func ObserveFetch(rawURL, status string) {
	if fetchRequestsTotal == nil {
		return
	}
	fetchRequestsTotal.WithLabelValues(SanitizeHost(rawURL), status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if activeWorkers != nil {
		activeWorkers.Inc()
	}
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if activeWorkers != nil {
		activeWorkers.Dec()
	}
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	if rateLimitDelaysSeconds == nil {
		return
	}
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}
