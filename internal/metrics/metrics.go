// Package metrics exposes Prometheus collectors for the crawler.
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

// Fetch outcomes recorded by ObserveFetch.
const (
	FetchOK      = "ok"
	FetchError   = "error"
	FetchNonHTML = "non_html"
)

// Skip reasons recorded by ObserveSkip.
const (
	SkipKnown     = "known"
	SkipRobots    = "robots"
	SkipDuplicate = "duplicate"
)

var (
	crawlerPagesSavedTotal        prometheus.Counter
	crawlerFetchesTotal           *prometheus.CounterVec
	crawlerSkipsTotal             *prometheus.CounterVec
	crawlerTopicsLinkedTotal      prometheus.Counter
	crawlerJobsTotal              *prometheus.CounterVec
	crawlerActiveWorkers          prometheus.Gauge
	crawlerRateLimitDelaysSeconds *prometheus.HistogramVec
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesSavedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_pages_saved_total",
				Help: "Total number of new pages persisted.",
			},
		)

		crawlerFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_fetches_total",
				Help: "Total number of page fetches, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		crawlerSkipsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_skips_total",
				Help: "Total number of frontier URLs dropped before or after fetching, labeled by reason.",
			},
			[]string{"reason"},
		)

		crawlerTopicsLinkedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_topics_linked_total",
				Help: "Total number of page/topic links written.",
			},
		)

		crawlerJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_jobs_total",
				Help: "Total number of crawl jobs finished, labeled by status.",
			},
			[]string{"status"},
		)

		crawlerActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_active_workers",
				Help: "Number of traversal workers currently running.",
			},
		)

		crawlerRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_rate_limit_delays_seconds",
				Help:    "Histogram of per-domain politeness wait durations.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"domain"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of API requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of API request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite extracts a lowercase hostname from a URL or bare host.
// It returns "unknown" if the input is invalid.
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

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePageSaved increments the saved page counter.
func ObservePageSaved() {
	crawlerPagesSavedTotal.Inc()
}

// ObserveFetch records one fetch attempt with its outcome.
func ObserveFetch(outcome string) {
	crawlerFetchesTotal.WithLabelValues(outcome).Inc()
}

// ObserveSkip records a frontier URL dropped for reason.
func ObserveSkip(reason string) {
	crawlerSkipsTotal.WithLabelValues(reason).Inc()
}

// ObserveTopicsLinked adds n page/topic links.
func ObserveTopicsLinked(n int) {
	if n > 0 {
		crawlerTopicsLinkedTotal.Add(float64(n))
	}
}

// ObserveJob increments the job counter for the given status.
func ObserveJob(status string) {
	crawlerJobsTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	crawlerActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	crawlerActiveWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a politeness wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	crawlerRateLimitDelaysSeconds.WithLabelValues(SanitizeSite(domain)).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the API request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
