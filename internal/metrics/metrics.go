// Package metrics exposes Prometheus collectors for the scraper service.
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
	scraperFetchTotal             *prometheus.CounterVec
	scraperFetchBytesTotal        *prometheus.CounterVec
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec
	scraperRateLimitDelaysSeconds *prometheus.HistogramVec
	scraperProgressObservers      prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scraperFetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_fetch_total",
				Help: "Total number of upstream fetches, labeled by site, kind and outcome.",
			},
			[]string{"site", "kind", "outcome"},
		)

		scraperFetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_fetch_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
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

		scraperRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		scraperProgressObservers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scraper_progress_observers",
				Help: "Number of websocket clients attached to the progress stream.",
			},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
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

// ObserveFetch counts one upstream fetch. kind is "listing" or "article";
// outcome is "ok", "not_found", "transient" or "error".
func ObserveFetch(site, kind, outcome string, bytesFetched int) {
	if scraperFetchTotal == nil {
		return
	}
	sanitizedSite := SanitizeSite(site)
	scraperFetchTotal.WithLabelValues(sanitizedSite, kind, outcome).Inc()
	if bytesFetched > 0 {
		scraperFetchBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	if scraperRateLimitDelaysSeconds == nil {
		return
	}
	scraperRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// IncObservers increments the progress observer gauge.
func IncObservers() {
	if scraperProgressObservers != nil {
		scraperProgressObservers.Inc()
	}
}

// DecObservers decrements the progress observer gauge.
func DecObservers() {
	if scraperProgressObservers != nil {
		scraperProgressObservers.Dec()
	}
}
