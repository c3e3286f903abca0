// Package metrics exposes Prometheus collectors for the catalog crawler.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcomes recorded by ObserveFetch.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeExhausted = "exhausted"
)

var (
	crawlerRequestsTotal   *prometheus.CounterVec
	crawlerRecordsTotal    *prometheus.CounterVec
	crawlerProductsFailed  prometheus.Counter
	crawlerPagesAborted    prometheus.Counter
	crawlerRestartsTotal   prometheus.Counter
	crawlerFetchDelaySecs  prometheus.Histogram
	crawlerLastSuccessTime prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_requests_total",
				Help: "Total number of fetch attempts, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		crawlerRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_records_total",
				Help: "Total number of extracted records, labeled by store outcome.",
			},
			[]string{"outcome"},
		)

		crawlerProductsFailed = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_products_failed_total",
				Help: "Product pages skipped after exhausting fetch attempts.",
			},
		)

		crawlerPagesAborted = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_listing_pages_failed_total",
				Help: "Listing pages whose failure aborted the rest of a category.",
			},
		)

		crawlerRestartsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_restarts_total",
				Help: "Whole-run restarts triggered by traversal faults.",
			},
		)

		crawlerFetchDelaySecs = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_fetch_delay_seconds",
				Help:    "Histogram of randomized pre-request delays.",
				Buckets: []float64{0, 0.5, 1, 2, 5, 10, 30},
			},
		)

		crawlerLastSuccessTime = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_last_success_timestamp_seconds",
				Help: "Unix time of the last fully completed crawl.",
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

// Handler returns an http.Handler serving /metrics and /healthz.
func Handler() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// ObserveFetch records a single fetch attempt.
func ObserveFetch(rawURL, outcome string) {
	Init()
	crawlerRequestsTotal.WithLabelValues(SanitizeSite(rawURL), outcome).Inc()
}

// ObserveDelay records a pre-request delay.
func ObserveDelay(seconds float64) {
	Init()
	crawlerFetchDelaySecs.Observe(seconds)
}

// ObserveRecord counts a record by its store outcome.
func ObserveRecord(outcome string) {
	Init()
	crawlerRecordsTotal.WithLabelValues(outcome).Inc()
}

// ObserveProductFailure counts a skipped product page.
func ObserveProductFailure() {
	Init()
	crawlerProductsFailed.Inc()
}

// ObservePageAbort counts a listing page failure.
func ObservePageAbort() {
	Init()
	crawlerPagesAborted.Inc()
}

// ObserveRestart counts a whole-run restart.
func ObserveRestart() {
	Init()
	crawlerRestartsTotal.Inc()
}

// ObserveSuccess stamps the completion time of a crawl.
func ObserveSuccess(unixSeconds float64) {
	Init()
	crawlerLastSuccessTime.Set(unixSeconds)
}
