// Package metrics exposes Prometheus collectors for the crawler service.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerPagesTotal          *prometheus.CounterVec
	crawlerFetchSeconds        *prometheus.HistogramVec
	crawlerActiveWorkers       prometheus.Gauge
	pacingDelaySeconds         *prometheus.GaugeVec
	pacingOutcomesTotal        *prometheus.CounterVec
	pacingTrackedHosts         prometheus.Gauge
	pacingWaitSeconds          *prometheus.HistogramVec
	crawlerRunsTotal           *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of pages fetched, labeled by host and status.",
			},
			[]string{"host", "status"},
		)

		crawlerFetchSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies, labeled by host.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
			},
			[]string{"host"},
		)

		crawlerActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_active_workers",
				Help: "Number of workers currently processing a fetch.",
			},
		)

		pacingDelaySeconds = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pacing_delay_seconds",
				Help: "Current adaptive inter-request delay per host.",
			},
			[]string{"host"},
		)

		pacingOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pacing_outcomes_total",
				Help: "Total recorded fetch outcomes, labeled by kind.",
			},
			[]string{"outcome"},
		)

		pacingTrackedHosts = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pacing_tracked_hosts",
				Help: "Number of hosts currently holding pacing state.",
			},
		)

		pacingWaitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pacing_wait_seconds",
				Help:    "Histogram of pre-dispatch pacing waits.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8},
			},
			[]string{"host"},
		)

		crawlerRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_runs_total",
				Help: "Total number of crawl runs, labeled by final status.",
			},
			[]string{"status"},
		)
	})
}

// SanitizeHost reduces a URL or host key to a lowercase hostname label.
// It returns "unknown" if the input is invalid.
func SanitizeHost(raw string) string {
	if !strings.HasPrefix(raw, "http") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage records a completed fetch.
func ObservePage(host string, status string, duration time.Duration) {
	if crawlerPagesTotal == nil {
		return
	}
	label := SanitizeHost(host)
	crawlerPagesTotal.WithLabelValues(label, status).Inc()
	crawlerFetchSeconds.WithLabelValues(label).Observe(duration.Seconds())
}

// SetPacingDelay exports a host's current adaptive delay.
func SetPacingDelay(host string, delay time.Duration) {
	if pacingDelaySeconds == nil {
		return
	}
	pacingDelaySeconds.WithLabelValues(SanitizeHost(host)).Set(delay.Seconds())
}

// ObserveOutcome counts one recorded pacing outcome.
func ObserveOutcome(outcome string) {
	if pacingOutcomesTotal == nil {
		return
	}
	pacingOutcomesTotal.WithLabelValues(outcome).Inc()
}

// SetTrackedHosts exports the pacing registry size.
func SetTrackedHosts(n int) {
	if pacingTrackedHosts == nil {
		return
	}
	pacingTrackedHosts.Set(float64(n))
}

// ObservePacingWait records how long a worker paused before dispatch.
func ObservePacingWait(host string, wait time.Duration) {
	if pacingWaitSeconds == nil || wait <= 0 {
		return
	}
	pacingWaitSeconds.WithLabelValues(SanitizeHost(host)).Observe(wait.Seconds())
}

// WorkerStarted marks a worker as busy.
func WorkerStarted() {
	if crawlerActiveWorkers != nil {
		crawlerActiveWorkers.Inc()
	}
}

// WorkerFinished marks a worker as idle.
func WorkerFinished() {
	if crawlerActiveWorkers != nil {
		crawlerActiveWorkers.Dec()
	}
}

// ObserveRun counts one finished crawl run.
func ObserveRun(status string) {
	if crawlerRunsTotal != nil {
		crawlerRunsTotal.WithLabelValues(status).Inc()
	}
}
