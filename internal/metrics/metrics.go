// Package metrics defines the scanner's prometheus collectors and the
// /metrics endpoint server.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ProviderRequests counts upstream marketplace-data API calls.
	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scanner_provider_requests_total",
		Help: "Upstream provider requests by endpoint class and outcome.",
	}, []string{"endpoint", "outcome"})

	// ThrottleRetries counts retries triggered by upstream throttling.
	ThrottleRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scanner_throttle_retries_total",
		Help: "Retries performed after an upstream throttling signal.",
	}, []string{"endpoint"})

	// ScansStarted counts scans created.
	ScansStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scanner_scans_started_total",
		Help: "Scan sessions started.",
	})

	// ScansFinished counts terminal scan outcomes.
	ScansFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scanner_scans_finished_total",
		Help: "Scan sessions finished by terminal status.",
	}, []string{"status"})

	// OpportunitiesFound counts persisted opportunities.
	OpportunitiesFound = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scanner_opportunities_found_total",
		Help: "Profitable opportunities discovered and persisted.",
	})

	// ScanDuration observes wall-clock scan duration.
	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scanner_scan_duration_seconds",
		Help:    "Wall-clock duration of completed scans.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	// BatchPacingSleep observes post-batch pacing sleeps.
	BatchPacingSleep = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scanner_batch_pacing_sleep_seconds",
		Help:    "Time slept after a batch to honour the quota-implied minimum duration.",
		Buckets: prometheus.DefBuckets,
	})
)

// Serve starts the prometheus metrics endpoint on the given port. It
// blocks, so run it in a goroutine.
func Serve(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}
