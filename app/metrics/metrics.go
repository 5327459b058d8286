// Package metrics exposes Prometheus instrumentation for the snapshot and
// digest pipelines.
package metrics

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Snapshots taken or skipped per cycle, partitioned by outcome
	SnapshotsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackkeeper_snapshots_total",
			Help: "Total snapshot jobs processed, partitioned by outcome",
		},
		[]string{"outcome"},
	)

	// Removals detected by the differ
	RemovalsDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trackkeeper_removals_detected_total",
			Help: "Total removed tracks detected across all diff runs",
		},
	)

	// Rows deactivated by the expiry pass
	SongsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trackkeeper_songs_expired_total",
			Help: "Total removed-song records deactivated by retention expiry",
		},
	)

	// Digest emails delivered
	DigestsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trackkeeper_digests_sent_total",
			Help: "Total weekly digest emails sent",
		},
	)

	// Task retries partitioned by job name
	JobRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackkeeper_job_retries_total",
			Help: "Total task retries, partitioned by job",
		},
		[]string{"job"},
	)

	// Job execution latency partitioned by job name
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trackkeeper_job_duration_seconds",
			Help:    "Job execution latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)
)

// Snapshot outcome label values
const (
	OutcomeTaken   = "taken"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// ObserveJob times one job execution
func ObserveJob(job string, start time.Time) {
	JobDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())
}

// StartServer serves the Prometheus scrape endpoint until the context is
// cancelled
func StartServer(ctx context.Context, port int, path string, logger *log.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		logger.Printf("Metrics server listening on :%d%s", port, path)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("Metrics server error: %v", err)
		}
	}()

	serverCtx, cancel := context.WithCancel(ctx)
	go func() {
		<-serverCtx.Done()
		shutdownCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		_ = server.Shutdown(shutdownCtx)
	}()
	return cancel
}
