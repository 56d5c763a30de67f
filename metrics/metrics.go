// Package metrics exposes Prometheus metrics for the HTTP API and for
// combine runs. Everything is registered with the default registry on init.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestTotals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	HTTPRequestInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_request_in_flight",
			Help: "Current in-flight requests",
		},
	)

	RateLimiterBucketsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_limiter_buckets_total",
			Help: "Clients currently holding a rate limiter bucket",
		},
	)

	CombineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "combine_runs_total",
			Help: "Combine runs by outcome (ok, partial, failed)",
		},
		[]string{"status"},
	)

	CombineRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "combine_run_duration_seconds",
			Help:    "Duration of combine runs",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		},
	)

	CombineFilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "combine_files_total",
			Help: "Record files seen by combine runs, by result (processed, failed)",
		},
		[]string{"result"},
	)

	CombineDatasetRows = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "combine_dataset_rows",
			Help: "Rows in the latest combined dataset",
		},
	)

	CombineDatasetColumns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "combine_dataset_columns",
			Help: "Columns in the latest combined dataset",
		},
	)

	CombineLastSuccess = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "combine_last_success_timestamp_seconds",
			Help: "Unix time of the last run that produced a dataset",
		},
	)

	RecordsSavedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "records_saved_total",
			Help: "Record documents stored through the API",
		},
	)
)

// Run outcomes used as the status label of CombineRunsTotal.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

func init() {
	prometheus.MustRegister(
		HTTPRequestTotals,
		HTTPRequestDuration,
		HTTPRequestInFlight,
		RateLimiterBucketsTotal,
		CombineRunsTotal,
		CombineRunDuration,
		CombineFilesTotal,
		CombineDatasetRows,
		CombineDatasetColumns,
		CombineLastSuccess,
		RecordsSavedTotal,
	)
}

// RunStats is what a finished combine run reports.
type RunStats struct {
	Status    string
	Duration  time.Duration
	Processed int
	Failed    int
	Rows      int
	Columns   int
	Finished  time.Time
}

// ObserveRun records the outcome of one combine run. Dataset gauges only
// move when the run produced a dataset.
func ObserveRun(s RunStats) {
	CombineRunsTotal.WithLabelValues(s.Status).Inc()
	CombineRunDuration.Observe(s.Duration.Seconds())
	CombineFilesTotal.WithLabelValues("processed").Add(float64(s.Processed))
	CombineFilesTotal.WithLabelValues("failed").Add(float64(s.Failed))

	if s.Status == StatusFailed {
		return
	}
	CombineDatasetRows.Set(float64(s.Rows))
	CombineDatasetColumns.Set(float64(s.Columns))
	CombineLastSuccess.Set(float64(s.Finished.Unix()))
}
