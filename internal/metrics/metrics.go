// Package metrics provides Prometheus metrics for ingestion, time-travel
// queries and the HTTP API. Metrics are registered with the default
// registry via promauto and scraped on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "finance_warehouse"

var (
	// IngestFilesTotal counts ingestion attempts by outcome.
	// outcome: success | skipped | failed
	IngestFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "files_total",
			Help:      "Total number of extract ingestion attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// IngestRowsTotal counts rows written into snapshots.
	IngestRowsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "rows_total",
			Help:      "Total number of cleaned rows written into snapshots.",
		},
	)

	// IngestDurationSeconds tracks per-file ingestion latency.
	IngestDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "duration_seconds",
			Help:      "Duration of single-file ingestion in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	// SnapshotReadErrorsTotal counts snapshots skipped during multi-version scans.
	SnapshotReadErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "timetravel",
			Name:      "snapshot_read_errors_total",
			Help:      "Snapshots skipped because they could not be read, by operation.",
		},
		[]string{"operation"},
	)

	// QueriesTotal counts time-travel operations by operation and outcome.
	// outcome: ok | empty | error
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "timetravel",
			Name:      "queries_total",
			Help:      "Time-travel operations by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	// HTTPRequestsTotal counts API requests by route pattern and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "status"},
	)

	// JobsTotal counts background ingestion job outcomes, retries included.
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "completed_total",
			Help:      "Background ingestion job outcomes by status.",
		},
		[]string{"status"},
	)
)
