// Package metrics provides Prometheus metrics for the linkage service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordStoreRequestsTotal tracks page requests sent to the record store
	RecordStoreRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerlink",
			Subsystem: "record_store",
			Name:      "requests_total",
			Help:      "Total number of page requests sent to the record store",
		},
		[]string{"store", "status"},
	)

	// RecordStoreRequestDuration tracks page request duration
	RecordStoreRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ledgerlink",
			Subsystem: "record_store",
			Name:      "request_duration_seconds",
			Help:      "Duration of record store page requests in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"store"},
	)

	// FetchBatchesTotal tracks key-set batches issued by the fetcher
	FetchBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerlink",
			Subsystem: "fetcher",
			Name:      "batches_total",
			Help:      "Total number of key-set batches issued",
		},
		[]string{"store", "field"},
	)

	// FetchedRowsTotal tracks rows returned by the fetcher
	FetchedRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerlink",
			Subsystem: "fetcher",
			Name:      "rows_total",
			Help:      "Total number of rows fetched",
		},
		[]string{"store"},
	)

	// StageDuration tracks how long each search stage takes
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ledgerlink",
			Subsystem: "search",
			Name:      "stage_duration_seconds",
			Help:      "Duration of search stages in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	// SearchesTotal tracks searches by mode and outcome
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerlink",
			Subsystem: "search",
			Name:      "searches_total",
			Help:      "Total number of searches by mode and status",
		},
		[]string{"mode", "status"},
	)

	// MergedRecordsTotal tracks merged records produced
	MergedRecordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ledgerlink",
			Subsystem: "merge",
			Name:      "records_total",
			Help:      "Total number of merged records produced",
		},
	)

	// FlaggedRecordsTotal tracks merged records flagged for attention
	FlaggedRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerlink",
			Subsystem: "merge",
			Name:      "flagged_records_total",
			Help:      "Total number of merged records flagged as inconsistent or ambiguous",
		},
		[]string{"kind"},
	)

	// ActiveSessions tracks the search sessions held by the registry
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ledgerlink",
			Subsystem: "search",
			Name:      "active_sessions",
			Help:      "Number of search sessions currently held",
		},
	)

	// SessionsEvictedTotal tracks sessions dropped to stay within the registry's limits
	SessionsEvictedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerlink",
			Subsystem: "search",
			Name:      "sessions_evicted_total",
			Help:      "Total number of search sessions evicted",
		},
		[]string{"reason"},
	)

	// RowCacheOperations tracks raw-row cache lookups
	RowCacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerlink",
			Subsystem: "row_cache",
			Name:      "operations_total",
			Help:      "Total number of raw-row cache operations",
		},
		[]string{"operation", "result"},
	)
)

// RecordRecordStoreRequest records an outbound page request
func RecordRecordStoreRequest(store, status string, duration time.Duration) {
	RecordStoreRequestsTotal.WithLabelValues(store, status).Inc()
	RecordStoreRequestDuration.WithLabelValues(store).Observe(duration.Seconds())
}

// RecordStage records a completed stage
func RecordStage(stage string, duration time.Duration) {
	StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordSearch records a finished search
func RecordSearch(mode, status string) {
	SearchesTotal.WithLabelValues(mode, status).Inc()
}

// RecordCacheLookup records a cache hit or miss
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	RowCacheOperations.WithLabelValues("get", result).Inc()
}
