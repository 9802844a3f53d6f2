package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "mediapipe"

	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// Provider metrics
var (
	TransformsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "transforms_total",
			Help:      "Total media transforms",
		},
		[]string{"provider", "status"},
	)

	ThumbnailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "thumbnails_total",
			Help:      "Total thumbnail operations",
		},
		[]string{"operation", "status"},
	)

	RemovalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "removals_total",
			Help:      "Total removal lifecycle steps",
		},
		[]string{"phase", "status"},
	)

	SnapshotsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "removal_snapshots_evicted_total",
			Help:      "Removal snapshots dropped before post-removal",
		},
	)
)

// CDN metrics
var (
	CDNFlushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cdn",
			Name:      "flushes_total",
			Help:      "Total CDN flush batches",
		},
		[]string{"backend", "status"},
	)

	CDNFlushPaths = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cdn",
			Name:      "flush_paths",
			Help:      "Number of paths per CDN flush batch",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64},
		},
	)

	ReconcileChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cdn",
			Name:      "reconcile_changes_total",
			Help:      "Media whose CDN status changed during reconciliation",
		},
		[]string{"status"},
	)
)

// Storage metrics
var (
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "operations_total",
			Help:      "Total storage operations",
		},
		[]string{"backend", "operation", "status"},
	)

	StorageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "duration_seconds",
			Help:      "Storage operation duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"backend", "operation"},
	)
)

// Status maps an error to a status label.
func Status(err error) string {
	if err != nil {
		return StatusError
	}

	return StatusSuccess
}

// TimeStorageOperation starts timing a storage operation. The returned
// function records the outcome.
func TimeStorageOperation(backend, operation string) func(error) {
	start := time.Now()

	return func(err error) {
		StorageOperationsTotal.WithLabelValues(backend, operation, Status(err)).Inc()
		StorageDuration.WithLabelValues(backend, operation).Observe(time.Since(start).Seconds())
	}
}

// RecordTransform records a provider transform.
func RecordTransform(provider, status string) {
	TransformsTotal.WithLabelValues(provider, status).Inc()
}

// RecordThumbnail records a thumbnail generate or delete.
func RecordThumbnail(operation string, err error) {
	ThumbnailsTotal.WithLabelValues(operation, Status(err)).Inc()
}

// RecordRemoval records a removal hook outcome.
func RecordRemoval(phase, status string) {
	RemovalsTotal.WithLabelValues(phase, status).Inc()
}

// RecordSnapshotEvicted records a removal snapshot dropped by the tracker.
func RecordSnapshotEvicted() {
	SnapshotsEvicted.Inc()
}

// RecordCDNFlush records one flush batch.
func RecordCDNFlush(backend string, paths int, err error) {
	CDNFlushesTotal.WithLabelValues(backend, Status(err)).Inc()

	if err == nil {
		CDNFlushPaths.Observe(float64(paths))
	}
}

// RecordReconcileChange records a media moved to a new CDN status.
func RecordReconcileChange(status string) {
	ReconcileChangesTotal.WithLabelValues(status).Inc()
}
