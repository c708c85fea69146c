package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Commit metrics
	CommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delta_commits_total",
			Help: "Total number of committed versions by operation",
		},
		[]string{"operation"},
	)

	CommitRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "delta_commit_retries_total",
			Help: "Total number of commit attempts that lost the version race and rebased",
		},
	)

	CommitConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delta_commit_conflicts_total",
			Help: "Total number of aborted commits by conflict kind",
		},
		[]string{"kind"},
	)

	CommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "delta_commit_duration_seconds",
			Help:    "Time taken to commit a transaction in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Snapshot metrics
	SnapshotLoadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "delta_snapshot_load_duration_seconds",
			Help:    "Time taken to reconstruct a snapshot in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SnapshotFiles = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "delta_snapshot_files",
			Help: "Number of live data files in the latest loaded snapshot",
		},
		[]string{"table"},
	)

	SnapshotSizeBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "delta_snapshot_size_bytes",
			Help: "Total size of the live data files in the latest loaded snapshot",
		},
		[]string{"table"},
	)

	// Checkpoint metrics
	CheckpointsWrittenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "delta_checkpoints_written_total",
			Help: "Total number of checkpoints written",
		},
	)

	CheckpointFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "delta_checkpoint_failures_total",
			Help: "Total number of failed checkpoint writes",
		},
	)

	// Merge metrics
	MergeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "delta_merge_duration_seconds",
			Help:    "End-to-end merge duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
		},
	)

	MergeRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delta_merge_rows_total",
			Help: "Total number of rows processed by merge, by outcome",
		},
		[]string{"outcome"},
	)

	// Data skipping metrics
	FilesSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "delta_files_skipped_total",
			Help: "Total number of files pruned by partition or stats skipping",
		},
	)

	FilesScannedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "delta_files_scanned_total",
			Help: "Total number of files retained after skipping",
		},
	)

	// Streaming metrics
	StreamBatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "delta_stream_batches_total",
			Help: "Total number of micro-batches served",
		},
	)

	StreamFilesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "delta_stream_files_total",
			Help: "Total number of files admitted into micro-batches",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(CommitsTotal)
	prometheus.MustRegister(CommitRetriesTotal)
	prometheus.MustRegister(CommitConflictsTotal)
	prometheus.MustRegister(CommitDuration)
	prometheus.MustRegister(SnapshotLoadDuration)
	prometheus.MustRegister(SnapshotFiles)
	prometheus.MustRegister(SnapshotSizeBytes)
	prometheus.MustRegister(CheckpointsWrittenTotal)
	prometheus.MustRegister(CheckpointFailuresTotal)
	prometheus.MustRegister(MergeDuration)
	prometheus.MustRegister(MergeRowsTotal)
	prometheus.MustRegister(FilesSkippedTotal)
	prometheus.MustRegister(FilesScannedTotal)
	prometheus.MustRegister(StreamBatchesTotal)
	prometheus.MustRegister(StreamFilesTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
