package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label value constants to prevent typos
const (
	// Row classes from the sync diff
	ClassNew       = "new"
	ClassChanged   = "changed"
	ClassUnchanged = "unchanged"
	ClassMissing   = "missing"

	// Loader operations
	OpInsertStaging = "insert_staging"
	OpInsertNew     = "insert_new"
	OpCopyUpdates   = "copy_updates"
	OpSoftDelete    = "soft_delete"
	OpUnSoftDelete  = "unsoft_delete"
)

// Sync engine metrics
var (
	SyncRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lms_sync_rows_total",
			Help: "Rows classified by the sync diff, by resource and class",
		},
		[]string{"resource", "class"},
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lms_sync_duration_seconds",
			Help:    "Duration of resource syncs",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"resource"},
	)

	SyncDuplicatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lms_sync_duplicate_keys_total",
			Help: "Duplicate natural keys dropped within a single pull",
		},
		[]string{"resource"},
	)

	SyncErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lms_sync_errors_total",
			Help: "Failed resource syncs",
		},
		[]string{"resource"},
	)
)

// LMS API metrics
var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lms_api_requests_total",
			Help: "LMS API requests by source system, operation and status code",
		},
		[]string{"system", "operation", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lms_api_request_duration_seconds",
			Help:    "LMS API request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"system", "operation"},
	)
)

// Output metrics
var (
	CSVFilesWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lms_csv_files_written_total",
			Help: "UDM CSV files written, by resource",
		},
		[]string{"resource"},
	)

	LoaderRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lms_loader_rows_total",
			Help: "Rows affected by loader statements, by table and operation",
		},
		[]string{"table", "operation"},
	)
)
