package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "petmarket",
			Subsystem: "media",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "petmarket",
			Subsystem: "media",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"method", "endpoint"},
	)

	// Per-file outcome: success, failed, unindexed.
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "petmarket",
			Subsystem: "media",
			Name:      "uploads_total",
			Help:      "Files processed by the upload pipeline",
		},
		[]string{"resource_type", "status"},
	)

	UploadBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "petmarket",
			Subsystem: "media",
			Name:      "upload_bytes_total",
			Help:      "Bytes accepted by the remote media store",
		},
		[]string{"resource_type"},
	)

	UploadAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "petmarket",
			Subsystem: "media",
			Name:      "upload_attempts",
			Help:      "Remote upload attempts per file",
			Buckets:   []float64{1, 2, 3, 4, 5},
		},
	)

	RemoteOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "petmarket",
			Subsystem: "media",
			Name:      "remote_operations_total",
			Help:      "Calls to the remote media store",
		},
		[]string{"backend", "operation", "status"},
	)

	RemoteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "petmarket",
			Subsystem: "media",
			Name:      "remote_duration_seconds",
			Help:      "Remote media store call duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"backend", "operation"},
	)
)

func RecordRequest(method, endpoint, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(method, endpoint).Observe(durationSec)
}

func RecordUpload(resourceType, status string, bytes int64, attempts int) {
	UploadsTotal.WithLabelValues(resourceType, status).Inc()
	if status == "success" {
		UploadBytesTotal.WithLabelValues(resourceType).Add(float64(bytes))
	}
	if attempts > 0 {
		UploadAttempts.Observe(float64(attempts))
	}
}

func RecordRemoteOperation(backend, operation, status string, durationSec float64) {
	RemoteOperationsTotal.WithLabelValues(backend, operation, status).Inc()
	RemoteDuration.WithLabelValues(backend, operation).Observe(durationSec)
}
