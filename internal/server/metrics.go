package server

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"scan2sheet/internal/recognition"
	"scan2sheet/internal/workflow"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan2sheet_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scan2sheet_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"method", "endpoint"},
	)

	// Recognition metrics
	recognitionCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan2sheet_recognition_calls_total",
			Help: "Total number of layout recognition calls",
		},
		[]string{"backend", "status"}, // status: success, unauthorized, quota, timeout, failed
	)

	recognitionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scan2sheet_recognition_duration_seconds",
			Help:    "Layout recognition call duration in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 25, 50, 100},
		},
		[]string{"backend"},
	)

	tablesExtractedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scan2sheet_tables_extracted_total",
			Help: "Total number of tables extracted",
		},
	)

	pagesRasterizedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scan2sheet_pages_rasterized_total",
			Help: "Total number of PDF pages converted to images",
		},
	)

	// File upload metrics
	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scan2sheet_upload_size_bytes",
			Help:    "Size of uploaded files in bytes",
			Buckets: []float64{10 * 1024, 100 * 1024, 1024 * 1024, 5 * 1024 * 1024, 10 * 1024 * 1024, 50 * 1024 * 1024},
		},
	)
)

// metricsObserver records workflow progress for one recognition backend.
type metricsObserver struct {
	backend string
}

// NewMetricsObserver returns a workflow observer that exports recognition
// calls and extracted tables as Prometheus metrics.
func NewMetricsObserver(backend string) workflow.Observer {
	return metricsObserver{backend: backend}
}

func (o metricsObserver) RecognitionDone(err error, d time.Duration) {
	recognitionCallsTotal.WithLabelValues(o.backend, recognitionStatus(err)).Inc()
	recognitionDuration.WithLabelValues(o.backend).Observe(d.Seconds())
}

func (o metricsObserver) TablesExtracted(n int) {
	tablesExtractedTotal.Add(float64(n))
}

func recognitionStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, recognition.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, recognition.ErrQuotaExceeded):
		return "quota"
	case errors.Is(err, recognition.ErrTimeout):
		return "timeout"
	default:
		return "failed"
	}
}
