// Package monitoring exposes Prometheus metrics for the MapaLinear pipeline.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const ServiceName = "mapalinear"

var (
	// ExternalServiceRequestsTotal counts provider adapter calls (Nominatim,
	// Overpass, OSRM, HERE) by operation and outcome.
	ExternalServiceRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapalinear_external_service_requests_total",
			Help: "Total number of external geo-provider requests",
		},
		[]string{"service", "operation", "status"},
	)

	ExternalServiceRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mapalinear_external_service_request_duration_seconds",
			Help:    "External service request duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
		},
		[]string{"service", "operation"},
	)

	RateLimitExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapalinear_rate_limit_exceeded_total",
			Help: "Total number of rate limit exceeded events",
		},
		[]string{"service"},
	)

	RateLimitWaitTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mapalinear_rate_limit_wait_duration_seconds",
			Help:    "Time spent waiting for rate limits",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"service"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapalinear_cache_hits_total",
			Help: "Total number of unified cache hits",
		},
		[]string{"operation", "match_kind"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapalinear_cache_misses_total",
			Help: "Total number of unified cache misses",
		},
		[]string{"operation"},
	)

	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mapalinear_cache_size",
			Help: "Current number of live entries in the unified cache",
		},
		[]string{"backend"},
	)

	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapalinear_errors_total",
			Help: "Total number of errors by component",
		},
		[]string{"component", "error_type"},
	)

	// SegmentsCreatedTotal / SegmentsReusedTotal track C5's reuse ratio.
	SegmentsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mapalinear_segments_created_total",
			Help: "Total number of new RouteSegments created",
		},
	)

	SegmentsReusedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mapalinear_segments_reused_total",
			Help: "Total number of RouteSegment reuses (usage_count increments)",
		},
	)

	// AsyncOperationsTotal tracks lifecycle transitions for C11.
	AsyncOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapalinear_async_operations_total",
			Help: "Total number of async operation lifecycle transitions",
		},
		[]string{"operation_type", "transition"},
	)

	PipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mapalinear_pipeline_duration_seconds",
			Help:    "End-to-end map generation duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"status"},
	)
)

func RecordExternalServiceRequest(service, operation string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	ExternalServiceRequestsTotal.WithLabelValues(service, operation, status).Inc()
	ExternalServiceRequestDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

func RecordCacheHit(operation, matchKind string) {
	CacheHits.WithLabelValues(operation, matchKind).Inc()
}

func RecordCacheMiss(operation string) {
	CacheMisses.WithLabelValues(operation).Inc()
}

func UpdateCacheSize(backend string, size int) {
	CacheSize.WithLabelValues(backend).Set(float64(size))
}

func RecordRateLimitExceeded(service string) {
	RateLimitExceeded.WithLabelValues(service).Inc()
}

func RecordRateLimitWait(service string, duration time.Duration) {
	RateLimitWaitTime.WithLabelValues(service).Observe(duration.Seconds())
}

func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

func RecordAsyncTransition(operationType, transition string) {
	AsyncOperationsTotal.WithLabelValues(operationType, transition).Inc()
}

func RecordPipelineDuration(status string, duration time.Duration) {
	PipelineDuration.WithLabelValues(status).Observe(duration.Seconds())
}
