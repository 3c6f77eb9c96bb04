package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics must be global for registration
var (
	// PlatformRequests counts HTTP round trips to the platform
	PlatformRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seriesgraph_platform_requests_total",
			Help: "Total number of platform HTTP requests",
		},
		[]string{"endpoint", "status"}, // status: HTTP status code or "error"
	)

	// PlatformRequestDuration measures platform round trip latency in seconds
	PlatformRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "seriesgraph_platform_request_duration_seconds",
			Help:    "Platform request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"endpoint"},
	)

	// PlatformRetries counts retried platform requests
	PlatformRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seriesgraph_platform_retries_total",
			Help: "Total number of retried platform requests",
		},
		[]string{"endpoint"},
	)

	// ComputeExpressions counts evaluated expressions
	ComputeExpressions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seriesgraph_compute_expressions_total",
			Help: "Total number of expressions submitted for evaluation",
		},
		[]string{"mode", "result"}, // mode: single, batch; result: success, error
	)

	// ComputeBuckets counts buckets returned by the evaluator
	ComputeBuckets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seriesgraph_compute_buckets_total",
			Help: "Total number of buckets returned by the evaluator",
		},
		[]string{"mode"},
	)

	// ComputeBatchSize records the number of expressions per batch call
	ComputeBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "seriesgraph_compute_batch_size",
			Help:    "Number of expressions per batch call",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	// ComputeHoistedVariables counts shared subexpressions moved into the request context
	ComputeHoistedVariables = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "seriesgraph_compute_hoisted_variables_total",
			Help: "Total number of shared subexpressions sent as context variables",
		},
	)

	// CatalogCacheHits tracks catalog scope cache hits
	CatalogCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seriesgraph_catalog_cache_hits_total",
			Help: "Total number of catalog scope cache hits",
		},
		[]string{"origin"},
	)

	// CatalogCacheMisses tracks catalog scope cache misses
	CatalogCacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seriesgraph_catalog_cache_misses_total",
			Help: "Total number of catalog scope cache misses",
		},
		[]string{"origin"},
	)

	// ModuleRegistrations counts module registrations
	ModuleRegistrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seriesgraph_module_registrations_total",
			Help: "Total number of module registrations",
		},
		[]string{"module", "result"},
	)

	// IngestPoints counts points accepted by the ingest writer
	IngestPoints = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seriesgraph_ingest_points_total",
			Help: "Total number of points accepted for ingestion",
		},
		[]string{"kind"},
	)

	// IngestBufferedPoints measures points waiting to be flushed
	IngestBufferedPoints = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "seriesgraph_ingest_buffered_points",
			Help: "Number of points buffered by the ingest writer",
		},
	)

	// IngestFlushes counts write batch flushes
	IngestFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seriesgraph_ingest_flushes_total",
			Help: "Total number of write batch flushes",
		},
		[]string{"sink", "result"}, // sink: direct, queue
	)

	// ErrorsTotal counts total number of errors
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seriesgraph_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// RecordPlatformRequest records a platform round trip
func RecordPlatformRequest(endpoint, status string, duration float64) {
	PlatformRequests.WithLabelValues(endpoint, status).Inc()
	PlatformRequestDuration.WithLabelValues(endpoint).Observe(duration)
}

// RecordPlatformRetry records a retried request
func RecordPlatformRetry(endpoint string) {
	PlatformRetries.WithLabelValues(endpoint).Inc()
}

// RecordComputeResult records the outcome of one evaluated expression
func RecordComputeResult(mode, result string, buckets int) {
	ComputeExpressions.WithLabelValues(mode, result).Inc()
	ComputeBuckets.WithLabelValues(mode).Add(float64(buckets))
}

// RecordBatchSize records the number of expressions in a batch call
func RecordBatchSize(n int) {
	ComputeBatchSize.Observe(float64(n))
}

// RecordHoistedVariables records shared subexpressions sent as context variables
func RecordHoistedVariables(n int) {
	ComputeHoistedVariables.Add(float64(n))
}

// RecordCatalogCacheHit records a catalog cache hit
func RecordCatalogCacheHit(origin string) {
	CatalogCacheHits.WithLabelValues(origin).Inc()
}

// RecordCatalogCacheMiss records a catalog cache miss
func RecordCatalogCacheMiss(origin string) {
	CatalogCacheMisses.WithLabelValues(origin).Inc()
}

// RecordModuleRegistration records a module registration attempt
func RecordModuleRegistration(module, result string) {
	ModuleRegistrations.WithLabelValues(module, result).Inc()
}

// RecordIngestPoint records an accepted point
func RecordIngestPoint(kind string) {
	IngestPoints.WithLabelValues(kind).Inc()
}

// SetIngestBuffered sets the number of buffered points
func SetIngestBuffered(n int) {
	IngestBufferedPoints.Set(float64(n))
}

// RecordIngestFlush records a flush
func RecordIngestFlush(sink, result string) {
	IngestFlushes.WithLabelValues(sink, result).Inc()
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
