package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector holds every Prometheus metric the service exposes.
type Collector struct {
	// federated operations (search, observations, place-type validation)
	federationRequestsTotal   *prometheus.CounterVec
	federationRequestDuration *prometheus.HistogramVec
	federationDegradedTotal   *prometheus.CounterVec
	federationMergedResults   *prometheus.HistogramVec

	// per-instance backend calls
	backendRequestsTotal   *prometheus.CounterVec
	backendRequestDuration *prometheus.HistogramVec

	// topic / name caches
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// inbound HTTP surface
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector registers all collectors under the given namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.federationRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "federation_requests_total",
			Help:      "Total number of federated operations",
		},
		[]string{"operation", "status"},
	)

	c.federationRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "federation_request_duration_seconds",
			Help:      "Federated operation duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"operation"},
	)

	c.federationDegradedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "federation_degraded_total",
			Help:      "Total number of partial results with at least one degraded instance",
		},
		[]string{"operation", "instance"},
	)

	c.federationMergedResults = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "federation_merged_results",
			Help:      "Number of items in the merged result of a federated operation",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"operation"},
	)

	c.backendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Total number of backend instance calls",
		},
		[]string{"instance", "operation", "status"},
	)

	c.backendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Backend instance call duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"instance", "operation"},
	)

	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of inbound HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Inbound HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordFederation records one federated operation.
func (c *Collector) RecordFederation(operation, status string, duration time.Duration, mergedResults int) {
	c.federationRequestsTotal.WithLabelValues(operation, status).Inc()
	c.federationRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
	c.federationMergedResults.WithLabelValues(operation).Observe(float64(mergedResults))
}

// RecordDegraded records an instance that failed to contribute to a
// partial result.
func (c *Collector) RecordDegraded(operation, instance string) {
	c.federationDegradedTotal.WithLabelValues(operation, instance).Inc()
}

// RecordBackendCall records one backend instance call.
func (c *Collector) RecordBackendCall(instance, operation, status string, duration time.Duration) {
	c.backendRequestsTotal.WithLabelValues(instance, operation, status).Inc()
	c.backendRequestDuration.WithLabelValues(instance, operation).Observe(duration.Seconds())
}

// RecordCacheHit records a cache hit.
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss.
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordHTTPRequest records an inbound HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
