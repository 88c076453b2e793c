// Package metrics provides Prometheus metrics for the uruk event receiver.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the receiver.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Intake pipeline
	tokensReceived       prometheus.Counter
	tokensAccepted       prometheus.Counter
	tokensRejected       *prometheus.CounterVec
	tokensDuplicate      prometheus.Counter
	operationalFailures  *prometheus.CounterVec
	validationLatency    prometheus.Histogram
	duplicateCheckLatency prometheus.Histogram

	// Queue (sink)
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueUtilization prometheus.Gauge
	queueEnqueued    prometheus.Counter
	queueDequeued    prometheus.Counter
	queueRejected    *prometheus.CounterVec

	// Workers and downstream stores
	workerCount      prometheus.Gauge
	storeAppends     *prometheus.CounterVec
	storeLatency     prometheus.Histogram
	storeRetries     prometheus.Counter
	storeDropped     prometheus.Counter
	storedRecords    prometheus.Gauge
	registrations    prometheus.Gauge
	registryReloads  *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "uruk",
		subsystem:        "receiver",
		histogramBuckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 1000},
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	})
}

// initializeMetrics creates all the Prometheus metrics on the configured registry.
func (m *Manager) initializeMetrics() {
	m.tokensReceived = m.counter("tokens_received_total", "Security event tokens handed to the intake pipeline")
	m.tokensAccepted = m.counter("tokens_accepted_total", "Tokens admitted to the outbound queue")
	m.tokensRejected = m.counterVec("tokens_rejected_total", "Tokens rejected by validation", "code", "status")
	m.tokensDuplicate = m.counter("tokens_duplicate_total", "Replayed tokens swallowed as idempotent success")
	m.operationalFailures = m.counterVec("operational_failures_total", "Requests failed for system-side reasons", "code")
	m.validationLatency = m.histogram("validation_latency_milliseconds", "Token validation latency in milliseconds")
	m.duplicateCheckLatency = m.histogram("duplicate_check_latency_milliseconds", "Duplicate detector latency in milliseconds")

	m.queueSize = m.gauge("queue_size", "Current number of records waiting in the outbound queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum capacity of the outbound queue")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue size divided by capacity")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Records admitted to the queue")
	m.queueDequeued = m.counter("queue_dequeued_total", "Records handed to workers")
	m.queueRejected = m.counterVec("queue_rejected_total", "Queue admissions refused", "reason")

	m.workerCount = m.gauge("worker_count", "Number of workers draining the queue")
	m.storeAppends = m.counterVec("store_appends_total", "Downstream store appends by result", "store", "result")
	m.storeLatency = m.histogram("store_latency_milliseconds", "Downstream store append latency in milliseconds")
	m.storeRetries = m.counter("store_retries_total", "Downstream append retries")
	m.storeDropped = m.counter("store_dropped_total", "Records dropped after exhausting retries")
	m.storedRecords = m.gauge("stored_records", "Records held by the in-memory store")
	m.registrations = m.gauge("registrations", "Number of loaded client registrations")
	m.registryReloads = m.counterVec("registry_reloads_total", "Registration reloads by result", "result")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// RecordTokenReceived increments the received tokens counter.
func RecordTokenReceived() { globalManager.tokensReceived.Inc() }

// RecordTokenAccepted increments the accepted tokens counter.
func RecordTokenAccepted() { globalManager.tokensAccepted.Inc() }

// RecordTokenRejected records a validation rejection by protocol code and validator status.
func RecordTokenRejected(code, status string) {
	globalManager.tokensRejected.WithLabelValues(code, status).Inc()
}

// RecordTokenDuplicate increments the replayed tokens counter.
func RecordTokenDuplicate() { globalManager.tokensDuplicate.Inc() }

// RecordOperationalFailure records a system-side failure by error code.
func RecordOperationalFailure(code string) {
	globalManager.operationalFailures.WithLabelValues(code).Inc()
}

// RecordValidationLatency records token validation latency in milliseconds.
func RecordValidationLatency(latencyMs float64) { globalManager.validationLatency.Observe(latencyMs) }

// RecordDuplicateCheckLatency records duplicate detector latency in milliseconds.
func RecordDuplicateCheckLatency(latencyMs float64) {
	globalManager.duplicateCheckLatency.Observe(latencyMs)
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) { globalManager.queueUtilization.Set(utilization) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeued.Inc() }

// RecordQueueRejected records a refused admission: full, closed or context_cancelled.
func RecordQueueRejected(reason string) { globalManager.queueRejected.WithLabelValues(reason).Inc() }

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// RecordStoreAppend records a downstream append result ("ok" or "error") for a store.
func RecordStoreAppend(store, result string) {
	globalManager.storeAppends.WithLabelValues(store, result).Inc()
}

// RecordStoreLatency records downstream append latency in milliseconds.
func RecordStoreLatency(latencyMs float64) { globalManager.storeLatency.Observe(latencyMs) }

// RecordStoreRetry increments the append retry counter.
func RecordStoreRetry() { globalManager.storeRetries.Inc() }

// RecordStoreDropped increments the dropped records counter.
func RecordStoreDropped() { globalManager.storeDropped.Inc() }

// UpdateStoredRecords sets the number of records held by the in-memory store.
func UpdateStoredRecords(n int) { globalManager.storedRecords.Set(float64(n)) }

// UpdateRegistrations sets the number of loaded registrations.
func UpdateRegistrations(count int) { globalManager.registrations.Set(float64(count)) }

// RecordRegistryReload records a registration reload result ("ok" or "error").
func RecordRegistryReload(result string) { globalManager.registryReloads.WithLabelValues(result).Inc() }

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
