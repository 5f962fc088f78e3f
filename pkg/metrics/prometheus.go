// Package metrics provides Prometheus metrics for the tipping aggregator.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer
	constLabels      prometheus.Labels

	// Ingest
	snapshotsIngested  prometheus.Counter
	snapshotsDuplicate prometheus.Counter
	snapshotsRejected  *prometheus.CounterVec
	snapshotsStored    prometheus.Gauge

	// Consensus
	consensusComputed *prometheus.CounterVec
	consensusLatency  prometheus.Histogram
	consensusCache    *prometheus.CounterVec

	// Performance and weights
	performanceRecomputes *prometheus.CounterVec
	performanceDuration   prometheus.Histogram
	weightRecomputes      *prometheus.CounterVec
	weightGroups          prometheus.Gauge

	// Polling
	pollDecisions *prometheus.CounterVec
	pollRequests  prometheus.Counter

	// Queue and workers
	queueSize               prometheus.Gauge
	queueCapacity           prometheus.Gauge
	queueEnqueued           prometheus.Counter
	queueEnqueueErrors      prometheus.Counter
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Stream
	streamMessages *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "tipping",
		subsystem:        "aggregator",
		histogramBuckets: []float64{1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.constLabels != nil {
		m.registry = prometheus.WrapRegistererWith(m.constLabels, m.registry)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.snapshotsIngested = m.counter("snapshots_ingested_total", "Snapshots accepted for processing")
	m.snapshotsDuplicate = m.counter("snapshots_duplicate_total", "Snapshots dropped as already ingested")
	m.snapshotsRejected = m.counterVec("snapshots_rejected_total", "Snapshots rejected before processing", "reason")
	m.snapshotsStored = m.gauge("snapshots_stored", "Snapshots held by the store")

	m.consensusComputed = m.counterVec("consensus_computed_total", "Consensus computations by result", "result")
	m.consensusLatency = m.histogram("consensus_latency_ms", "Consensus computation latency in milliseconds")
	m.consensusCache = m.counterVec("consensus_cache_total", "Consensus cache lookups by result", "result")

	m.performanceRecomputes = m.counterVec("performance_records_total", "Performance records written by action", "action")
	m.performanceDuration = m.histogram("performance_recompute_ms", "Duration of a performance recompute run in milliseconds")
	m.weightRecomputes = m.counterVec("weight_recomputes_total", "Weight recomputes by result", "result")
	m.weightGroups = m.gauge("weight_groups", "League and market groups with derived weights")

	m.pollDecisions = m.counterVec("poll_decisions_total", "Poll decisions by tier and skip", "tier", "skip")
	m.pollRequests = m.counter("poll_requests_total", "Poll requests published to collectors")

	m.queueSize = m.gauge("queue_size", "Snapshots waiting in the queue")
	m.queueCapacity = m.gauge("queue_capacity", "Queue capacity")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Snapshots enqueued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Snapshots refused by a full or closed queue")
	m.workerCount = m.gauge("worker_count", "Running snapshot workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_ms", "Per-snapshot processing latency in milliseconds")
	m.workerErrors = m.counter("worker_errors_total", "Snapshots that failed processing")

	m.streamMessages = m.counterVec("stream_messages_total", "Stream messages by topic and result", "topic", "result")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = m.counterVec("errors_total", "Errors by component and type", "component", "type")
}

// Ingest.

func RecordSnapshotIngested() {
	globalManager.snapshotsIngested.Inc()
}

func RecordSnapshotDuplicate() {
	globalManager.snapshotsDuplicate.Inc()
}

func RecordSnapshotRejected(reason string) {
	globalManager.snapshotsRejected.WithLabelValues(reason).Inc()
}

func UpdateSnapshotsStored(n int) {
	globalManager.snapshotsStored.Set(float64(n))
}

// Consensus.

// RecordConsensus counts a computation as "ok" or "empty" and records its latency.
func RecordConsensus(empty bool, latencyMs float64) {
	result := "ok"
	if empty {
		result = "empty"
	}
	globalManager.consensusComputed.WithLabelValues(result).Inc()
	globalManager.consensusLatency.Observe(latencyMs)
}

// RecordConsensusCache counts a cache lookup as "hit" or "miss".
func RecordConsensusCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	globalManager.consensusCache.WithLabelValues(result).Inc()
}

// Performance and weights.

// RecordPerformanceRecord counts a record as "replace" or "append".
func RecordPerformanceRecord(replaced bool) {
	action := "append"
	if replaced {
		action = "replace"
	}
	globalManager.performanceRecomputes.WithLabelValues(action).Inc()
}

func RecordPerformanceRecomputeDuration(ms float64) {
	globalManager.performanceDuration.Observe(ms)
}

// RecordWeightRecompute counts a group's weight derivation as "ok", "equal" or "error".
func RecordWeightRecompute(result string) {
	globalManager.weightRecomputes.WithLabelValues(result).Inc()
}

func UpdateWeightGroups(n int) {
	globalManager.weightGroups.Set(float64(n))
}

// Polling.

func RecordPollDecision(tier string, skip bool) {
	globalManager.pollDecisions.WithLabelValues(tier, strconv.FormatBool(skip)).Inc()
}

func RecordPollRequest() {
	globalManager.pollRequests.Inc()
}

// Queue and workers.

func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

func RecordWorkerProcessingLatency(ms float64) {
	globalManager.workerProcessingLatency.Observe(ms)
}

func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// Stream.

func RecordStreamMessage(topic, result string) {
	globalManager.streamMessages.WithLabelValues(topic, result).Inc()
}

// HTTP.

func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

func RecordHTTPRequestDuration(endpoint, method, statusCode string, seconds float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(seconds)
}

// RecordErrorByComponent counts an error raised by a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the registry backing the package-level metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
