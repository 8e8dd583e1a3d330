// Package metrics provides Prometheus metrics for the risk scoring pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the pipeline service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	registry         prometheus.Registerer

	// Batch lifecycle metrics
	batchesReceived  prometheus.Counter
	batchesCommitted prometheus.Counter
	batchesFailed    *prometheus.CounterVec
	stageLatency     *prometheus.HistogramVec

	// Validation metrics
	recordsValid   prometheus.Counter
	recordsInvalid prometheus.Counter
	violations     *prometheus.CounterVec

	// Feature derivation metrics
	featuresDerived    prometheus.Counter
	referenceExcluded  prometheus.Counter
	derivationLatency  prometheus.Histogram

	// Scoring metrics
	scoringLatency prometheus.Histogram
	scoringErrors  prometheus.Counter
	scoringRetries prometheus.Counter
	segments       *prometheus.CounterVec

	// Lineage store metrics
	lineageCommits      prometheus.Counter
	lineageCommitErrors prometheus.Counter
	commitLatency       prometheus.Histogram

	// Queue metrics
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueUtilization prometheus.Gauge
	queueEnqueues    prometheus.Counter
	queueDequeues    prometheus.Counter
	queueEnqueueErrs *prometheus.CounterVec

	// Worker metrics
	workerCount       prometheus.Gauge
	workerErrors      prometheus.Counter
	processingLatency prometheus.Histogram

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "riskpipe",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) initializeMetrics() {
	factory := promauto.With(m.registry)

	m.batchesReceived = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "batches_received_total",
		Help: "Number of batches picked up for processing.",
	})
	m.batchesCommitted = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "batches_committed_total",
		Help: "Number of batches that reached the Committed state.",
	})
	m.batchesFailed = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "batches_failed_total",
		Help: "Number of batches that reached the Failed state, by error kind.",
	}, []string{"kind"})
	m.stageLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "stage_latency_ms",
		Help:    "Per-stage processing latency in milliseconds.",
		Buckets: m.histogramBuckets,
	}, []string{"stage"})

	m.recordsValid = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "records_valid_total",
		Help: "Records that passed validation.",
	})
	m.recordsInvalid = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "records_invalid_total",
		Help: "Records rejected by validation.",
	})
	m.violations = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "validation_violations_total",
		Help: "Validation violations by rule.",
	}, []string{"rule"})

	m.featuresDerived = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "feature_vectors_total",
		Help: "Feature vectors produced by derivation.",
	})
	m.referenceExcluded = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "reference_exclusions_total",
		Help: "Records excluded for missing reference data.",
	})
	m.derivationLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "derivation_latency_ms",
		Help:    "Feature derivation latency per batch in milliseconds.",
		Buckets: m.histogramBuckets,
	})

	m.scoringLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "scoring_latency_ms",
		Help:    "Model scoring latency in milliseconds.",
		Buckets: m.histogramBuckets,
	})
	m.scoringErrors = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "scoring_errors_total",
		Help: "Model scoring failures.",
	})
	m.scoringRetries = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "scoring_retries_total",
		Help: "Model scoring retries after a retryable failure.",
	})
	m.segments = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "risk_segments_total",
		Help: "Score results by assigned risk segment.",
	}, []string{"segment"})

	m.lineageCommits = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "lineage_commits_total",
		Help: "Successful atomic lineage commits.",
	})
	m.lineageCommitErrors = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "lineage_commit_errors_total",
		Help: "Failed lineage commits (nothing persisted).",
	})
	m.commitLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "lineage_commit_latency_ms",
		Help:    "Lineage commit latency in milliseconds.",
		Buckets: m.histogramBuckets,
	})

	m.queueSize = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "queue_size",
		Help: "Current number of queued batches.",
	})
	m.queueCapacity = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "queue_capacity",
		Help: "Configured batch queue capacity.",
	})
	m.queueUtilization = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "queue_utilization",
		Help: "Queue fill ratio between 0 and 1.",
	})
	m.queueEnqueues = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "queue_enqueues_total",
		Help: "Batches accepted onto the queue.",
	})
	m.queueDequeues = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "queue_dequeues_total",
		Help: "Batches handed to workers.",
	})
	m.queueEnqueueErrs = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "queue_enqueue_errors_total",
		Help: "Rejected enqueue attempts by reason.",
	}, []string{"reason"})

	m.workerCount = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "worker_count",
		Help: "Number of batch workers.",
	})
	m.workerErrors = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "worker_errors_total",
		Help: "Batch processing errors observed by workers.",
	})
	m.processingLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "batch_processing_latency_ms",
		Help:    "End-to-end batch processing latency in milliseconds.",
		Buckets: m.histogramBuckets,
	})

	m.httpRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "http_requests_total",
		Help: "HTTP requests by endpoint, method and status.",
	}, []string{"endpoint", "method", "status"})
	m.httpRequestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "http_request_duration_ms",
		Help:    "HTTP request duration in milliseconds.",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status"})

	m.systemMemoryUsage = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "system_memory_bytes",
		Help: "Current allocated heap bytes.",
	})
	m.systemGoroutineCount = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "system_goroutines",
		Help: "Current goroutine count.",
	})
}

// GetRegistry returns the custom Prometheus registry used by the service.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Global helpers. All of them are no-ops when metrics are disabled.

func RecordBatchReceived() {
	if globalManager.enabled {
		globalManager.batchesReceived.Inc()
	}
}

func RecordBatchCommitted() {
	if globalManager.enabled {
		globalManager.batchesCommitted.Inc()
	}
}

func RecordBatchFailed(kind string) {
	if globalManager.enabled {
		globalManager.batchesFailed.WithLabelValues(kind).Inc()
	}
}

func RecordStageLatency(stage string, ms float64) {
	if globalManager.enabled {
		globalManager.stageLatency.WithLabelValues(stage).Observe(ms)
	}
}

func RecordRecordsValidated(valid, invalid int) {
	if globalManager.enabled {
		globalManager.recordsValid.Add(float64(valid))
		globalManager.recordsInvalid.Add(float64(invalid))
	}
}

func RecordViolation(rule string) {
	if globalManager.enabled {
		globalManager.violations.WithLabelValues(rule).Inc()
	}
}

func RecordFeatureVectors(n int) {
	if globalManager.enabled {
		globalManager.featuresDerived.Add(float64(n))
	}
}

func RecordReferenceExclusion() {
	if globalManager.enabled {
		globalManager.referenceExcluded.Inc()
	}
}

func RecordDerivationLatency(ms float64) {
	if globalManager.enabled {
		globalManager.derivationLatency.Observe(ms)
	}
}

func RecordScoringLatency(ms float64) {
	if globalManager.enabled {
		globalManager.scoringLatency.Observe(ms)
	}
}

func RecordScoringError() {
	if globalManager.enabled {
		globalManager.scoringErrors.Inc()
	}
}

func RecordScoringRetry() {
	if globalManager.enabled {
		globalManager.scoringRetries.Inc()
	}
}

func RecordSegment(segment string) {
	if globalManager.enabled {
		globalManager.segments.WithLabelValues(segment).Inc()
	}
}

func RecordLineageCommit() {
	if globalManager.enabled {
		globalManager.lineageCommits.Inc()
	}
}

func RecordLineageCommitError() {
	if globalManager.enabled {
		globalManager.lineageCommitErrors.Inc()
	}
}

func RecordCommitLatency(ms float64) {
	if globalManager.enabled {
		globalManager.commitLatency.Observe(ms)
	}
}

func UpdateQueueSize(n int) {
	if globalManager.enabled {
		globalManager.queueSize.Set(float64(n))
	}
}

func UpdateQueueCapacity(n int) {
	if globalManager.enabled {
		globalManager.queueCapacity.Set(float64(n))
	}
}

func UpdateQueueUtilization(ratio float64) {
	if globalManager.enabled {
		globalManager.queueUtilization.Set(ratio)
	}
}

func RecordQueueEnqueue() {
	if globalManager.enabled {
		globalManager.queueEnqueues.Inc()
	}
}

func RecordQueueDequeue() {
	if globalManager.enabled {
		globalManager.queueDequeues.Inc()
	}
}

func RecordQueueEnqueueError(reason string) {
	if globalManager.enabled {
		globalManager.queueEnqueueErrs.WithLabelValues(reason).Inc()
	}
}

func UpdateWorkerCount(n int) {
	if globalManager.enabled {
		globalManager.workerCount.Set(float64(n))
	}
}

func RecordWorkerError() {
	if globalManager.enabled {
		globalManager.workerErrors.Inc()
	}
}

func RecordProcessingLatency(ms float64) {
	if globalManager.enabled {
		globalManager.processingLatency.Observe(ms)
	}
}

func RecordHTTPRequest(endpoint, method, status string) {
	if globalManager.enabled {
		globalManager.httpRequests.WithLabelValues(endpoint, method, status).Inc()
	}
}

func RecordHTTPRequestDuration(endpoint, method, status string, ms float64) {
	if globalManager.enabled {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, status).Observe(ms)
	}
}

func UpdateSystemMemoryUsage(bytes uint64) {
	if globalManager.enabled {
		globalManager.systemMemoryUsage.Set(float64(bytes))
	}
}

func UpdateSystemGoroutineCount(n int) {
	if globalManager.enabled {
		globalManager.systemGoroutineCount.Set(float64(n))
	}
}
