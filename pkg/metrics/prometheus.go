// Package metrics provides Prometheus metrics for the judgeboard service.
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

// Manager manages all Prometheus metrics for the judgeboard service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	refreshInterval  time.Duration
	registry         prometheus.Registerer

	// Ledger
	scoresSubmitted *prometheus.CounterVec
	scoreConflicts  prometheus.Counter
	ledgerErrors    *prometheus.CounterVec

	// Registration
	registrations *prometheus.CounterVec

	// Ranking
	rankingComputations prometheus.Counter
	rankingCacheHits    prometheus.Counter
	rankingDuration     prometheus.Histogram

	// Directory size
	totalJudges       prometheus.Gauge
	totalParticipants prometheus.Gauge
	totalScores       prometheus.Gauge

	// Store
	storeTxDuration *prometheus.HistogramVec
	storeTxErrors   *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Configure rebuilds the global manager on a fresh registry with opts. Call
// it once at startup, before metrics are recorded concurrently.
func Configure(opts ...Option) {
	reg := prometheus.NewRegistry()
	customRegistry = reg
	globalManager = NewManager(append(opts, WithPrometheusRegistry(reg))...)
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "judgeboard",
		subsystem:        "scoreboard",
		histogramBuckets: []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		refreshInterval:  defaultRefreshInterval,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.scoresSubmitted = m.counterVec("scores_submitted_total",
		"Score submissions accepted by the ledger, by outcome (created|updated)", "outcome")
	m.scoreConflicts = m.counter("score_conflict_retries_total",
		"Score writes retried after a unique pair violation")
	m.ledgerErrors = m.counterVec("ledger_errors_total",
		"Ledger operations rejected or failed, by error kind", "kind")

	m.registrations = m.counterVec("judge_registrations_total",
		"Judge registration attempts by result", "result")

	m.rankingComputations = m.counter("ranking_computations_total",
		"Rankings computed from a fresh snapshot")
	m.rankingCacheHits = m.counter("ranking_cache_hits_total",
		"Ranking reads served from the bounded cache")
	m.rankingDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ranking_duration_milliseconds",
		Help:      "Time to snapshot, aggregate and sort the scoreboard",
		Buckets:   m.histogramBuckets,
	})

	m.totalJudges = m.gauge("judges", "Registered judges")
	m.totalParticipants = m.gauge("participants", "Participants on the board")
	m.totalScores = m.gauge("scores", "Score rows in the ledger")

	m.storeTxDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_tx_duration_milliseconds",
		Help:      "Store transaction latency by mode (view|update)",
		Buckets:   m.histogramBuckets,
	}, []string{"mode"})
	m.storeTxErrors = m.counterVec("store_tx_errors_total",
		"Store transactions rolled back, by mode", "mode")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total",
		"HTTP errors by endpoint, method and type", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// RecordScoreSubmitted counts a ledger write by outcome.
func RecordScoreSubmitted(outcome string) {
	globalManager.scoresSubmitted.WithLabelValues(outcome).Inc()
}

// RecordScoreConflictRetry counts a transparent retry after a pair conflict.
func RecordScoreConflictRetry() {
	globalManager.scoreConflicts.Inc()
}

// RecordLedgerError counts a failed ledger call.
func RecordLedgerError(kind string) {
	globalManager.ledgerErrors.WithLabelValues(kind).Inc()
}

// RecordRegistration counts a registration attempt.
func RecordRegistration(result string) {
	globalManager.registrations.WithLabelValues(result).Inc()
}

// RecordRankingComputed records a fresh ranking computation.
func RecordRankingComputed(latencyMs float64) {
	globalManager.rankingComputations.Inc()
	globalManager.rankingDuration.Observe(latencyMs)
}

// RecordRankingCacheHit counts a cached ranking read.
func RecordRankingCacheHit() {
	globalManager.rankingCacheHits.Inc()
}

// UpdateDirectorySize sets the judge, participant and score gauges.
func UpdateDirectorySize(judges, participants, scores int) {
	globalManager.totalJudges.Set(float64(judges))
	globalManager.totalParticipants.Set(float64(participants))
	globalManager.totalScores.Set(float64(scores))
}

// RecordStoreTx records a store transaction.
func RecordStoreTx(mode string, latencyMs float64, failed bool) {
	globalManager.storeTxDuration.WithLabelValues(mode).Observe(latencyMs)
	if failed {
		globalManager.storeTxErrors.WithLabelValues(mode).Inc()
	}
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RefreshInterval reports how often gauges should be refreshed.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
