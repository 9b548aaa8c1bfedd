package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Manager manages all Prometheus metrics for one refresh process.
type Manager struct {
	namespace      string
	subsystem      string
	latencyBuckets []float64
	enabled        bool
	constLabels    map[string]string
	registry       *prometheus.Registry

	// Cycle outcomes
	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram

	// Model gateway
	gatewayErrors  *prometheus.CounterVec
	gatewayLatency prometheus.Histogram

	// Data quality
	extractionErrors *prometheus.CounterVec
	coercionWarnings prometheus.Counter

	// Store
	storeErrors *prometheus.CounterVec

	// Roster
	entities        prometheus.Gauge
	entitiesChanged prometheus.Gauge
	lastRefreshUnix prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a new metrics manager. Without WithRegistry it registers
// on a fresh registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:      "aura",
		subsystem:      "refresh",
		latencyBuckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		enabled:        true,
		constLabels:    make(map[string]string),
	}

	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)
	labels := prometheus.Labels(m.constLabels)

	m.cycles = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "cycles_total",
		Help:        "Refresh cycles by outcome (success, degraded, skipped, failed)",
		ConstLabels: labels,
	}, []string{"outcome"})

	m.cycleDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "cycle_duration_seconds",
		Help:        "Wall time of one refresh cycle in seconds",
		Buckets:     m.latencyBuckets,
		ConstLabels: labels,
	})

	m.gatewayErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "gateway_errors_total",
		Help:        "Failed model calls by classification",
		ConstLabels: labels,
	}, []string{"kind"})

	m.gatewayLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "gateway_latency_seconds",
		Help:        "Latency of the batched model call in seconds",
		Buckets:     m.latencyBuckets,
		ConstLabels: labels,
	})

	m.extractionErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "extraction_errors_total",
		Help:        "Model responses without a recoverable delta mapping, by reason",
		ConstLabels: labels,
	}, []string{"reason"})

	m.coercionWarnings = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "coercion_warnings_total",
		Help:        "Delta values that were not numeric and were treated as zero",
		ConstLabels: labels,
	})

	m.storeErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "store_errors_total",
		Help:        "Roster store failures by operation (load, persist, lock)",
		ConstLabels: labels,
	}, []string{"op"})

	m.entities = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "entities",
		Help:        "Number of entities in the roster",
		ConstLabels: labels,
	})

	m.entitiesChanged = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "entities_changed",
		Help:        "Entities whose score changed in the last cycle",
		ConstLabels: labels,
	})

	m.lastRefreshUnix = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "last_refresh_unix",
		Help:        "Unix time of the last document write",
		ConstLabels: labels,
	})
}

// Registry returns the registry the manager's metrics live on.
func (m *Manager) Registry() *prometheus.Registry { return m.registry }

// RecordCycle counts a finished cycle and observes its duration.
func (m *Manager) RecordCycle(outcome string, d time.Duration) {
	if !m.active() {
		return
	}
	m.cycles.WithLabelValues(outcome).Inc()
	m.cycleDuration.Observe(d.Seconds())
}

// RecordGatewayLatency observes the latency of one model call.
func (m *Manager) RecordGatewayLatency(d time.Duration) {
	if !m.active() {
		return
	}
	m.gatewayLatency.Observe(d.Seconds())
}

// RecordGatewayError counts a failed model call.
func (m *Manager) RecordGatewayError(kind string) {
	if !m.active() {
		return
	}
	m.gatewayErrors.WithLabelValues(kind).Inc()
}

// RecordExtractionError counts an unusable model response.
func (m *Manager) RecordExtractionError(reason string) {
	if !m.active() {
		return
	}
	m.extractionErrors.WithLabelValues(reason).Inc()
}

// AddCoercionWarnings counts non-numeric deltas.
func (m *Manager) AddCoercionWarnings(n int) {
	if !m.active() || n <= 0 {
		return
	}
	m.coercionWarnings.Add(float64(n))
}

// RecordStoreError counts a store failure for op.
func (m *Manager) RecordStoreError(op string) {
	if !m.active() {
		return
	}
	m.storeErrors.WithLabelValues(op).Inc()
}

// SetRoster records the roster size and how many scores changed.
func (m *Manager) SetRoster(entities, changed int) {
	if !m.active() {
		return
	}
	m.entities.Set(float64(entities))
	m.entitiesChanged.Set(float64(changed))
}

// SetLastRefresh records the time of the last document write.
func (m *Manager) SetLastRefresh(t time.Time) {
	if !m.active() {
		return
	}
	m.lastRefreshUnix.Set(float64(t.Unix()))
}

// WriteTextfile writes all metrics in the text exposition format to path,
// for the node_exporter textfile collector. The file is replaced atomically.
func (m *Manager) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("%w: write textfile %s: %w", ErrExport, path, err)
	}
	return nil
}

// Push sends all metrics to a Pushgateway under job.
func (m *Manager) Push(ctx context.Context, url, job string) error {
	err := push.New(url, job).
		Gatherer(m.registry).
		Grouping("instance", "aura").
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: push to %s: %w", ErrExport, url, err)
	}
	return nil
}

func (m *Manager) active() bool {
	return m != nil && m.enabled
}

// Default returns the process-wide manager.
func Default() *Manager { return globalManager }

// GetRegistry returns the custom Prometheus registry used by the default manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// RecordCycle records a cycle on the default manager.
func RecordCycle(outcome string, d time.Duration) { globalManager.RecordCycle(outcome, d) }

// RecordGatewayError records a gateway failure on the default manager.
func RecordGatewayError(kind string) { globalManager.RecordGatewayError(kind) }

// RecordStoreError records a store failure on the default manager.
func RecordStoreError(op string) { globalManager.RecordStoreError(op) }
