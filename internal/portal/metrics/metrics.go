package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for portal calls and batch workflows.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Round-trip latency of portal calls by operation
	CallLatency *prometheus.HistogramVec

	// Portal call results by operation and outcome ("ok", "transport", "circuit_open", "http_status")
	CallOutcome *prometheus.CounterVec

	// Token acquisitions by result
	TokenRefresh *prometheus.CounterVec

	// Terminal batch states by operation
	BatchOutcome *prometheus.CounterVec

	// Records per batch
	BatchSize prometheus.Histogram

	// Reference table cache lookups
	TableCache *prometheus.CounterVec

	// Circuit breaker state, 1 = open
	CircuitOpen prometheus.Gauge
}

// New creates a new Metrics instance with all portal metrics registered.
func New() *Metrics {
	return &Metrics{
		CallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "alloggiati_portal_call_duration_seconds",
			Help:    "Duration of portal SOAP calls by operation",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),

		CallOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "alloggiati_portal_calls_total",
			Help: "Total portal SOAP calls by operation and outcome",
		}, []string{"operation", "outcome"}),

		TokenRefresh: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "alloggiati_token_refresh_total",
			Help: "Total token acquisitions by result",
		}, []string{"result"}),

		BatchOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "alloggiati_batch_outcomes_total",
			Help: "Total batch workflows by operation and terminal state",
		}, []string{"operation", "state"}),

		BatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "alloggiati_batch_size",
			Help:    "Number of guest records per batch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 1000},
		}),

		TableCache: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "alloggiati_table_cache_lookups_total",
			Help: "Reference table cache lookups by table and result",
		}, []string{"table", "result"}),

		CircuitOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "alloggiati_portal_circuit_open",
			Help: "Whether the portal circuit breaker is open (1) or closed (0)",
		}),
	}
}

// ObserveCall records the duration and outcome of a portal call.
func (m *Metrics) ObserveCall(operation, outcome string, d time.Duration) {
	if m != nil {
		m.CallLatency.WithLabelValues(operation).Observe(d.Seconds())
		m.CallOutcome.WithLabelValues(operation, outcome).Inc()
	}
}

func (m *Metrics) IncrementTokenRefresh(result string) {
	if m != nil {
		m.TokenRefresh.WithLabelValues(result).Inc()
	}
}

// IncrementBatchOutcome records the terminal state of a workflow run.
func (m *Metrics) IncrementBatchOutcome(operation, state string) {
	if m != nil {
		m.BatchOutcome.WithLabelValues(operation, state).Inc()
	}
}

func (m *Metrics) ObserveBatchSize(n int) {
	if m != nil {
		m.BatchSize.Observe(float64(n))
	}
}

// IncrementTableCache records a cache "hit" or "miss" for a table.
func (m *Metrics) IncrementTableCache(table, result string) {
	if m != nil {
		m.TableCache.WithLabelValues(table, result).Inc()
	}
}

func (m *Metrics) SetCircuitOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitOpen.Set(1)
		return
	}
	m.CircuitOpen.Set(0)
}
