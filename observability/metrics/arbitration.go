package metrics

import (
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ArbitrationMetrics tracks registry operations and value flows.
type ArbitrationMetrics struct {
	operations       *prometheus.CounterVec
	latency          *prometheus.HistogramVec
	payouts          *prometheus.CounterVec
	payoutValue      *prometheus.CounterVec
	transferFailures prometheus.Counter
	eventLogFailures prometheus.Counter
	agreements       *prometheus.GaugeVec
}

var (
	arbitrationOnce     sync.Once
	arbitrationRegistry *ArbitrationMetrics
)

// Arbitration returns the lazily registered arbitration metrics.
func Arbitration() *ArbitrationMetrics {
	arbitrationOnce.Do(func() {
		arbitrationRegistry = &ArbitrationMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tripartite",
				Subsystem: "arbitration",
				Name:      "operations_total",
				Help:      "Registry operations by name and outcome kind.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "tripartite",
				Subsystem: "arbitration",
				Name:      "operation_duration_seconds",
				Help:      "Latency of registry operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tripartite",
				Subsystem: "arbitration",
				Name:      "payouts_total",
				Help:      "Payouts made from custody by recipient role.",
			}, []string{"role"}),
			payoutValue: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tripartite",
				Subsystem: "arbitration",
				Name:      "payout_value_total",
				Help:      "Value paid out of custody by recipient role, in base units.",
			}, []string{"role"}),
			transferFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "tripartite",
				Subsystem: "arbitration",
				Name:      "transfer_failures_total",
				Help:      "Operations aborted because the ledger rejected a movement.",
			}),
			eventLogFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "tripartite",
				Subsystem: "arbitration",
				Name:      "eventlog_failures_total",
				Help:      "Emitted events the event log could not persist.",
			}),
			agreements: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "tripartite",
				Subsystem: "arbitration",
				Name:      "status_transitions",
				Help:      "Agreements that entered each status since start.",
			}, []string{"status"}),
		}
		prometheus.MustRegister(
			arbitrationRegistry.operations,
			arbitrationRegistry.latency,
			arbitrationRegistry.payouts,
			arbitrationRegistry.payoutValue,
			arbitrationRegistry.transferFailures,
			arbitrationRegistry.eventLogFailures,
			arbitrationRegistry.agreements,
		)
	})
	return arbitrationRegistry
}

// ObserveOperation records one operation with its outcome kind ("ok" on
// success) and duration.
func (m *ArbitrationMetrics) ObserveOperation(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	if outcome == "" {
		outcome = "ok"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(elapsed.Seconds())
	if outcome == "transfer" {
		m.transferFailures.Inc()
	}
}

// ObservePayout records a payout to role. Values beyond float precision are
// approximated.
func (m *ArbitrationMetrics) ObservePayout(role string, amount *big.Int) {
	if m == nil {
		return
	}
	if role == "" {
		role = "unknown"
	}
	m.payouts.WithLabelValues(role).Inc()
	if amount != nil && amount.Sign() > 0 {
		value, _ := new(big.Float).SetInt(amount).Float64()
		m.payoutValue.WithLabelValues(role).Add(value)
	}
}

// ObserveStatus records an agreement entering status.
func (m *ArbitrationMetrics) ObserveStatus(status string) {
	if m == nil || status == "" {
		return
	}
	m.agreements.WithLabelValues(status).Inc()
}

// RecordEventLogFailure counts an event that was emitted but not persisted.
func (m *ArbitrationMetrics) RecordEventLogFailure() {
	if m == nil {
		return
	}
	m.eventLogFailures.Inc()
}
