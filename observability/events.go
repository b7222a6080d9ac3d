package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"tripartite/core/events"
	"tripartite/observability/metrics"
)

type eventMetrics struct {
	emitted *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking emitted registry events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tripartite",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of registry events segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.emitted)
	})
	return eventRegistry
}

// RecordEvent increments the counter for the supplied event type.
func (m *eventMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		normalized = "unknown"
	}
	m.emitted.WithLabelValues(normalized).Inc()
}

// EventMetricsEmitter counts every event passing through it and feeds payout
// and status events into the arbitration metrics.
type EventMetricsEmitter struct{}

// Emit implements events.Emitter.
func (EventMetricsEmitter) Emit(evt events.Event) {
	payload := events.Payload(evt)
	if payload == nil {
		return
	}
	Events().RecordEvent(payload.Type)
	switch payload.Type {
	case "arbitration.payout":
		amount, _ := parseAmount(payload.Attr("amount"))
		metrics.Arbitration().ObservePayout(payload.Attr("role"), amount)
	case "arbitration.status_changed":
		metrics.Arbitration().ObserveStatus(payload.Attr("to"))
	case "arbitration.agreement_created":
		metrics.Arbitration().ObserveStatus("binding")
	}
}
