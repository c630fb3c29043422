package metrics

import "github.com/prometheus/client_golang/prometheus"

// IngestMetrics counts dashboard events arriving from outside the process.
type IngestMetrics struct {
	Received   *prometheus.CounterVec
	Rejected   *prometheus.CounterVec
	Reconnects *prometheus.CounterVec

	// BreakerState is 0 closed, 1 half-open, 2 open, by component.
	BreakerState *prometheus.GaugeVec
}

// NewIngestMetrics creates and registers ingest metrics on the given registry.
func NewIngestMetrics(reg prometheus.Registerer) *IngestMetrics {
	m := &IngestMetrics{
		Received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "events_received_total",
			Help:      "Dashboard events received, by source.",
		}, []string{"source"}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "events_rejected_total",
			Help:      "Dashboard events that failed to decode, by source.",
		}, []string{"source"}),
		Reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "reconnects_total",
			Help:      "Listener reconnect attempts, by source.",
		}, []string{"source"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open), by component.",
		}, []string{"component"}),
	}

	reg.MustRegister(m.Received, m.Rejected, m.Reconnects, m.BreakerState)
	return m
}
