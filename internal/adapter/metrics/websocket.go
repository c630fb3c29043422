package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebSocketMetrics holds Prometheus metrics for the WebSocket transport.
type WebSocketMetrics struct {
	OpenSockets        prometheus.Gauge
	RejectedUpgrades   *prometheus.CounterVec
	SendBufferOverflow prometheus.Counter
	WriteDuration      prometheus.Histogram
	PingFailures       prometheus.Counter
}

// NewWebSocketMetrics creates and registers WebSocket metrics on the given registry.
func NewWebSocketMetrics(reg prometheus.Registerer) *WebSocketMetrics {
	m := &WebSocketMetrics{
		OpenSockets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "open_sockets",
			Help:      "Number of upgraded WebSocket connections.",
		}),
		RejectedUpgrades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "rejected_upgrades_total",
			Help:      "Upgrade attempts refused before reaching the broadcaster, by reason.",
		}, []string{"reason"}),
		SendBufferOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "send_buffer_overflows_total",
			Help:      "Frames dropped because a connection's send buffer was full.",
		}),
		WriteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "write_duration_seconds",
			Help:      "Time spent writing a single frame to the socket.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}),
		PingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "ping_failures_total",
			Help:      "Transport ping frames that could not be written.",
		}),
	}

	reg.MustRegister(m.OpenSockets, m.RejectedUpgrades, m.SendBufferOverflow, m.WriteDuration, m.PingFailures)
	return m
}
