package metrics

import "github.com/prometheus/client_golang/prometheus"

// Publish outcomes recorded on PublishesTotal.
const (
	PublishAccepted         = "accepted"
	PublishInvalidDashboard = "invalid_dashboard"
	PublishMissingActor     = "missing_actor"
	PublishInvalidEvent     = "invalid_event"
	PublishUnserializable   = "unserializable"
	PublishPayloadTooLarge  = "payload_too_large"
	PublishQueueFull        = "queue_full"
	PublishPanic            = "panic"
)

// BroadcasterMetrics holds Prometheus metrics for the room broadcaster actor.
type BroadcasterMetrics struct {
	ActiveConnections prometheus.Gauge
	ActiveRooms       prometheus.Gauge
	HeartbeatActive   prometheus.Gauge
	CommandQueueDepth prometheus.Gauge

	MessagesReceived *prometheus.CounterVec
	ProtocolErrors   *prometheus.CounterVec
	PublishesTotal   *prometheus.CounterVec
	Evictions        *prometheus.CounterVec

	Deliveries       prometheus.Counter
	DeliveryFailures prometheus.Counter
	HeartbeatSweeps  prometheus.Counter
	PanicsRecovered  prometheus.Counter

	FanOutSize prometheus.Histogram
}

// NewBroadcasterMetrics creates and registers broadcaster metrics on the given registry.
func NewBroadcasterMetrics(reg prometheus.Registerer) *BroadcasterMetrics {
	m := &BroadcasterMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcaster",
			Name:      "active_connections",
			Help:      "Number of registered dashboard connections.",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcaster",
			Name:      "active_rooms",
			Help:      "Number of dashboards with at least one subscriber.",
		}),
		HeartbeatActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcaster",
			Name:      "heartbeat_active",
			Help:      "Whether the heartbeat ticker is running (1) or idle (0).",
		}),
		CommandQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcaster",
			Name:      "command_queue_depth",
			Help:      "Commands waiting in the broadcaster inbox, sampled on each heartbeat.",
		}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcaster",
			Name:      "messages_received_total",
			Help:      "Inbound client messages, by message type.",
		}, []string{"type"}),
		ProtocolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcaster",
			Name:      "protocol_errors_total",
			Help:      "Error frames sent to clients, by code.",
		}, []string{"code"}),
		PublishesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcaster",
			Name:      "publishes_total",
			Help:      "Dashboard events handed to the broadcaster, by outcome.",
		}, []string{"outcome"}),
		Evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcaster",
			Name:      "connections_closed_total",
			Help:      "Connections torn down, by reason.",
		}, []string{"reason"}),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcaster",
			Name:      "deliveries_total",
			Help:      "Frames handed to connection writers.",
		}),
		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcaster",
			Name:      "delivery_failures_total",
			Help:      "Frames dropped because the peer was gone or its buffer was full.",
		}),
		HeartbeatSweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcaster",
			Name:      "heartbeat_sweeps_total",
			Help:      "Heartbeat ticks processed.",
		}),
		PanicsRecovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcaster",
			Name:      "panics_recovered_total",
			Help:      "Panics recovered at the broadcaster boundary.",
		}),
		FanOutSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "broadcaster",
			Name:      "fanout_recipients",
			Help:      "Recipients per published dashboard event.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		}),
	}

	reg.MustRegister(
		m.ActiveConnections, m.ActiveRooms, m.HeartbeatActive, m.CommandQueueDepth,
		m.MessagesReceived, m.ProtocolErrors, m.PublishesTotal, m.Evictions,
		m.Deliveries, m.DeliveryFailures, m.HeartbeatSweeps, m.PanicsRecovered,
		m.FanOutSize,
	)
	return m
}
