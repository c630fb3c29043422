// Package ingest decodes dashboard events arriving from outside the process (HTTP,
// Redis pub/sub, Postgres NOTIFY) and hands them to the local broadcaster.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pscheid92/dashpulse/internal/adapter/metrics"
	"github.com/pscheid92/dashpulse/internal/domain"
)

// Sources recorded on ingest metrics.
const (
	SourceHTTP     = "http"
	SourceRedis    = "redis"
	SourcePostgres = "postgres"
)

var ErrInvalidEnvelope = errors.New("invalid ingest envelope")

// Envelope is the JSON form of a domain.DashboardEvent on every ingest path.
type Envelope struct {
	DashboardID     string          `json:"dashboardId"`
	ActorID         string          `json:"actorId"`
	Event           string          `json:"event"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	ExcludeClientID string          `json:"excludeClientId,omitempty"`
}

// Decode parses an envelope. It checks only the shape; the broadcaster applies the
// dashboard id, actor and size rules when the event is published.
func Decode(data []byte) (domain.DashboardEvent, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return domain.DashboardEvent{}, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}
	if env.DashboardID == "" || env.Event == "" {
		return domain.DashboardEvent{}, fmt.Errorf("%w: dashboardId and event are required", ErrInvalidEnvelope)
	}
	return env.DashboardEvent(), nil
}

// DashboardEvent converts the envelope into a domain event.
func (e Envelope) DashboardEvent() domain.DashboardEvent {
	event := domain.DashboardEvent{
		DashboardID:     e.DashboardID,
		ActorID:         e.ActorID,
		Event:           domain.EventType(e.Event),
		ExcludeClientID: e.ExcludeClientID,
	}
	// An absent or null payload must stay a nil interface so it becomes {}.
	if len(e.Payload) > 0 && !bytes.Equal(bytes.TrimSpace(e.Payload), []byte("null")) {
		event.Payload = e.Payload
	}
	return event
}

// Encode serializes an event for producers writing to Redis or Postgres.
func Encode(event domain.DashboardEvent) ([]byte, error) {
	env := Envelope{
		DashboardID:     event.DashboardID,
		ActorID:         event.ActorID,
		Event:           string(event.Event),
		ExcludeClientID: event.ExcludeClientID,
	}
	if event.Payload != nil {
		payload, err := json.Marshal(event.Payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrUnserializable, err)
		}
		env.Payload = payload
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// Dispatcher decodes raw messages from one source and publishes them.
type Dispatcher struct {
	publisher domain.EventPublisher
	metrics   *metrics.IngestMetrics
	source    string
}

func NewDispatcher(publisher domain.EventPublisher, m *metrics.IngestMetrics, source string) *Dispatcher {
	return &Dispatcher{publisher: publisher, metrics: m, source: source}
}

// Dispatch publishes one raw envelope. Malformed input is logged, counted and dropped.
func (d *Dispatcher) Dispatch(data []byte) {
	event, err := Decode(data)
	if err != nil {
		d.metrics.Rejected.WithLabelValues(d.source).Inc()
		slog.Warn("Dropping malformed dashboard event", "source", d.source, "error", err)
		return
	}
	d.Publish(event)
}

// Publish forwards an already decoded event.
func (d *Dispatcher) Publish(event domain.DashboardEvent) {
	d.metrics.Received.WithLabelValues(d.source).Inc()
	d.publisher.Publish(event)
}

// Reconnected records a listener reconnect attempt for this source.
func (d *Dispatcher) Reconnected() {
	d.metrics.Reconnects.WithLabelValues(d.source).Inc()
}

func (d *Dispatcher) Source() string {
	return d.source
}
