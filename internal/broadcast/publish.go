package broadcast

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pscheid92/dashpulse/internal/adapter/metrics"
	"github.com/pscheid92/dashpulse/internal/domain"
	"github.com/pscheid92/dashpulse/internal/protocol"
)

var emptyPayload = json.RawMessage(`{}`)

// Publish fans an event out to the dashboard's subscribers on a best-effort basis.
// It never blocks and never panics: invalid, oversized or undeliverable events are
// dropped and counted.
func (b *Broadcaster) Publish(event domain.DashboardEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Publish panic recovered", "panic", r)
			b.metrics.PanicsRecovered.Inc()
			b.metrics.PublishesTotal.WithLabelValues(metrics.PublishPanic).Inc()
		}
	}()

	frame, err := b.composeBroadcast(event)
	if err != nil {
		b.metrics.PublishesTotal.WithLabelValues(publishOutcome(err)).Inc()
		slog.Debug("Dropping dashboard event", "event", string(event.Event), "error", err)
		return
	}

	cmd := publishCmd{dashboardID: event.DashboardID, excludeID: event.ExcludeClientID, frame: frame}
	if !b.tryEnqueue(cmd) {
		b.metrics.PublishesTotal.WithLabelValues(metrics.PublishQueueFull).Inc()
		slog.Warn("Dropping dashboard event: broadcaster inbox full", "dashboard_id", event.DashboardID)
		return
	}
	b.metrics.PublishesTotal.WithLabelValues(metrics.PublishAccepted).Inc()
}

// PublishDashboardEvent is the argument-list form of Publish used by request handlers.
func (b *Broadcaster) PublishDashboardEvent(dashboardID, actorID string, event domain.EventType, payload any, excludeClientID string) {
	b.Publish(domain.DashboardEvent{
		DashboardID:     dashboardID,
		ActorID:         actorID,
		Event:           event,
		Payload:         payload,
		ExcludeClientID: excludeClientID,
	})
}

// composeBroadcast validates the event and returns the serialized broadcast frame.
// The payload is re-serialized, so later mutation by the caller cannot leak in.
func (b *Broadcaster) composeBroadcast(event domain.DashboardEvent) ([]byte, error) {
	if !protocol.IsValidDashboardID(event.DashboardID) {
		return nil, domain.ErrInvalidDashboardID
	}
	if event.ActorID == "" {
		return nil, domain.ErrMissingActor
	}
	if !event.Event.Valid() {
		return nil, domain.ErrInvalidEvent
	}

	payload, err := clonePayload(event.Payload)
	if err != nil {
		return nil, err
	}
	if len(payload) > b.opts.MaxPayloadBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", domain.ErrPayloadTooLarge, len(payload), b.opts.MaxPayloadBytes)
	}

	frame := protocol.NewBroadcast(event.Event, event.DashboardID, event.ActorID, payload, b.clock.Now())
	return protocol.Encode(frame)
}

func clonePayload(payload any) (json.RawMessage, error) {
	if payload == nil {
		return emptyPayload, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUnserializable, err)
	}
	return data, nil
}

func publishOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidDashboardID):
		return metrics.PublishInvalidDashboard
	case errors.Is(err, domain.ErrMissingActor):
		return metrics.PublishMissingActor
	case errors.Is(err, domain.ErrInvalidEvent):
		return metrics.PublishInvalidEvent
	case errors.Is(err, domain.ErrPayloadTooLarge):
		return metrics.PublishPayloadTooLarge
	default:
		return metrics.PublishUnserializable
	}
}

func (b *Broadcaster) handlePublish(c publishCmd) {
	members := b.registry.members(c.dashboardID)
	if len(members) == 0 {
		b.metrics.FanOutSize.Observe(0)
		return
	}

	recipients := 0
	for _, id := range members {
		if id == c.excludeID {
			continue
		}
		conn, ok := b.registry.get(id)
		if !ok {
			continue
		}
		b.deliver(conn, c.frame)
		recipients++
	}
	b.metrics.FanOutSize.Observe(float64(recipients))
}
