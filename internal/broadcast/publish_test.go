package broadcast

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/dashpulse/internal/adapter/metrics"
	"github.com/pscheid92/dashpulse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish_ExcludesActorConnection(t *testing.T) {
	env := newTestBroadcaster(t, Options{}, nil)
	peers := make([]*fakePeer, 3)
	ids := make([]string, 3)
	for i := range peers {
		peers[i], ids[i] = env.connect(t)
		env.subscribe(t, peers[i], ids[i], "dash-1")
	}

	env.b.Publish(domain.DashboardEvent{
		DashboardID:     "dash-1",
		ActorID:         "user-1",
		Event:           domain.EventWidgetUpdate,
		Payload:         map[string]any{"widgetId": "w1"},
		ExcludeClientID: ids[1],
	})
	env.flush(t)

	assert.Equal(t, 1, peers[0].count(t, "broadcast"))
	assert.Zero(t, peers[1].count(t, "broadcast"))
	assert.Equal(t, 1, peers[2].count(t, "broadcast"))
	assert.InDelta(t, 1, testutil.ToFloat64(env.metrics.PublishesTotal.WithLabelValues(metrics.PublishAccepted)), 0)
}

func TestPublish_OnlyTargetRoom(t *testing.T) {
	env := newTestBroadcaster(t, Options{}, nil)
	inRoom, inID := env.connect(t)
	elsewhere, elsewhereID := env.connect(t)
	env.subscribe(t, inRoom, inID, "dash-1")
	env.subscribe(t, elsewhere, elsewhereID, "dash-2")

	env.b.PublishDashboardEvent("dash-1", "user-1", domain.EventPageSwitch, map[string]any{"page": 2}, "")
	env.flush(t)

	assert.Equal(t, 1, inRoom.count(t, "broadcast"))
	assert.Zero(t, elsewhere.count(t, "broadcast"))
}

func TestPublish_NoSubscribersIsNoop(t *testing.T) {
	env := newTestBroadcaster(t, Options{}, nil)

	env.b.PublishDashboardEvent("empty", "user-1", domain.EventCursorMove, nil, "")
	env.flush(t)

	assert.Zero(t, testutil.ToFloat64(env.metrics.Deliveries))
	assert.InDelta(t, 1, testutil.ToFloat64(env.metrics.PublishesTotal.WithLabelValues(metrics.PublishAccepted)), 0)
}

func TestPublish_NilPayloadBecomesEmptyObject(t *testing.T) {
	env := newTestBroadcaster(t, Options{}, nil)
	peer, id := env.connect(t)
	env.subscribe(t, peer, id, "dash-1")

	env.b.PublishDashboardEvent("dash-1", "user-1", domain.EventCursorMove, nil, "")
	env.flush(t)

	msgs := peer.ofType(t, "broadcast")
	require.Len(t, msgs, 1)
	assert.Equal(t, map[string]any{}, msgs[0]["payload"])
}

func TestPublish_DropsInvalidEvents(t *testing.T) {
	tests := []struct {
		name    string
		event   domain.DashboardEvent
		outcome string
	}{
		{
			name:    "invalid dashboard id",
			event:   domain.DashboardEvent{DashboardID: "../dash", ActorID: "u", Event: domain.EventWidgetUpdate},
			outcome: metrics.PublishInvalidDashboard,
		},
		{
			name:    "empty dashboard id",
			event:   domain.DashboardEvent{ActorID: "u", Event: domain.EventWidgetUpdate},
			outcome: metrics.PublishInvalidDashboard,
		},
		{
			name:    "missing actor",
			event:   domain.DashboardEvent{DashboardID: "dash-1", Event: domain.EventWidgetUpdate},
			outcome: metrics.PublishMissingActor,
		},
		{
			name:    "unknown event",
			event:   domain.DashboardEvent{DashboardID: "dash-1", ActorID: "u", Event: "widget:delete"},
			outcome: metrics.PublishInvalidEvent,
		},
		{
			name:    "unserializable payload",
			event:   domain.DashboardEvent{DashboardID: "dash-1", ActorID: "u", Event: domain.EventWidgetUpdate, Payload: make(chan int)},
			outcome: metrics.PublishUnserializable,
		},
		{
			name: "oversized payload",
			event: domain.DashboardEvent{
				DashboardID: "dash-1", ActorID: "u", Event: domain.EventWidgetUpdate,
				Payload: map[string]string{"blob": strings.Repeat("x", 25*1024)},
			},
			outcome: metrics.PublishPayloadTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestBroadcaster(t, Options{}, nil)
			peer, id := env.connect(t)
			env.subscribe(t, peer, id, "dash-1")

			assert.NotPanics(t, func() { env.b.Publish(tt.event) })
			env.flush(t)

			assert.Zero(t, peer.count(t, "broadcast"))
			assert.InDelta(t, 1, testutil.ToFloat64(env.metrics.PublishesTotal.WithLabelValues(tt.outcome)), 0)
		})
	}
}

func TestPublish_PayloadCeilingIsInclusive(t *testing.T) {
	env := newTestBroadcaster(t, Options{MaxPayloadBytes: 32}, nil)
	peer, id := env.connect(t)
	env.subscribe(t, peer, id, "dash-1")

	// {"k":"<24 x>"} serializes to exactly 32 bytes.
	env.b.PublishDashboardEvent("dash-1", "u", domain.EventWidgetUpdate, map[string]string{"k": strings.Repeat("x", 24)}, "")
	env.b.PublishDashboardEvent("dash-1", "u", domain.EventWidgetUpdate, map[string]string{"k": strings.Repeat("x", 25)}, "")
	env.flush(t)

	assert.Equal(t, 1, peer.count(t, "broadcast"))
}

func TestPublish_PayloadIsSnapshotAtCallTime(t *testing.T) {
	env := newTestBroadcaster(t, Options{}, nil)
	peer, id := env.connect(t)
	env.subscribe(t, peer, id, "dash-1")

	payload := map[string]any{"version": 1}
	env.b.PublishDashboardEvent("dash-1", "u", domain.EventWidgetUpdate, payload, "")
	payload["version"] = 2
	env.flush(t)

	msgs := peer.ofType(t, "broadcast")
	require.Len(t, msgs, 1)
	assert.Equal(t, map[string]any{"version": float64(1)}, msgs[0]["payload"])
}

func TestPublish_FullInboxDropsWithoutBlocking(t *testing.T) {
	env := newTestBroadcaster(t, Options{InboxSize: 1}, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 1000 {
			env.b.PublishDashboardEvent("dash-1", "u", domain.EventCursorMove, nil, "")
		}
	}()

	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("Publish blocked on a full inbox")
	}

	accepted := testutil.ToFloat64(env.metrics.PublishesTotal.WithLabelValues(metrics.PublishAccepted))
	dropped := testutil.ToFloat64(env.metrics.PublishesTotal.WithLabelValues(metrics.PublishQueueFull))
	assert.InDelta(t, 1000, accepted+dropped, 0)
}
