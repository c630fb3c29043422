package broadcast

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/pscheid92/dashpulse/internal/protocol"
)

// subscribe joins conn to the room. A repeated subscribe is acknowledged again with
// the current member count but does not announce presence a second time.
func (b *Broadcaster) subscribe(conn *connection, dashboardID string) {
	result, err := b.registry.join(conn, dashboardID)
	if errors.Is(err, errMaxRoomsReached) {
		slog.Debug("Subscribe rejected: room cap reached", "client_id", conn.id, "max_rooms", b.opts.MaxRoomsPerClient)
		b.sendError(conn, protocol.CodeMaxRoomsReached,
			fmt.Sprintf("A connection may subscribe to at most %d dashboards", b.opts.MaxRoomsPerClient))
		return
	}

	b.send(conn, protocol.NewSubscribed(dashboardID, result.members, b.clock.Now()))
	if result.alreadyMember {
		return
	}

	b.announce(dashboardID, protocol.PresenceJoined, conn.id)
	b.updateGauges()
	slog.Debug("Client subscribed", "client_id", conn.id, "dashboard_id", dashboardID, "members", result.members)
}

// unsubscribe leaves one room. Leaving a room that was not joined is a no-op.
func (b *Broadcaster) unsubscribe(conn *connection, dashboardID string) {
	remaining, ok := b.registry.leave(conn, dashboardID)
	if !ok {
		return
	}

	b.send(conn, protocol.NewUnsubscribed(dashboardID, remaining, b.clock.Now()))
	if remaining > 0 {
		b.announce(dashboardID, protocol.PresenceLeft, conn.id)
	}
	b.updateGauges()
	slog.Debug("Client unsubscribed", "client_id", conn.id, "dashboard_id", dashboardID, "members", remaining)
}

func (b *Broadcaster) unsubscribeAll(conn *connection) {
	for _, dashboardID := range conn.joinedRooms() {
		b.unsubscribe(conn, dashboardID)
	}
}

// announce sends a presence frame about clientID to every other member of the room.
func (b *Broadcaster) announce(dashboardID string, action protocol.PresenceAction, clientID string) {
	members := b.registry.members(dashboardID)
	if len(members) == 0 {
		return
	}

	data, err := protocol.Encode(protocol.NewPresence(action, dashboardID, clientID, b.clock.Now()))
	if err != nil {
		slog.Error("Failed to encode presence frame", "dashboard_id", dashboardID, "error", err)
		return
	}

	for _, id := range members {
		if id == clientID {
			continue
		}
		if member, ok := b.registry.get(id); ok {
			b.deliver(member, data)
		}
	}
}
