package broadcast

import (
	"log/slog"

	"github.com/pscheid92/dashpulse/internal/protocol"
)

// Teardown reasons recorded on the connections_closed_total metric.
const (
	reasonClosed = "closed"
	reasonError  = "error"
	reasonStale  = "stale"
)

const (
	msgInvalidFrame   = "Binary frames must contain UTF-8 encoded JSON"
	msgInvalidMessage = "Malformed or unsupported message"
)

func (b *Broadcaster) handleOpen(c openCmd) {
	now := b.clock.Now()
	conn := b.registry.add(c.peer, now)
	b.syncHeartbeat()
	b.updateGauges()

	b.send(conn, protocol.NewHello(conn.id, now))
	conn.state = stateActive
	c.reply <- conn.id

	slog.Debug("Client connected", "client_id", conn.id, "total_clients", b.registry.len())
}

func (b *Broadcaster) handleReceive(c receiveCmd) {
	conn, ok := b.registry.get(c.clientID)
	if !ok || conn.state != stateActive {
		return
	}

	now := b.clock.Now()
	b.registry.touch(conn.id, now)

	text, ok := protocol.NormalizeFrame(c.kind, c.data)
	if !ok {
		b.metrics.MessagesReceived.WithLabelValues("invalid").Inc()
		b.sendError(conn, protocol.CodeInvalidMessage, msgInvalidFrame)
		return
	}

	msg, err := protocol.ParseClientMessage(text, b.opts.MaxMessageLength)
	if err != nil {
		b.metrics.MessagesReceived.WithLabelValues("invalid").Inc()
		slog.Debug("Rejected client message", "client_id", conn.id, "error", err)
		b.sendError(conn, protocol.CodeInvalidMessage, msgInvalidMessage)
		return
	}
	b.metrics.MessagesReceived.WithLabelValues(string(msg.Type)).Inc()

	switch msg.Type {
	case protocol.TypePing:
		b.send(conn, protocol.NewPong(now))
	case protocol.TypeSubscribe:
		b.subscribe(conn, msg.DashboardID)
	case protocol.TypeUnsubscribe:
		if msg.LeaveAll() {
			b.unsubscribeAll(conn)
		} else {
			b.unsubscribe(conn, msg.DashboardID)
		}
	}
}

// teardown removes the connection from every room and the registry, tells the
// remaining room members, and closes the transport. Unknown ids are a no-op, which
// makes racing close and eviction paths harmless.
func (b *Broadcaster) teardown(clientID, reason string) {
	conn, ok := b.registry.get(clientID)
	if !ok {
		return
	}
	conn.state = stateClosing

	_, departures, _ := b.registry.remove(clientID)
	for _, d := range departures {
		if d.remaining > 0 {
			b.announce(d.dashboardID, protocol.PresenceLeft, clientID)
		}
	}

	closePeer(conn)
	conn.state = stateClosed

	b.syncHeartbeat()
	b.updateGauges()
	b.metrics.Evictions.WithLabelValues(reason).Inc()

	slog.Debug("Client disconnected",
		"client_id", clientID,
		"reason", reason,
		"rooms_left", len(departures),
		"remaining_clients", b.registry.len(),
	)
}

// send encodes a server frame and delivers it to one connection.
func (b *Broadcaster) send(conn *connection, frame any) {
	data, err := protocol.Encode(frame)
	if err != nil {
		slog.Error("Failed to encode server frame", "client_id", conn.id, "error", err)
		return
	}
	b.deliver(conn, data)
}

func (b *Broadcaster) sendError(conn *connection, code, message string) {
	b.metrics.ProtocolErrors.WithLabelValues(code).Inc()
	b.send(conn, protocol.NewError(code, message, b.clock.Now()))
}

// deliver hands data to the peer. Failures and panics stay inside this call so one
// bad peer cannot interrupt a fan-out or a heartbeat sweep.
func (b *Broadcaster) deliver(conn *connection, data []byte) {
	if conn.state >= stateClosing {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Peer send panicked", "client_id", conn.id, "panic", r)
			b.metrics.DeliveryFailures.Inc()
		}
	}()

	if err := conn.peer.Send(data); err != nil {
		slog.Debug("Delivery failed", "client_id", conn.id, "error", err)
		b.metrics.DeliveryFailures.Inc()
		return
	}
	b.metrics.Deliveries.Inc()
}

func closePeer(conn *connection) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Peer close panicked", "client_id", conn.id, "panic", r)
		}
	}()

	if err := conn.peer.Close(); err != nil {
		slog.Debug("Peer close failed", "client_id", conn.id, "error", err)
	}
}
