package websocket

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/dashpulse/internal/adapter/metrics"
	"github.com/pscheid92/dashpulse/internal/broadcast"
	"github.com/pscheid92/dashpulse/internal/protocol"
)

// readLimitFactor sizes the transport read limit relative to the protocol limit.
// gorilla drops the connection when the read limit is hit, while oversized protocol
// messages only earn an error frame, so the transport limit sits well above it.
const readLimitFactor = 4

// Hub is the connection lifecycle API the handler drives.
type Hub interface {
	Open(peer broadcast.Peer) (string, error)
	Receive(clientID string, kind protocol.FrameKind, data []byte)
	Touch(clientID string)
	Close(clientID string, cause error)
}

type Config struct {
	AllowedOrigins   []string
	IsDevelopment    bool
	MaxMessageLength int
}

// Handler upgrades HTTP requests to WebSocket connections and pumps frames between
// the socket and the hub.
type Handler struct {
	hub       Hub
	limits    *ConnectionLimits
	metrics   *metrics.WebSocketMetrics
	clock     clockwork.Clock
	upgrader  websocket.Upgrader
	readLimit int64
}

func NewHandler(hub Hub, limits *ConnectionLimits, cfg Config, m *metrics.WebSocketMetrics, clock clockwork.Clock) *Handler {
	maxMessageLength := cfg.MaxMessageLength
	if maxMessageLength <= 0 {
		maxMessageLength = protocol.DefaultMaxMessageLength
	}

	return &Handler{
		hub:     hub,
		limits:  limits,
		metrics: m,
		clock:   clock,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     NewCheckOrigin(cfg.AllowedOrigins, cfg.IsDevelopment),
		},
		readLimit: int64(maxMessageLength * readLimitFactor),
	}
}

// Handle serves GET /ws.
func (h *Handler) Handle(c echo.Context) error {
	ip := c.RealIP()

	ok, reason := h.limits.Acquire(ip)
	if !ok {
		h.metrics.RejectedUpgrades.WithLabelValues(string(reason)).Inc()
		slog.Warn("WebSocket connection rejected", "ip", ip, "reason", reason)
		status := http.StatusServiceUnavailable
		if reason == LimitReasonRate || reason == LimitReasonPerIP {
			status = http.StatusTooManyRequests
		}
		return c.JSON(status, map[string]string{"error": "connection limit reached", "reason": string(reason)})
	}
	defer h.limits.Release(ip)

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		h.metrics.RejectedUpgrades.WithLabelValues("upgrade_failed").Inc()
		slog.Debug("WebSocket upgrade failed", "ip", ip, "error", err)
		return nil
	}

	h.metrics.OpenSockets.Inc()
	defer h.metrics.OpenSockets.Dec()

	writer := newClientWriter(conn, h.clock, h.metrics)
	clientID, err := h.hub.Open(writer)
	if err != nil {
		slog.Warn("Broadcaster refused connection", "ip", ip, "error", err)
		writer.stopGraceful(websocket.CloseTryAgainLater, "server unavailable")
		writer.wait()
		return nil
	}

	h.readLoop(conn, writer, clientID)
	writer.wait()
	return nil
}

// readLoop feeds inbound frames to the hub until the socket fails or closes, then
// reports the close exactly once.
func (h *Handler) readLoop(conn *websocket.Conn, writer *clientWriter, clientID string) {
	conn.SetReadLimit(h.readLimit)
	h.extendReadDeadline(conn)
	conn.SetPongHandler(func(string) error {
		h.extendReadDeadline(conn)
		h.hub.Touch(clientID)
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			h.hub.Close(clientID, closeCause(err))
			_ = writer.Close()
			return
		}
		h.extendReadDeadline(conn)

		switch msgType {
		case websocket.TextMessage:
			h.hub.Receive(clientID, protocol.FrameText, data)
		case websocket.BinaryMessage:
			h.hub.Receive(clientID, protocol.FrameBinary, data)
		}
	}
}

func (h *Handler) extendReadDeadline(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(h.clock.Now().Add(pongDeadline))
}

// closeCause returns nil for an orderly close initiated by either side.
func closeCause(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return nil
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}
