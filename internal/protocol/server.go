package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pscheid92/dashpulse/internal/domain"
)

// ProtocolVersion is stamped on every server frame.
const ProtocolVersion = 1

// Error codes carried by error frames.
const (
	CodeInvalidMessage  = "INVALID_MESSAGE"
	CodeMaxRoomsReached = "MAX_ROOMS_REACHED"
)

// PresenceAction is the membership change announced by a presence frame.
type PresenceAction string

const (
	PresenceJoined PresenceAction = "joined"
	PresenceLeft   PresenceAction = "left"
)

type Hello struct {
	Type            string `json:"type"`
	ClientID        string `json:"clientId"`
	Timestamp       int64  `json:"timestamp"`
	ProtocolVersion int    `json:"protocolVersion"`
}

type Pong struct {
	Type            string `json:"type"`
	Timestamp       int64  `json:"timestamp"`
	ProtocolVersion int    `json:"protocolVersion"`
}

// Membership acknowledges a subscribe or unsubscribe with the room's member count.
type Membership struct {
	Type            string `json:"type"`
	DashboardID     string `json:"dashboardId"`
	Clients         int    `json:"clients"`
	Timestamp       int64  `json:"timestamp"`
	ProtocolVersion int    `json:"protocolVersion"`
}

type Presence struct {
	Type            string         `json:"type"`
	Action          PresenceAction `json:"action"`
	DashboardID     string         `json:"dashboardId"`
	ClientID        string         `json:"clientId"`
	Timestamp       int64          `json:"timestamp"`
	ProtocolVersion int            `json:"protocolVersion"`
}

type Broadcast struct {
	Type            string           `json:"type"`
	Event           domain.EventType `json:"event"`
	DashboardID     string           `json:"dashboardId"`
	ActorID         string           `json:"actorId"`
	Payload         json.RawMessage  `json:"payload"`
	Timestamp       int64            `json:"timestamp"`
	ProtocolVersion int              `json:"protocolVersion"`
}

type Error struct {
	Type            string `json:"type"`
	Code            string `json:"code"`
	Message         string `json:"message"`
	Timestamp       int64  `json:"timestamp"`
	ProtocolVersion int    `json:"protocolVersion"`
}

func NewHello(clientID string, now time.Time) Hello {
	return Hello{Type: "hello", ClientID: clientID, Timestamp: now.UnixMilli(), ProtocolVersion: ProtocolVersion}
}

func NewPong(now time.Time) Pong {
	return Pong{Type: "pong", Timestamp: now.UnixMilli(), ProtocolVersion: ProtocolVersion}
}

func NewSubscribed(dashboardID string, clients int, now time.Time) Membership {
	return newMembership("subscribed", dashboardID, clients, now)
}

func NewUnsubscribed(dashboardID string, clients int, now time.Time) Membership {
	return newMembership("unsubscribed", dashboardID, clients, now)
}

func newMembership(msgType, dashboardID string, clients int, now time.Time) Membership {
	return Membership{
		Type:            msgType,
		DashboardID:     dashboardID,
		Clients:         clients,
		Timestamp:       now.UnixMilli(),
		ProtocolVersion: ProtocolVersion,
	}
}

func NewPresence(action PresenceAction, dashboardID, clientID string, now time.Time) Presence {
	return Presence{
		Type:            "presence",
		Action:          action,
		DashboardID:     dashboardID,
		ClientID:        clientID,
		Timestamp:       now.UnixMilli(),
		ProtocolVersion: ProtocolVersion,
	}
}

// NewBroadcast wraps an already serialized payload. The caller owns validation of
// dashboardID, actorID and the payload size.
func NewBroadcast(event domain.EventType, dashboardID, actorID string, payload json.RawMessage, now time.Time) Broadcast {
	return Broadcast{
		Type:            "broadcast",
		Event:           event,
		DashboardID:     dashboardID,
		ActorID:         actorID,
		Payload:         payload,
		Timestamp:       now.UnixMilli(),
		ProtocolVersion: ProtocolVersion,
	}
}

func NewError(code, message string, now time.Time) Error {
	return Error{
		Type:            "error",
		Code:            code,
		Message:         message,
		Timestamp:       now.UnixMilli(),
		ProtocolVersion: ProtocolVersion,
	}
}

// Encode serializes a server frame.
func Encode(frame any) ([]byte, error) {
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", frame, err)
	}
	return data, nil
}
