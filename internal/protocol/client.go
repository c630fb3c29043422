package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// DefaultMaxMessageLength bounds inbound frames before any parsing happens.
const DefaultMaxMessageLength = 16 * 1024

// ErrInvalidMessage is wrapped by every ParseClientMessage failure.
var ErrInvalidMessage = errors.New("invalid client message")

// MessageType is the closed set of client-to-server message types.
type MessageType string

const (
	TypePing        MessageType = "ping"
	TypeSubscribe   MessageType = "subscribe"
	TypeUnsubscribe MessageType = "unsubscribe"
)

// ClientMessage is a validated inbound message. DashboardID is empty for ping and
// for an unsubscribe that leaves every room.
type ClientMessage struct {
	Type        MessageType
	DashboardID string
}

// LeaveAll reports whether an unsubscribe targets every joined room.
func (m ClientMessage) LeaveAll() bool {
	return m.Type == TypeUnsubscribe && m.DashboardID == ""
}

// FrameKind distinguishes how the transport delivered a frame.
type FrameKind int

const (
	FrameText FrameKind = iota
	FrameBinary
)

// NormalizeFrame converts a transport frame to text. Binary frames are accepted only
// when they hold valid UTF-8.
func NormalizeFrame(kind FrameKind, data []byte) (string, bool) {
	switch kind {
	case FrameText:
		return string(data), true
	case FrameBinary:
		if !utf8.Valid(data) {
			return "", false
		}
		return string(data), true
	default:
		return "", false
	}
}

// ParseClientMessage validates text against the client protocol. Text longer than
// maxLength bytes is rejected without being parsed. A non-positive maxLength falls back
// to DefaultMaxMessageLength.
func ParseClientMessage(text string, maxLength int) (ClientMessage, error) {
	if maxLength <= 0 {
		maxLength = DefaultMaxMessageLength
	}
	if len(text) > maxLength {
		return ClientMessage{}, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrInvalidMessage, len(text), maxLength)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &fields); err != nil || fields == nil {
		return ClientMessage{}, fmt.Errorf("%w: not a JSON object", ErrInvalidMessage)
	}

	var msgType string
	if err := json.Unmarshal(fields["type"], &msgType); err != nil {
		return ClientMessage{}, fmt.Errorf("%w: missing or non-string type", ErrInvalidMessage)
	}

	switch MessageType(msgType) {
	case TypePing:
		return ClientMessage{Type: TypePing}, nil

	case TypeSubscribe:
		id, present, err := dashboardIDField(fields)
		if err != nil {
			return ClientMessage{}, err
		}
		if !present {
			return ClientMessage{}, fmt.Errorf("%w: subscribe requires dashboardId", ErrInvalidMessage)
		}
		return ClientMessage{Type: TypeSubscribe, DashboardID: id}, nil

	case TypeUnsubscribe:
		id, _, err := dashboardIDField(fields)
		if err != nil {
			return ClientMessage{}, err
		}
		return ClientMessage{Type: TypeUnsubscribe, DashboardID: id}, nil

	default:
		return ClientMessage{}, fmt.Errorf("%w: unknown type", ErrInvalidMessage)
	}
}

// dashboardIDField extracts an optional dashboardId. Absent and null both count as
// not present; anything else must be a string that passes IsValidDashboardID.
func dashboardIDField(fields map[string]json.RawMessage) (string, bool, error) {
	raw, ok := fields["dashboardId"]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return "", false, nil
	}

	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", false, fmt.Errorf("%w: dashboardId must be a string", ErrInvalidMessage)
	}
	if !IsValidDashboardID(id) {
		return "", false, fmt.Errorf("%w: malformed dashboardId", ErrInvalidMessage)
	}
	return id, true, nil
}
