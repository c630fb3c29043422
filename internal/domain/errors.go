package domain

import "errors"

var (
	ErrBroadcasterStopped = errors.New("broadcaster stopped")
	ErrInvalidDashboardID = errors.New("invalid dashboard id")
	ErrInvalidEvent       = errors.New("invalid event type")
	ErrMissingActor       = errors.New("actor id is required")
	ErrPayloadTooLarge    = errors.New("payload exceeds broadcast limit")
	ErrUnserializable     = errors.New("payload is not JSON serializable")
)
