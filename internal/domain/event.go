package domain

// EventType is the closed set of dashboard mutations fanned out to subscribers.
type EventType string

const (
	EventWidgetUpdate EventType = "widget:update"
	EventLayoutChange EventType = "layout:change"
	EventPageSwitch   EventType = "page:switch"
	EventCursorMove   EventType = "cursor:move"
)

// Valid reports whether e is one of the known event types.
func (e EventType) Valid() bool {
	switch e {
	case EventWidgetUpdate, EventLayoutChange, EventPageSwitch, EventCursorMove:
		return true
	default:
		return false
	}
}

// DashboardEvent is a mutation committed by the persistence layer that should
// reach every live subscriber of DashboardID.
type DashboardEvent struct {
	DashboardID string
	ActorID     string
	Event       EventType
	// Payload is re-serialized before delivery; callers may keep mutating it.
	Payload any
	// ExcludeClientID suppresses the echo to the connection that caused the change.
	ExcludeClientID string
}
