package domain

// EventPublisher accepts dashboard events for best-effort fan-out.
// Implementations never block the caller and never panic.
type EventPublisher interface {
	Publish(event DashboardEvent)
}

// PresenceReader reports how many live connections subscribe to a dashboard.
type PresenceReader interface {
	RoomSize(dashboardID string) int
}
