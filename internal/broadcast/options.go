package broadcast

import (
	"time"

	"github.com/pscheid92/dashpulse/internal/protocol"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultStaleAfter        = 90 * time.Second
	defaultMaxRoomsPerClient = 20
	defaultMaxPayloadBytes   = 24 * 1024
	defaultCommandTimeout    = 5 * time.Second
	defaultStopTimeout       = 10 * time.Second
	defaultInboxSize         = 1024
)

// Options tunes the broadcaster. Zero fields fall back to the defaults.
type Options struct {
	HeartbeatInterval time.Duration
	StaleAfter        time.Duration
	MaxRoomsPerClient int
	MaxPayloadBytes   int
	MaxMessageLength  int

	CommandTimeout time.Duration
	StopTimeout    time.Duration
	InboxSize      int
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		HeartbeatInterval: defaultHeartbeatInterval,
		StaleAfter:        defaultStaleAfter,
		MaxRoomsPerClient: defaultMaxRoomsPerClient,
		MaxPayloadBytes:   defaultMaxPayloadBytes,
		MaxMessageLength:  protocol.DefaultMaxMessageLength,
		CommandTimeout:    defaultCommandTimeout,
		StopTimeout:       defaultStopTimeout,
		InboxSize:         defaultInboxSize,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = d.HeartbeatInterval
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = d.StaleAfter
	}
	if o.MaxRoomsPerClient <= 0 {
		o.MaxRoomsPerClient = d.MaxRoomsPerClient
	}
	if o.MaxPayloadBytes <= 0 {
		o.MaxPayloadBytes = d.MaxPayloadBytes
	}
	if o.MaxMessageLength <= 0 {
		o.MaxMessageLength = d.MaxMessageLength
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = d.CommandTimeout
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = d.StopTimeout
	}
	if o.InboxSize <= 0 {
		o.InboxSize = d.InboxSize
	}
	return o
}
