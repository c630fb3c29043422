package broadcast

import (
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/dashpulse/internal/protocol"
)

type heartbeatState int

const (
	heartbeatIdle heartbeatState = iota
	heartbeatActive
)

func (s heartbeatState) String() string {
	if s == heartbeatActive {
		return "active"
	}
	return "idle"
}

// heartbeat is the process-wide liveness ticker. It is idle (no ticker) while the
// registry is empty and active otherwise.
type heartbeat struct {
	clock    clockwork.Clock
	interval time.Duration
	state    heartbeatState
	ticker   clockwork.Ticker
}

func newHeartbeat(clock clockwork.Clock, interval time.Duration) *heartbeat {
	return &heartbeat{clock: clock, interval: interval, state: heartbeatIdle}
}

// start moves idle to active. It reports whether a transition happened.
func (h *heartbeat) start() bool {
	if h.state == heartbeatActive {
		return false
	}
	h.ticker = h.clock.NewTicker(h.interval)
	h.state = heartbeatActive
	return true
}

// stop moves active to idle. It reports whether a transition happened.
func (h *heartbeat) stop() bool {
	if h.state == heartbeatIdle {
		return false
	}
	h.ticker.Stop()
	h.ticker = nil
	h.state = heartbeatIdle
	return true
}

// tick returns the ticker channel, or nil while idle so a select never fires on it.
func (h *heartbeat) tick() <-chan time.Time {
	if h.state == heartbeatIdle {
		return nil
	}
	return h.ticker.Chan()
}

// syncHeartbeat keeps the ticker running exactly while connections exist.
func (b *Broadcaster) syncHeartbeat() {
	var changed bool
	if b.registry.len() > 0 {
		changed = b.heartbeat.start()
	} else {
		changed = b.heartbeat.stop()
	}
	if !changed {
		return
	}

	if b.heartbeat.state == heartbeatActive {
		b.metrics.HeartbeatActive.Set(1)
	} else {
		b.metrics.HeartbeatActive.Set(0)
	}
	slog.Debug("Heartbeat state changed", "state", b.heartbeat.state.String(), "connections", b.registry.len())
}

// handleHeartbeat evicts stale connections and pings the live ones.
func (b *Broadcaster) handleHeartbeat() {
	now := b.clock.Now()
	b.metrics.HeartbeatSweeps.Inc()
	b.metrics.CommandQueueDepth.Set(float64(len(b.cmdCh)))

	pong, err := protocol.Encode(protocol.NewPong(now))
	if err != nil {
		slog.Error("Failed to encode heartbeat pong", "error", err)
		return
	}

	evicted := 0
	for _, conn := range b.registry.connections() {
		if now.Sub(conn.lastSeenAt) > b.opts.StaleAfter {
			slog.Info("Evicting stale client",
				"client_id", conn.id,
				"idle", now.Sub(conn.lastSeenAt),
				"rooms", len(conn.rooms),
			)
			b.teardown(conn.id, reasonStale)
			evicted++
			continue
		}
		b.deliver(conn, pong)
	}

	if evicted > 0 {
		slog.Debug("Heartbeat sweep finished", "evicted", evicted, "remaining", b.registry.len())
	}
}
