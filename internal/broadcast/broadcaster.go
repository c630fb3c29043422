package broadcast

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/dashpulse/internal/adapter/metrics"
	"github.com/pscheid92/dashpulse/internal/domain"
	"github.com/pscheid92/dashpulse/internal/protocol"
)

// Peer is the transport side of one connection. Send must not block: a slow or gone
// peer reports an error instead. Close may be called more than once.
type Peer interface {
	Send(data []byte) error
	Close() error
}

// Stats is a point-in-time view of the broadcaster.
type Stats struct {
	Connections int    `json:"connections"`
	Rooms       int    `json:"rooms"`
	Heartbeat   string `json:"heartbeat"`
}

// broadcasterCmd is the command interface for the Broadcaster actor.
type broadcasterCmd interface{ isBroadcasterCmd() }

type baseBroadcasterCmd struct{}

func (baseBroadcasterCmd) isBroadcasterCmd() {}

type openCmd struct {
	baseBroadcasterCmd
	peer  Peer
	reply chan string
}

type receiveCmd struct {
	baseBroadcasterCmd
	clientID string
	kind     protocol.FrameKind
	data     []byte
}

type touchCmd struct {
	baseBroadcasterCmd
	clientID string
}

type closeCmd struct {
	baseBroadcasterCmd
	clientID string
	reason   string
}

type publishCmd struct {
	baseBroadcasterCmd
	dashboardID string
	excludeID   string
	frame       []byte
}

type roomSizeCmd struct {
	baseBroadcasterCmd
	dashboardID string
	reply       chan int
}

type statsCmd struct {
	baseBroadcasterCmd
	reply chan Stats
}

type stopCmd struct {
	baseBroadcasterCmd
}

// Broadcaster owns every dashboard connection and room of this process.
type Broadcaster struct {
	cmdCh     chan broadcasterCmd
	clock     clockwork.Clock
	opts      Options
	metrics   *metrics.BroadcasterMetrics
	registry  *registry
	heartbeat *heartbeat
	done      chan struct{}
	stopOnce  sync.Once
}

// NewBroadcaster creates a broadcaster and starts its goroutine.
func NewBroadcaster(opts Options, clock clockwork.Clock, m *metrics.BroadcasterMetrics) *Broadcaster {
	opts = opts.withDefaults()
	b := &Broadcaster{
		cmdCh:     make(chan broadcasterCmd, opts.InboxSize),
		clock:     clock,
		opts:      opts,
		metrics:   m,
		registry:  newRegistry(opts.MaxRoomsPerClient, newClientID),
		heartbeat: newHeartbeat(clock, opts.HeartbeatInterval),
		done:      make(chan struct{}),
	}
	go b.run()
	return b
}

// Open registers a new connection, sends it a hello frame and returns its client id.
// The transport passes this id to every later call for the connection.
func (b *Broadcaster) Open(peer Peer) (string, error) {
	reply := make(chan string, 1)
	if !b.enqueue(openCmd{peer: peer, reply: reply}) {
		return "", domain.ErrBroadcasterStopped
	}

	timer := b.clock.NewTimer(b.opts.CommandTimeout)
	defer timer.Stop()

	select {
	case id := <-reply:
		return id, nil
	case <-b.done:
		return "", domain.ErrBroadcasterStopped
	case <-timer.Chan():
		return "", fmt.Errorf("open command timed out after %v", b.opts.CommandTimeout)
	}
}

// Receive hands an inbound frame to the broadcaster. Frames for unknown or closed
// connections are ignored.
func (b *Broadcaster) Receive(clientID string, kind protocol.FrameKind, data []byte) {
	b.enqueue(receiveCmd{clientID: clientID, kind: kind, data: data})
}

// Touch records transport-level liveness (for example a WebSocket pong).
func (b *Broadcaster) Touch(clientID string) {
	b.enqueue(touchCmd{clientID: clientID})
}

// Close tears the connection down. Safe to call for an id that is already gone.
func (b *Broadcaster) Close(clientID string, cause error) {
	reason := reasonClosed
	if cause != nil {
		reason = reasonError
		slog.Debug("Client transport error", "client_id", clientID, "error", cause)
	}
	b.enqueue(closeCmd{clientID: clientID, reason: reason})
}

// RoomSize returns the number of connections subscribed to dashboardID.
// Returns -1 if the command times out or the broadcaster is stopped.
func (b *Broadcaster) RoomSize(dashboardID string) int {
	if !protocol.IsValidDashboardID(dashboardID) {
		return 0
	}

	reply := make(chan int, 1)
	if !b.enqueue(roomSizeCmd{dashboardID: dashboardID, reply: reply}) {
		return -1
	}

	timer := b.clock.NewTimer(b.opts.CommandTimeout)
	defer timer.Stop()

	select {
	case n := <-reply:
		return n
	case <-b.done:
		return -1
	case <-timer.Chan():
		slog.Warn("RoomSize timed out", "timeout", b.opts.CommandTimeout)
		return -1
	}
}

// Stats returns connection and room counts.
func (b *Broadcaster) Stats() (Stats, error) {
	reply := make(chan Stats, 1)
	if !b.enqueue(statsCmd{reply: reply}) {
		return Stats{}, domain.ErrBroadcasterStopped
	}

	timer := b.clock.NewTimer(b.opts.CommandTimeout)
	defer timer.Stop()

	select {
	case s := <-reply:
		return s, nil
	case <-b.done:
		return Stats{}, domain.ErrBroadcasterStopped
	case <-timer.Chan():
		return Stats{}, fmt.Errorf("stats command timed out after %v", b.opts.CommandTimeout)
	}
}

// Stop closes every connection and ends the broadcaster goroutine.
// Blocks until the goroutine has exited or the stop timeout is reached.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() {
		if !b.enqueue(stopCmd{}) {
			return
		}

		timeout := b.clock.NewTimer(b.opts.StopTimeout)
		defer timeout.Stop()

		select {
		case <-b.done:
			slog.Info("Broadcaster stopped gracefully")
		case <-timeout.Chan():
			slog.Warn("Broadcaster stop timeout exceeded", "timeout", b.opts.StopTimeout)
		}
	})
}

// Done is closed once the broadcaster goroutine has exited.
func (b *Broadcaster) Done() <-chan struct{} {
	return b.done
}

// enqueue blocks until the command is accepted or the broadcaster has stopped.
func (b *Broadcaster) enqueue(cmd broadcasterCmd) bool {
	select {
	case <-b.done:
		return false
	default:
	}

	select {
	case b.cmdCh <- cmd:
		return true
	case <-b.done:
		return false
	}
}

// tryEnqueue never blocks; it reports false when the inbox is full or closed.
func (b *Broadcaster) tryEnqueue(cmd broadcasterCmd) bool {
	select {
	case <-b.done:
		return false
	default:
	}

	select {
	case b.cmdCh <- cmd:
		return true
	default:
		return false
	}
}

func (b *Broadcaster) run() {
	defer close(b.done)
	defer b.heartbeat.stop()

	for {
		select {
		case cmd := <-b.cmdCh:
			if b.dispatch(cmd) {
				return
			}
		case <-b.heartbeat.tick():
			b.sweep()
		}
	}
}

// dispatch handles one command. It reports true once the broadcaster should exit.
func (b *Broadcaster) dispatch(cmd broadcasterCmd) (stopped bool) {
	defer b.recoverPanic(fmt.Sprintf("%T", cmd))

	switch c := cmd.(type) {
	case openCmd:
		b.handleOpen(c)
	case receiveCmd:
		b.handleReceive(c)
	case touchCmd:
		b.registry.touch(c.clientID, b.clock.Now())
	case closeCmd:
		b.teardown(c.clientID, c.reason)
	case publishCmd:
		b.handlePublish(c)
	case roomSizeCmd:
		c.reply <- b.registry.roomSize(c.dashboardID)
	case statsCmd:
		c.reply <- Stats{
			Connections: b.registry.len(),
			Rooms:       b.registry.roomCount(),
			Heartbeat:   b.heartbeat.state.String(),
		}
	case stopCmd:
		b.handleStop()
		return true
	default:
		slog.Warn("Broadcaster received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
	}
	return false
}

func (b *Broadcaster) sweep() {
	defer b.recoverPanic("heartbeat")
	b.handleHeartbeat()
}

func (b *Broadcaster) recoverPanic(scope string) {
	if r := recover(); r != nil {
		slog.Error("Broadcaster panic recovered", "scope", scope, "panic", r)
		b.metrics.PanicsRecovered.Inc()
	}
}

func (b *Broadcaster) handleStop() {
	conns := b.registry.connections()
	slog.Info("Broadcaster shutting down", "connections", len(conns), "rooms", b.registry.roomCount())

	for _, conn := range conns {
		conn.state = stateClosing
		b.registry.remove(conn.id)
		closePeer(conn)
		conn.state = stateClosed
	}
	b.heartbeat.stop()
	b.updateGauges()
	b.metrics.HeartbeatActive.Set(0)

	slog.Info("Broadcaster shutdown complete", "disconnected_clients", len(conns))
}

func (b *Broadcaster) updateGauges() {
	b.metrics.ActiveConnections.Set(float64(b.registry.len()))
	b.metrics.ActiveRooms.Set(float64(b.registry.roomCount()))
}
