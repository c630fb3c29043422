package broadcast

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/dashpulse/internal/adapter/metrics"
	"github.com/pscheid92/dashpulse/internal/protocol"
	"github.com/stretchr/testify/require"
)

const waitFor = time.Second
const tick = 5 * time.Millisecond

var errPeerGone = errors.New("peer gone")

// fakePeer records every frame the broadcaster hands it.
type fakePeer struct {
	mu      sync.Mutex
	frames  [][]byte
	closed  bool
	failing bool
	panics  bool
}

func (p *fakePeer) Send(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.panics {
		panic("send exploded")
	}
	if p.failing || p.closed {
		return errPeerGone
	}
	p.frames = append(p.frames, append([]byte(nil), data...))
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// messages decodes the recorded frames as generic JSON objects.
func (p *fakePeer) messages(t *testing.T) []map[string]any {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]map[string]any, 0, len(p.frames))
	for _, f := range p.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(f, &m))
		out = append(out, m)
	}
	return out
}

// ofType returns the recorded messages with the given type field.
func (p *fakePeer) ofType(t *testing.T, msgType string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, m := range p.messages(t) {
		if m["type"] == msgType {
			out = append(out, m)
		}
	}
	return out
}

func (p *fakePeer) count(t *testing.T, msgType string) int {
	t.Helper()
	return len(p.ofType(t, msgType))
}

type testEnv struct {
	b       *Broadcaster
	metrics *metrics.BroadcasterMetrics
}

func newTestBroadcaster(t *testing.T, opts Options, clock clockwork.Clock) testEnv {
	t.Helper()
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	m := metrics.NewBroadcasterMetrics(prometheus.NewRegistry())
	b := NewBroadcaster(opts, clock, m)
	t.Cleanup(b.Stop)
	return testEnv{b: b, metrics: m}
}

// connect opens a fake peer and waits for its hello.
func (e testEnv) connect(t *testing.T) (*fakePeer, string) {
	t.Helper()
	peer := &fakePeer{}
	id, err := e.b.Open(peer)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	return peer, id
}

func (e testEnv) send(clientID, text string) {
	e.b.Receive(clientID, protocol.FrameText, []byte(text))
}

// subscribe sends a subscribe and waits until the acknowledgment for it arrives.
func (e testEnv) subscribe(t *testing.T, peer *fakePeer, clientID, dashboardID string) map[string]any {
	t.Helper()
	before := peer.count(t, "subscribed")
	e.send(clientID, `{"type":"subscribe","dashboardId":"`+dashboardID+`"}`)
	require.Eventually(t, func() bool { return peer.count(t, "subscribed") > before }, waitFor, tick)
	acks := peer.ofType(t, "subscribed")
	return acks[len(acks)-1]
}

// flush waits until every command enqueued before it has been handled.
func (e testEnv) flush(t *testing.T) {
	t.Helper()
	_, err := e.b.Stats()
	require.NoError(t, err)
}
