package httpserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/dashpulse/internal/adapter/metrics"
	"github.com/pscheid92/dashpulse/internal/broadcast"
	"github.com/pscheid92/dashpulse/internal/domain"
	"github.com/pscheid92/dashpulse/internal/ingest"
	"github.com/pscheid92/dashpulse/internal/platform/config"
	"github.com/stretchr/testify/require"
)

const testIngestToken = "0123456789abcdef-ingest"

type fakeBroadcaster struct {
	rooms    map[string]int
	stats    broadcast.Stats
	statsErr error
}

func (f *fakeBroadcaster) RoomSize(dashboardID string) int {
	if f.statsErr != nil {
		return -1
	}
	return f.rooms[dashboardID]
}

func (f *fakeBroadcaster) Stats() (broadcast.Stats, error) {
	return f.stats, f.statsErr
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.DashboardEvent
}

func (p *recordingPublisher) Publish(event domain.DashboardEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) published() []domain.DashboardEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.DashboardEvent(nil), p.events...)
}

type testServer struct {
	*Server
	broadcaster   *fakeBroadcaster
	publisher     *recordingPublisher
	ingestMetrics *metrics.IngestMetrics
}

type testOption func(*config.Config, *[]HealthCheck)

func withHealthChecks(checks ...HealthCheck) testOption {
	return func(_ *config.Config, hc *[]HealthCheck) { *hc = checks }
}

func withIngestToken(token string) testOption {
	return func(cfg *config.Config, _ *[]HealthCheck) { cfg.IngestToken = token }
}

func newTestServer(t *testing.T, opts ...testOption) *testServer {
	t.Helper()

	cfg := &config.Config{
		AppEnv:                   "test",
		Port:                     "0",
		MaxBroadcastPayloadBytes: 64,
		IngestToken:              testIngestToken,
		IngestRateLimit:          1000,
		IngestRateBurst:          1000,
	}
	var checks []HealthCheck
	for _, opt := range opts {
		opt(cfg, &checks)
	}

	reg := prometheus.NewRegistry()
	b := &fakeBroadcaster{rooms: map[string]int{}, stats: broadcast.Stats{Heartbeat: "idle"}}
	pub := &recordingPublisher{}
	im := metrics.NewIngestMetrics(reg)
	dispatcher := ingest.NewDispatcher(pub, im, ingest.SourceHTTP)

	ws := func(c echo.Context) error { return c.NoContent(http.StatusTeapot) }
	srv := NewServer(cfg, b, dispatcher, ws, reg, checks)

	return &testServer{Server: srv, broadcaster: b, publisher: pub, ingestMetrics: im}
}

// do serves one request through the full middleware stack.
func (s *testServer) do(t *testing.T, method, target, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	require.NotZero(t, rec.Code)
	return rec
}

func bearer(token string) http.Header {
	return http.Header{echo.HeaderAuthorization: []string{"Bearer " + token}}
}
