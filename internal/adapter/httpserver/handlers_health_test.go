package httpserver

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pscheid92/dashpulse/internal/broadcast"
	"github.com/pscheid92/dashpulse/internal/domain"
	"github.com/stretchr/testify/assert"
)

func healthOK(_ context.Context) error { return nil }

func healthErr(msg string) func(context.Context) error {
	return func(_ context.Context) error { return errors.New(msg) }
}

func TestHandleLiveness(t *testing.T) {
	srv := newTestServer(t)
	srv.broadcaster.stats = broadcast.Stats{Connections: 3, Rooms: 2, Heartbeat: "active"}

	rec := srv.do(t, http.MethodGet, "/health/live", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"status":"ok"`)
	assert.Contains(t, body, `"uptime"`)
	assert.Contains(t, body, `"connections":3`)
	assert.Contains(t, body, `"rooms":2`)
	assert.Contains(t, body, `"heartbeat":"active"`)
}

func TestHandleLiveness_BroadcasterStopped(t *testing.T) {
	srv := newTestServer(t)
	srv.broadcaster.statsErr = domain.ErrBroadcasterStopped

	rec := srv.do(t, http.MethodGet, "/health/live", "", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"unhealthy"`)
}

func TestHandleReadiness_NoChecks(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/health/ready", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestHandleReadiness_AllHealthy(t *testing.T) {
	srv := newTestServer(t, withHealthChecks(
		HealthCheck{Name: "redis", Check: healthOK},
		HealthCheck{Name: "postgres", Check: healthOK},
	))

	rec := srv.do(t, http.MethodGet, "/health/ready", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestHandleReadiness_ReportsFirstFailure(t *testing.T) {
	tests := []struct {
		name       string
		checks     []HealthCheck
		wantFailed string
		wantError  string
	}{
		{
			name: "redis down",
			checks: []HealthCheck{
				{Name: "redis", Check: healthErr("connection refused")},
				{Name: "postgres", Check: healthOK},
			},
			wantFailed: "redis",
			wantError:  "connection refused",
		},
		{
			name: "postgres down",
			checks: []HealthCheck{
				{Name: "redis", Check: healthOK},
				{Name: "postgres", Check: healthErr("database unreachable")},
			},
			wantFailed: "postgres",
			wantError:  "database unreachable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, withHealthChecks(tt.checks...))

			rec := srv.do(t, http.MethodGet, "/health/ready", "", nil)

			assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
			assert.Contains(t, rec.Body.String(), `"status":"unhealthy"`)
			assert.Contains(t, rec.Body.String(), `"failed_check":"`+tt.wantFailed+`"`)
			assert.Contains(t, rec.Body.String(), `"error":"`+tt.wantError+`"`)
		})
	}
}

func TestHandleReadiness_ConcurrentProbesShareOneRun(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	slow := func(ctx context.Context) error {
		calls.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}
	srv := newTestServer(t, withHealthChecks(HealthCheck{Name: "redis", Check: slow}))

	const probes = 8
	var wg sync.WaitGroup
	codes := make(chan int, probes)
	for range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes <- srv.do(t, http.MethodGet, "/health/ready", "", nil).Code
		}()
	}

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	// Give the remaining probes time to join the in-flight run.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(codes)

	for code := range codes {
		assert.Equal(t, http.StatusOK, code)
	}
	assert.Less(t, calls.Load(), int32(probes))
}

func TestHandleVersion(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/version", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version"`)
	assert.Contains(t, rec.Body.String(), `"protocol_version":1`)
}
