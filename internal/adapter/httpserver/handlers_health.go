package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/dashpulse/internal/platform/version"
)

const (
	readinessProbeTimeout = 5 * time.Second
	readinessKey          = "ready"
)

// HealthCheck is a named health check function.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type healthResult struct {
	failedCheck string
	err         error
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

// handleLiveness fails only when the broadcaster goroutine is gone.
func (s *Server) handleLiveness(c echo.Context) error {
	stats, err := s.broadcaster.Stats()
	if err != nil {
		response := map[string]any{
			"status": "unhealthy",
			"error":  err.Error(),
		}
		if err := c.JSON(http.StatusServiceUnavailable, response); err != nil {
			return fmt.Errorf("failed to write liveness response: %w", err)
		}
		return nil
	}

	response := map[string]any{
		"status":      "ok",
		"uptime":      time.Since(s.startTime).Seconds(),
		"connections": stats.Connections,
		"rooms":       stats.Rooms,
		"heartbeat":   stats.Heartbeat,
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}

	return nil
}

// handleReadiness runs the dependency checks. Concurrent probes share one run.
func (s *Server) handleReadiness(c echo.Context) error {
	ctx := context.WithoutCancel(c.Request().Context())
	v, _, _ := s.readiness.Do(readinessKey, func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, readinessProbeTimeout)
		defer cancel()
		return s.runHealthChecks(ctx), nil
	})

	result := v.(healthResult)
	if result.err != nil {
		response := map[string]any{
			"status":       "unhealthy",
			"failed_check": result.failedCheck,
			"error":        result.err.Error(),
		}
		if err := c.JSON(http.StatusServiceUnavailable, response); err != nil {
			return fmt.Errorf("failed to send JSON response: %w", err)
		}
		return nil
	}

	if err := c.JSON(http.StatusOK, map[string]string{"status": "ready"}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) runHealthChecks(ctx context.Context) healthResult {
	for _, hc := range s.healthChecks {
		if err := hc.Check(ctx); err != nil {
			return healthResult{failedCheck: hc.Name, err: err}
		}
	}
	return healthResult{}
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
