package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/dashpulse/internal/adapter/metrics"
	"github.com/pscheid92/dashpulse/internal/broadcast"
	"github.com/pscheid92/dashpulse/internal/domain"
	"github.com/pscheid92/dashpulse/internal/ingest"
	"github.com/pscheid92/dashpulse/internal/platform/config"
	"golang.org/x/sync/singleflight"
)

// broadcaster is the part of the broadcaster the HTTP surface reads from.
type broadcaster interface {
	domain.PresenceReader
	Stats() (broadcast.Stats, error)
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	broadcaster      broadcaster
	ingest           *ingest.Dispatcher
	websocketHandler echo.HandlerFunc

	registry     *prometheus.Registry
	httpMetrics  *metrics.HTTPMetrics
	healthChecks []HealthCheck
	readiness    singleflight.Group
	startTime    time.Time
}

func NewServer(cfg *config.Config, b broadcaster, dispatcher *ingest.Dispatcher, websocketHandler echo.HandlerFunc, reg *prometheus.Registry, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:             e,
		config:           cfg,
		broadcaster:      b,
		ingest:           dispatcher,
		websocketHandler: websocketHandler,
		registry:         reg,
		httpMetrics:      metrics.NewHTTPMetrics(reg),
		healthChecks:     healthChecks,
		startTime:        time.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
