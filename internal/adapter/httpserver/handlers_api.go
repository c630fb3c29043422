package httpserver

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pscheid92/dashpulse/internal/ingest"
	apperrors "github.com/pscheid92/dashpulse/internal/platform/errors"
	"github.com/pscheid92/dashpulse/internal/protocol"
)

// ingestBodyLimit leaves room for the envelope around the largest payload.
const ingestBodyLimit = "64K"

type presenceResponse struct {
	DashboardID string `json:"dashboardId"`
	Connections int    `json:"connections"`
}

func (s *Server) registerAPIRoutes() {
	api := s.echo.Group("/api/dashboards/:dashboardId")

	api.GET("/presence", s.handleGetPresence)
	api.POST("/events", s.handlePostEvent,
		newRateLimiter(s.config.IngestRateLimit, s.config.IngestRateBurst),
		s.requireIngestToken(),
		middleware.BodyLimit(ingestBodyLimit),
	)
}

// requireIngestToken checks the bearer token. An empty INGEST_TOKEN disables the
// endpoint.
func (s *Server) requireIngestToken() echo.MiddlewareFunc {
	token := []byte(s.config.IngestToken)

	keyAuth := middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup:  "header:" + echo.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(key string, c echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), token) == 1, nil
		},
		ErrorHandler: func(err error, c echo.Context) error {
			return apperrors.UnauthorizedError("invalid or missing ingest token")
		},
	})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		authed := keyAuth(next)
		return func(c echo.Context) error {
			if len(token) == 0 {
				return apperrors.UnavailableError("event ingest is disabled", nil)
			}
			return authed(c)
		}
	}
}

func (s *Server) handleGetPresence(c echo.Context) error {
	dashboardID := c.Param("dashboardId")
	if !protocol.IsValidDashboardID(dashboardID) {
		return apperrors.ValidationError("invalid dashboard id").WithField("dashboard_id", dashboardID)
	}

	n := s.broadcaster.RoomSize(dashboardID)
	if n < 0 {
		return apperrors.UnavailableError("presence is unavailable", nil)
	}

	if err := c.JSON(http.StatusOK, presenceResponse{DashboardID: dashboardID, Connections: n}); err != nil {
		return fmt.Errorf("failed to write presence response: %w", err)
	}
	return nil
}

// handlePostEvent accepts an event for fan-out. Delivery is best effort, so 202
// means the event was valid, not that anyone received it.
func (s *Server) handlePostEvent(c echo.Context) error {
	dashboardID := c.Param("dashboardId")
	if !protocol.IsValidDashboardID(dashboardID) {
		return apperrors.ValidationError("invalid dashboard id").WithField("dashboard_id", dashboardID)
	}

	var env ingest.Envelope
	if err := json.NewDecoder(c.Request().Body).Decode(&env); err != nil {
		return apperrors.ValidationError("request body must be a JSON event")
	}
	env.DashboardID = dashboardID

	event := env.DashboardEvent()
	if event.ActorID == "" {
		return apperrors.ValidationError("actorId is required")
	}
	if !event.Event.Valid() {
		return apperrors.ValidationError("unknown event type").WithField("event", env.Event)
	}
	if size := compactSize(env.Payload); size > s.config.MaxBroadcastPayloadBytes {
		return apperrors.ValidationError("payload too large").
			WithField("payload_bytes", size).
			WithField("limit_bytes", s.config.MaxBroadcastPayloadBytes)
	}

	s.ingest.Publish(event)

	if err := c.JSON(http.StatusAccepted, map[string]string{"status": "accepted"}); err != nil {
		return fmt.Errorf("failed to write ingest response: %w", err)
	}
	return nil
}

// compactSize is the payload length as the broadcaster will serialize it.
func compactSize(payload json.RawMessage) int {
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload); err != nil {
		return len(payload)
	}
	return buf.Len()
}
