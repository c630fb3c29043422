package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	apperrors "github.com/pscheid92/dashpulse/internal/platform/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runErrorMiddleware(t *testing.T, handler echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	err := ErrorHandlingMiddleware()(handler)(e.NewContext(req, rec))
	return rec, err
}

func TestMiddlewareWithStructuredError(t *testing.T) {
	rec, err := runErrorMiddleware(t, func(c echo.Context) error {
		return apperrors.ValidationError("invalid dashboard id").WithField("dashboard_id", "a b")
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid dashboard id", resp.Error)
	assert.Equal(t, apperrors.TypeValidation, resp.Type)
	assert.Equal(t, "a b", resp.Context["dashboard_id"])
}

func TestMiddlewareWrapsPlainErrorsAsInternal(t *testing.T) {
	rec, err := runErrorMiddleware(t, func(c echo.Context) error {
		return errors.New("redis: connection refused")
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "internal server error", resp.Error)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestMiddlewarePassesEchoErrorsThrough(t *testing.T) {
	_, err := runErrorMiddleware(t, func(c echo.Context) error {
		return echo.ErrRequestEntityTooLarge
	})

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusRequestEntityTooLarge, httpErr.Code)
}

func TestMiddlewareWithNoError(t *testing.T) {
	rec, err := runErrorMiddleware(t, func(c echo.Context) error {
		return c.String(http.StatusOK, "success")
	})
	require.NoError(t, err)
	assert.Equal(t, "success", rec.Body.String())
}

func TestMiddlewareStatusPerType(t *testing.T) {
	tests := []struct {
		name       string
		err        *apperrors.Error
		wantStatus int
	}{
		{"validation", apperrors.ValidationError("invalid"), http.StatusBadRequest},
		{"unauthorized", apperrors.UnauthorizedError("no token"), http.StatusUnauthorized},
		{"not_found", apperrors.NotFoundError("missing"), http.StatusNotFound},
		{"rate_limited", apperrors.RateLimitedError("slow down"), http.StatusTooManyRequests},
		{"unavailable", apperrors.UnavailableError("disabled", nil), http.StatusServiceUnavailable},
		{"internal", apperrors.InternalError("failed", errors.New("cause")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := runErrorMiddleware(t, func(c echo.Context) error { return tt.err })
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}
