package websocket

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCheckOrigin(t *testing.T) {
	allowed := []string{"https://dash.example.com/app", "https://admin.example.com:8443"}

	tests := []struct {
		name          string
		origin        string
		isDevelopment bool
		want          bool
	}{
		{"empty origin", "", false, true},
		{"allowed origin", "https://dash.example.com", false, true},
		{"allowed origin upper case", "https://DASH.example.com", false, true},
		{"allowed origin with port", "https://admin.example.com:8443", false, true},

		{"different host", "https://evil.com", false, false},
		{"different port", "https://dash.example.com:9090", false, false},
		{"http instead of https", "http://dash.example.com", false, false},
		{"subdomain", "https://sub.dash.example.com", false, false},

		{"localhost dev", "http://localhost:5173", true, true},
		{"loopback dev", "http://127.0.0.1:3000", true, true},
		{"localhost prod rejected", "http://localhost:5173", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewCheckOrigin(allowed, tt.isDevelopment)
			r, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, checker(r))
		})
	}
}

func TestNewCheckOrigin_Wildcard(t *testing.T) {
	checker := NewCheckOrigin([]string{"*"}, false)
	r, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "https://anywhere.example")
	assert.True(t, checker(r))
}

func TestExtractOrigin(t *testing.T) {
	tests := []struct {
		name   string
		rawURL string
		want   string
	}{
		{"full URL with path", "https://example.com/dashboards/1", "https://example.com"},
		{"URL with port", "https://example.com:8443/path", "https://example.com:8443"},
		{"http URL", "http://localhost:8080/callback", "http://localhost:8080"},
		{"empty string", "", ""},
		{"no host", "mailto:user@example.com", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractOrigin(tt.rawURL))
		})
	}
}
