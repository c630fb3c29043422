package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	HeartbeatInterval        time.Duration `env:"HEARTBEAT_INTERVAL" default:"30s"`
	StaleConnectionTimeout   time.Duration `env:"STALE_CONNECTION_TIMEOUT" default:"90s"`
	MaxRoomsPerClient        int           `env:"MAX_ROOMS_PER_CLIENT" default:"20"`
	MaxBroadcastPayloadBytes int           `env:"MAX_BROADCAST_PAYLOAD_BYTES" default:"24576"`
	MaxMessageLength         int           `env:"MAX_MESSAGE_LENGTH" default:"16384"`

	MaxWebSocketConnections int     `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP     int     `env:"MAX_CONNECTIONS_PER_IP" default:"50"`
	UpgradesPerSecond       float64 `env:"WEBSOCKET_UPGRADES_PER_SECOND" default:"10"`
	UpgradeBurst            int     `env:"WEBSOCKET_UPGRADE_BURST" default:"20"`
	AllowedOrigins          string  `env:"ALLOWED_ORIGINS"`

	IngestToken     string  `env:"INGEST_TOKEN"`
	IngestRateLimit float64 `env:"INGEST_RATE_LIMIT" default:"100"`
	IngestRateBurst int     `env:"INGEST_RATE_BURST" default:"200"`

	RedisURL              string `env:"REDIS_URL"`
	RedisEventsChannel    string `env:"REDIS_EVENTS_CHANNEL" default:"dashboard:events"`
	DatabaseURL           string `env:"DATABASE_URL"`
	PostgresNotifyChannel string `env:"POSTGRES_NOTIFY_CHANNEL" default:"dashboard_events"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"15s"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// IsDevelopment reports whether APP_ENV is development.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c *Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func validate(cfg *Config) error {
	switch cfg.LogFormat {
	case "text", "json", "pretty":
	default:
		return fmt.Errorf("LOG_FORMAT must be one of text, json, pretty, got %q", cfg.LogFormat)
	}

	positive := []struct {
		name  string
		value int64
	}{
		{"HEARTBEAT_INTERVAL", int64(cfg.HeartbeatInterval)},
		{"STALE_CONNECTION_TIMEOUT", int64(cfg.StaleConnectionTimeout)},
		{"MAX_ROOMS_PER_CLIENT", int64(cfg.MaxRoomsPerClient)},
		{"MAX_BROADCAST_PAYLOAD_BYTES", int64(cfg.MaxBroadcastPayloadBytes)},
		{"MAX_MESSAGE_LENGTH", int64(cfg.MaxMessageLength)},
		{"MAX_WEBSOCKET_CONNECTIONS", int64(cfg.MaxWebSocketConnections)},
		{"MAX_CONNECTIONS_PER_IP", int64(cfg.MaxConnectionsPerIP)},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive", p.name)
		}
	}

	if cfg.StaleConnectionTimeout < cfg.HeartbeatInterval {
		return errors.New("STALE_CONNECTION_TIMEOUT must not be shorter than HEARTBEAT_INTERVAL")
	}

	if cfg.IngestToken != "" && len(cfg.IngestToken) < 16 {
		return errors.New("INGEST_TOKEN must be at least 16 characters")
	}

	if cfg.AppEnv == "production" {
		if len(cfg.Origins()) == 0 {
			return errors.New("ALLOWED_ORIGINS is required in production")
		}
		if err := validateSSLMode(cfg.DatabaseURL); err != nil {
			return err
		}
	}

	return nil
}

// validateSSLMode rejects DATABASE_URL settings that would allow plaintext connections.
func validateSSLMode(databaseURL string) error {
	if databaseURL == "" {
		return nil
	}
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("DATABASE_URL is not a valid URL: %w", err)
	}
	mode := strings.ToLower(u.Query().Get("sslmode"))
	if mode == "disable" || mode == "allow" {
		return fmt.Errorf("DATABASE_URL uses sslmode=%s which is not allowed in production", mode)
	}
	return nil
}
