package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/dashpulse/internal/adapter/httpserver"
	"github.com/pscheid92/dashpulse/internal/adapter/metrics"
	"github.com/pscheid92/dashpulse/internal/adapter/postgres"
	"github.com/pscheid92/dashpulse/internal/adapter/redis"
	"github.com/pscheid92/dashpulse/internal/adapter/websocket"
	"github.com/pscheid92/dashpulse/internal/broadcast"
	"github.com/pscheid92/dashpulse/internal/ingest"
	"github.com/pscheid92/dashpulse/internal/platform/config"
	"github.com/pscheid92/dashpulse/internal/platform/logging"
	"github.com/pscheid92/dashpulse/internal/platform/version"
	goredis "github.com/redis/go-redis/v9"
)

const connectTimeout = 10 * time.Second

// listeners tracks the optional ingest goroutines so shutdown can wait for them.
type listeners struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (l *listeners) run(ctx context.Context, start func(ctx context.Context)) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		start(ctx)
	}()
}

func (l *listeners) stop() {
	l.cancel()
	l.wg.Wait()
}

func runGracefulShutdown(cfg *config.Config, srv *httpserver.Server, broadcaster *broadcast.Broadcaster, ingestListeners *listeners) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		// Stop feeding events before the broadcaster goes away.
		ingestListeners.stop()

		// Closing every connection first lets the websocket handlers return, so the
		// HTTP shutdown below does not wait on hijacked sockets.
		broadcaster.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRedis(cfg *config.Config, im *metrics.IngestMetrics, sm *metrics.StoreMetrics) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	hook := redis.NewCircuitBreakerHook(redis.BreakerSettings{
		OnStateChange: func(_, to circuitbreaker.State) {
			im.BreakerState.WithLabelValues("redis").Set(redis.StateValue(to))
		},
	})
	client, err := redis.NewClient(ctx, cfg.RedisURL, redis.NewMetricsHook(sm), hook)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupDB(cfg *config.Config, sm *metrics.StoreMetrics) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, postgres.NewMetricsTracer(sm))
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func broadcasterOptions(cfg *config.Config) broadcast.Options {
	opts := broadcast.DefaultOptions()
	opts.HeartbeatInterval = cfg.HeartbeatInterval
	opts.StaleAfter = cfg.StaleConnectionTimeout
	opts.MaxRoomsPerClient = cfg.MaxRoomsPerClient
	opts.MaxPayloadBytes = cfg.MaxBroadcastPayloadBytes
	opts.MaxMessageLength = cfg.MaxMessageLength
	return opts
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	info := version.Get()
	slog.Info("Application starting",
		"env", cfg.AppEnv,
		"port", cfg.Port,
		"version", info.Version,
		"commit", info.Commit,
		"protocol_version", info.ProtocolVersion,
	)

	reg := metrics.NewRegistry()
	ingestMetrics := metrics.NewIngestMetrics(reg)
	storeMetrics := metrics.NewStoreMetrics(reg)

	broadcaster := broadcast.NewBroadcaster(broadcasterOptions(cfg), clock, metrics.NewBroadcasterMetrics(reg))

	limits := websocket.NewConnectionLimits(websocket.LimitsConfig{
		MaxConnections:    cfg.MaxWebSocketConnections,
		MaxPerIP:          cfg.MaxConnectionsPerIP,
		UpgradesPerSecond: cfg.UpgradesPerSecond,
		UpgradeBurst:      cfg.UpgradeBurst,
	}, clock)
	wsHandler := websocket.NewHandler(broadcaster, limits, websocket.Config{
		AllowedOrigins:   cfg.Origins(),
		IsDevelopment:    cfg.IsDevelopment(),
		MaxMessageLength: cfg.MaxMessageLength,
	}, metrics.NewWebSocketMetrics(reg), clock)

	ctx, cancel := context.WithCancel(context.Background())
	ingestListeners := &listeners{cancel: cancel}
	var healthChecks []httpserver.HealthCheck

	if cfg.RedisURL != "" {
		redisClient := setupRedis(cfg, ingestMetrics, storeMetrics)
		defer func() { _ = redisClient.Close() }()

		dispatcher := ingest.NewDispatcher(broadcaster, ingestMetrics, ingest.SourceRedis)
		subscriber := redis.NewEventSubscriber(redisClient, cfg.RedisEventsChannel, dispatcher, clock)
		ingestListeners.run(ctx, subscriber.Start)
		healthChecks = append(healthChecks, httpserver.HealthCheck{Name: "redis", Check: redis.HealthCheck(redisClient)})
	}

	if cfg.DatabaseURL != "" {
		pool := setupDB(cfg, storeMetrics)
		defer pool.Close()

		dispatcher := ingest.NewDispatcher(broadcaster, ingestMetrics, ingest.SourcePostgres)
		listener := postgres.NewListener(pool, cfg.PostgresNotifyChannel, dispatcher, clock)
		ingestListeners.run(ctx, listener.Start)
		healthChecks = append(healthChecks, httpserver.HealthCheck{Name: "postgres", Check: postgres.HealthCheck(pool)})
	}

	httpDispatcher := ingest.NewDispatcher(broadcaster, ingestMetrics, ingest.SourceHTTP)
	srv := httpserver.NewServer(cfg, broadcaster, httpDispatcher, wsHandler.Handle, reg, healthChecks)

	done := runGracefulShutdown(cfg, srv, broadcaster, ingestListeners)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
