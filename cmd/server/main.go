package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/mathreel/internal/adapter/generator"
	"github.com/pscheid92/mathreel/internal/adapter/httpclient"
	"github.com/pscheid92/mathreel/internal/adapter/httpserver"
	"github.com/pscheid92/mathreel/internal/adapter/memory"
	"github.com/pscheid92/mathreel/internal/adapter/metrics"
	"github.com/pscheid92/mathreel/internal/adapter/minter"
	"github.com/pscheid92/mathreel/internal/adapter/redis"
	"github.com/pscheid92/mathreel/internal/app"
	"github.com/pscheid92/mathreel/internal/domain"
	"github.com/pscheid92/mathreel/internal/platform/config"
	"github.com/pscheid92/mathreel/internal/platform/logging"
	"github.com/pscheid92/mathreel/internal/platform/retry"
	"github.com/pscheid92/mathreel/internal/platform/version"
	"github.com/pscheid92/mathreel/internal/session"
)

func runGracefulShutdown(srv *httpserver.Server, appSvc *app.Service) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		appSvc.Stop()
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

func setupRedis(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) *goredis.Client {
	redisMetrics := metrics.NewRedisMetrics(reg)
	hooks := []goredis.Hook{
		redis.NewMetricsHook(redisMetrics),
		redis.NewCircuitBreakerHook(redisMetrics),
	}

	policy := retry.Policy{
		MaxAttempts:    5,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.Warn("Redis not reachable, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		},
	}

	var client *goredis.Client
	err := retry.Do(ctx, policy, retry.Always, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		c, err := redis.NewClient(attemptCtx, cfg.RedisURL, hooks...)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupBackends(cfg *config.Config, observer httpclient.Observer) (*generator.Client, *minter.Client) {
	httpClient := httpclient.New(cfg.BackendTimeout)

	gen, err := generator.NewClient(cfg.GeneratorBaseURL, httpClient, observer)
	if err != nil {
		slog.Error("Failed to create generator client", "error", err)
		os.Exit(1)
	}

	mint, err := minter.NewClient(cfg.MintBaseURL, httpClient, observer)
	if err != nil {
		slog.Error("Failed to create mint client", "error", err)
		os.Exit(1)
	}

	return gen, mint
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	info := version.Get()
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", info.Version, "commit", info.Commit)

	reg := metrics.NewRegistry()
	httpMetrics := metrics.NewHTTPMetrics(reg)
	sessionMetrics := metrics.NewSessionMetrics(reg)
	backendMetrics := metrics.NewBackendMetrics(reg)

	var (
		store        domain.SessionStore
		healthChecks []httpserver.HealthCheck
	)
	if cfg.RedisURL != "" {
		redisClient := setupRedis(context.Background(), cfg, reg)
		defer func() { _ = redisClient.Close() }()

		store = redis.NewSessionStore(redisClient, cfg.SessionMaxAge)
		healthChecks = append(healthChecks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
		slog.Info("Using Redis session store")
	} else {
		store = memory.NewSessionStore(clock, cfg.SessionMaxAge)
		slog.Info("Using in-memory session store")
	}

	gen, mint := setupBackends(cfg, backendMetrics)

	appSvc := app.NewService(gen, mint, store, sessionMetrics, clock, app.Options{
		Quotas: session.Quotas{
			Initial:   cfg.InitialQuota,
			Replenish: cfg.ReplenishQuota,
		},
		BackendTimeout: cfg.BackendTimeout,
		IdleTimeout:    cfg.SessionIdleTimeout,
	})

	srv, err := httpserver.NewServer(cfg, appSvc, httpMetrics, metrics.Handler(reg), healthChecks)
	if err != nil {
		slog.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	done := runGracefulShutdown(srv, appSvc)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
