package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/splax/teamhub/internal/app/migrate"
	"github.com/splax/teamhub/internal/events"
	httpx "github.com/splax/teamhub/internal/http"
	"github.com/splax/teamhub/internal/repository"
	"github.com/splax/teamhub/internal/repository/postgres"
	"github.com/splax/teamhub/internal/repository/sqlite"
	"github.com/splax/teamhub/internal/service/access"
	"github.com/splax/teamhub/internal/service/auth"
	"github.com/splax/teamhub/internal/service/invitation"
	"github.com/splax/teamhub/internal/service/membership"
	"github.com/splax/teamhub/internal/service/team"
	"github.com/splax/teamhub/internal/ws"
	"github.com/splax/teamhub/pkg/config"
	"github.com/splax/teamhub/pkg/logger"
	"github.com/splax/teamhub/pkg/tracing"
)

func main() {
	cfg, err := config.LoadAPIConfig()
	log := logger.New("api", logger.ParseLevel(cfg.LogLevel))
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, "teamhub-api", cfg.OTLPEndpoint)
	if err != nil {
		log.Warn("tracing disabled", "error", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", "driver", cfg.DBDriver, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	hub := ws.NewHub()
	defer hub.Stop()

	logSink := events.NewLog(log)
	hooks := events.Multi{logSink}
	notifier := events.Multi{logSink, hub}
	if addr := strings.TrimSpace(cfg.EventsRedisAddr); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.EventsRedisPass, DB: cfg.EventsRedisDB})
		publisher := events.NewRedisPublisher(client, cfg.EventsRedisChannel)
		defer publisher.Close()
		hooks = append(hooks, publisher)
		notifier = append(notifier, publisher)
		log.Info("publishing team events to redis", "addr", addr, "channel", cfg.EventsRedisChannel)
	}

	guard := access.New(store)
	updater, err := team.NewUpdater(cfg.UpdateStrategy, store, cfg.ReservedNames)
	if err != nil {
		log.Error("invalid team update strategy", "strategy", cfg.UpdateStrategy, "error", err)
		os.Exit(1)
	}
	invitationSvc, err := invitation.New(store, guard, cfg.DefaultRole, notifier, log)
	if err != nil {
		log.Error("invalid default role", "role", cfg.DefaultRole, "error", err)
		os.Exit(1)
	}

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(httpx.Deps{
		Auth:        auth.New(store, cfg.JWTSecret, log),
		Teams:       team.New(store, guard, updater, hooks, notifier, log),
		Members:     membership.New(store, guard, notifier, log),
		Invitations: invitationSvc,
		Guard:       guard,
		Hub:         hub,
		Limiter:     limiter,
		Limits:      rateLimits(cfg.RateLimits),
		Health:      store.Ping,
		Logger:      log,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           otelhttp.NewHandler(router, "teamhub-api"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "driver", cfg.DBDriver)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

func rateLimits(cfg config.RateLimitConfig) *httpx.Limits {
	return &httpx.Limits{
		Read:             cfg.Read,
		Write:            cfg.Write,
		Realtime:         cfg.Realtime,
		TeamInvites:      cfg.TeamInvites,
		Window:           cfg.Window,
		RealtimeWindow:   cfg.RealtimeWindow,
		TeamInviteWindow: cfg.TeamInviteWindow,
	}
}

func openStore(ctx context.Context, cfg config.APIConfig, log *slog.Logger) (repository.Store, error) {
	switch cfg.DBDriver {
	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverPostgres:
		runner, err := migrate.New(cfg.DatabaseURL, migrate.Source(cfg.MigrationsDir), log)
		if err != nil {
			return nil, err
		}
		if err := runner.Ensure(ctx); err != nil {
			return nil, err
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		repo := postgres.New(pool)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := repo.Ping(pingCtx); err != nil {
			_ = repo.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.DBDriver)
	}
}
