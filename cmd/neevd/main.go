package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"

	"github.com/ssntpl/neev/internal/domain"
	httpx "github.com/ssntpl/neev/internal/http"
	"github.com/ssntpl/neev/internal/repository"
	"github.com/ssntpl/neev/internal/repository/postgres"
	"github.com/ssntpl/neev/internal/service/auth"
	"github.com/ssntpl/neev/internal/service/password"
	"github.com/ssntpl/neev/internal/service/tenant"
	"github.com/ssntpl/neev/internal/tenancy"
	"github.com/ssntpl/neev/pkg/config"
	"github.com/ssntpl/neev/pkg/logger"
)

func main() {
	cfg := config.LoadConfig()
	log := logger.New("neev", slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to configure database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pingUntilReady(ctx, log, pool.Ping); err != nil {
		log.Error("database unreachable", "error", err)
		os.Exit(1)
	}

	scoper := tenancy.NewScoper(cfg.TenantsEnabled, cfg.TeamsEnabled)
	repo := postgres.New(pool, scoper)

	store, closeStore := attemptStore(cfg, log)
	defer closeStore()

	throttle := auth.NewThrottle(store, log, cfg.SoftFailAttempts, cfg.HardFailAttempts, cfg.LoginBlockMinutes)
	policy := password.New(repo, repo, repo, log, cfg)
	authSvc := auth.New(repo, repo, repo, throttle, policy, log, cfg)
	tenantSvc := tenant.New(repo, repo, repo, log, cfg)

	var tenantRes *tenancy.Resolver[*domain.Tenant]
	if cfg.TenantsEnabled {
		tenantRes = tenancy.NewResolver[*domain.Tenant](repository.TenantDirectory{Tenants: repo}, cfg.TenantRequired)
	}
	var teamRes *tenancy.Resolver[*domain.Team]
	if cfg.TeamsEnabled {
		teamRes = tenancy.NewResolver[*domain.Team](repository.TeamDirectory{Teams: repo}, false)
	}

	router := httpx.NewRouter(log, authSvc, tenantSvc, tenantRes, teamRes, store, cfg, pool.Ping)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", cfg.Addr, "env", cfg.Environment)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

// pingUntilReady retries the ping with fibonacci backoff so the service
// survives the database coming up after it in orchestrated environments.
func pingUntilReady(ctx context.Context, log *slog.Logger, ping func(context.Context) error) error {
	backoff := retry.WithMaxRetries(6, retry.NewFibonacci(500*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := ping(ctx); err != nil {
			log.Warn("waiting for database", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}

// attemptStore selects the throttle and rate-limit backend. Redis keeps
// counters shared across replicas; the in-memory store is for single-node
// and development runs.
func attemptStore(cfg config.Config, log *slog.Logger) (auth.AttemptStore, func()) {
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		store, closeFn, err := auth.NewRedisAttemptStore(addr, cfg.RedisPassword, cfg.RedisDB, log)
		if err == nil {
			return store, closeFn
		}
		log.Warn("redis attempt store unavailable, falling back to memory", "error", err)
	}
	return auth.NewMemoryAttemptStore()
}
