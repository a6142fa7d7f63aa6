// Command reviewrepl runs the ReviewRepl.ai job API and workers.
//
// Subcommands:
//
//	serve    HTTP API (submit, poll, list jobs); applies migrations first
//	worker   job poll loop only
//	migrate  apply pending database migrations and exit
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/reviewreplai/reviewrepl/internal/ai"
	"github.com/reviewreplai/reviewrepl/internal/api"
	"github.com/reviewreplai/reviewrepl/internal/api/handler"
	mw "github.com/reviewreplai/reviewrepl/internal/api/middleware"
	"github.com/reviewreplai/reviewrepl/internal/cache"
	"github.com/reviewreplai/reviewrepl/internal/config"
	"github.com/reviewreplai/reviewrepl/internal/jobs"
	"github.com/reviewreplai/reviewrepl/internal/metrics"
	"github.com/reviewreplai/reviewrepl/internal/store"
	"github.com/reviewreplai/reviewrepl/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	slog.SetDefault(newLogger("info"))

	if err := rootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "reviewrepl",
		Short:         "ReviewRepl.ai asynchronous job service",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.AddCommand(serveCmd(), workerCmd(), migrateCmd())
	return root
}

// loadConfig reads .env (if present) and the environment, then installs a
// logger at the configured level.
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	return cfg, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// ── serve ────────────────────────────────────────────────────────────────────

func serveCmd() *cobra.Command {
	var embedded bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), embedded)
		},
	}
	cmd.Flags().BoolVar(&embedded, "embedded-worker", false,
		"also run a job worker in this process (always on with DATABASE_URL=memory://)")
	return cmd
}

func runServe(parent context.Context, embedded bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	slog.Info("config loaded", "ai_provider", cfg.AI.Provider, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore()

	if !cfg.Database.InMemory() {
		version, err := store.RunMigrations(cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		slog.Info("database migrations applied", "version", version)
	}

	redisCache, err := openCache(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer redisCache.Close()

	m := metrics.New(prometheus.DefaultRegisterer)
	svc := jobs.NewService(st, redisCache, redisCache, m)

	router := api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(cfg.Auth.JWTSecret, cfg.Auth.JWTAudience),
		RateLimit: mw.NewRateLimit(redisCache, cfg.Server.RateLimitPerMinute),

		HealthHandler: handler.NewHealthHandler(st, redisCache),
		SubmitJob:     handler.NewSubmitJobHandler(svc),
		GetJob:        handler.NewGetJobHandler(svc),
		ListJobs:      handler.NewListJobsHandler(svc),
		Metrics:       promhttp.Handler(),
	})

	workerDone := make(chan error, 1)
	if embedded || cfg.Database.InMemory() {
		w, err := newWorker(ctx, cfg, st, redisCache, m)
		if err != nil {
			return err
		}
		go func() { workerDone <- w.Run(ctx) }()
	} else {
		close(workerDone)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if err := serveUntilDone(ctx, srv); err != nil {
		return err
	}
	if err := <-workerDone; err != nil {
		return fmt.Errorf("embedded worker: %w", err)
	}
	slog.Info("server stopped gracefully")
	return nil
}

// serveUntilDone runs srv until ctx is cancelled or the listener fails,
// then drains connections for up to shutdownTimeout.
func serveUntilDone(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...", "addr", srv.Addr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// ── worker ───────────────────────────────────────────────────────────────────

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Start a job worker (no API server)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context())
		},
	}
}

func runWorker(parent context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.InMemory() {
		return errors.New("worker needs a shared database; use serve for DATABASE_URL=memory://")
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore()

	redisCache, err := openCache(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer redisCache.Close()

	m := metrics.New(prometheus.DefaultRegisterer)
	w, err := newWorker(ctx, cfg, st, redisCache, m)
	if err != nil {
		return err
	}

	metricsDone := make(chan error, 1)
	if cfg.Worker.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{
			Addr:              cfg.Worker.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() { metricsDone <- serveUntilDone(ctx, srv) }()
	} else {
		close(metricsDone)
	}

	if err := w.Run(ctx); err != nil {
		return err
	}
	if err := <-metricsDone; err != nil {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// newWorker builds a Worker with the configured AI provider and subscribes
// it to job-created notifications. A failed subscription only costs
// latency; the worker still polls.
func newWorker(ctx context.Context, cfg *config.Config, st store.Store, rc *cache.RedisCache, m *metrics.Metrics) (*worker.Worker, error) {
	provider, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("create AI provider: %w", err)
	}
	slog.Info("AI provider initialized", "provider", provider.Name())

	w := worker.New(st, jobs.NewDispatcher(provider), workerConfig(cfg.Worker), m)

	wake, err := rc.SubscribeJobCreated(ctx)
	if err != nil {
		slog.Warn("job notifications unavailable, polling only", "worker_id", w.ID(), "error", err)
	} else {
		w.SetWakeup(wake)
	}
	return w, nil
}

func workerConfig(c config.WorkerConfig) worker.Config {
	return worker.Config{
		ID:             c.ID,
		PollInterval:   c.PollInterval,
		BatchSize:      c.BatchSize,
		HandlerTimeout: c.HandlerTimeout,
		Lease:          c.Lease(),
		ReapInterval:   c.ReapInterval,
		MaxAttempts:    c.MaxAttempts,
	}
}

// ── migrate ──────────────────────────────────────────────────────────────────

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Database.InMemory() {
				return errors.New("migrate needs a postgres DATABASE_URL")
			}
			version, err := store.RunMigrations(cfg.Database.URL)
			if err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			slog.Info("migrations applied", "version", version)
			return nil
		},
	}
}

// ── dependencies ─────────────────────────────────────────────────────────────

// openStore returns the configured job store.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, func(), error) {
	if cfg.InMemory() {
		slog.Warn("using in-memory job store; jobs are lost on restart")
		return store.NewMemoryStore(), func() {}, nil
	}

	pool, err := store.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return store.NewPostgresStore(pool), pool.Close, nil
}

func openCache(ctx context.Context, cfg config.RedisConfig) (*cache.RedisCache, error) {
	rc, err := cache.NewRedisCache(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("create redis cache: %w", err)
	}
	if err := rc.Ping(ctx); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")
	return rc, nil
}
