package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/loomhq/loom/internal/adapter/cachedkv"
	loomhttp "github.com/loomhq/loom/internal/adapter/http"
	"github.com/loomhq/loom/internal/adapter/memkv"
	loomnats "github.com/loomhq/loom/internal/adapter/nats"
	"github.com/loomhq/loom/internal/adapter/natskv"
	loomotel "github.com/loomhq/loom/internal/adapter/otel"
	"github.com/loomhq/loom/internal/adapter/postgres"
	"github.com/loomhq/loom/internal/adapter/ristretto"
	"github.com/loomhq/loom/internal/adapter/ws"
	"github.com/loomhq/loom/internal/config"
	"github.com/loomhq/loom/internal/logger"
	"github.com/loomhq/loom/internal/middleware"
	"github.com/loomhq/loom/internal/port/kvstore"
	"github.com/loomhq/loom/internal/service"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return fmt.Errorf("flags: %w", err)
	}

	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Server.Port,
		"backend", cfg.Store.Backend,
		"log_level", cfg.Logging.Level,
	)

	ctx := context.Background()

	// --- Telemetry ---
	telemetryShutdown, err := loomotel.Setup(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetryShutdown(shutdownCtx)
	}()

	// --- Infrastructure ---

	// NATS
	queue, err := loomnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()
	slog.Info("nats connected", "url", cfg.NATS.URL)

	// Key-value store
	db, dbClose, err := openStore(ctx, cfg, queue)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer dbClose()

	// Read-through cache in front of the store
	if cfg.Cache.Enabled {
		c, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
		if err != nil {
			return fmt.Errorf("cache: %w", err)
		}
		defer c.Close()
		db = cachedkv.New(db, c, cfg.Cache.TTL)
		slog.Info("store cache enabled", "max_size_mb", cfg.Cache.MaxSizeMB, "ttl", cfg.Cache.TTL)
	}

	// --- Services ---
	hub := ws.NewHub()

	metrics, err := loomotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	manager := service.NewManager(db, queue, log, service.ManagerOptions{
		Events:             hub,
		Metrics:            metrics,
		Debug:              cfg.Workspace.Debug,
		EraseParallelism:   cfg.Workspace.EraseParallelism,
		BreakerMaxFailures: cfg.Breaker.MaxFailures,
		BreakerTimeout:     cfg.Breaker.Timeout,
	})

	// --- HTTP ---
	limiter := middleware.NewRateLimiter(cfg.Rate)
	stopCleanup := limiter.StartCleanup(5*time.Minute, 15*time.Minute)
	defer stopCleanup()

	handlers := &loomhttp.Handlers{Workspaces: manager}

	r := chi.NewRouter()

	// Middleware
	r.Use(loomhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(loomhttp.SecurityHeaders)
	r.Use(loomhttp.Logger)
	r.Use(middleware.RequestID)
	r.Use(limiter.Handler)
	r.Use(loomotel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	// Health endpoint with service status
	r.Get("/health", healthHandler(cfg, queue))

	// WebSocket endpoint
	r.Get("/ws", hub.HandleWS)

	// API routes
	loomhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := manager.StopAll(shutdownCtx); err != nil {
		slog.Error("stop workspaces", "error", err)
	}
	if err := queue.Drain(); err != nil {
		slog.Error("drain nats", "error", err)
	}

	return srv.Shutdown(shutdownCtx)
}

// openStore builds the configured key-value engine. The returned close
// function releases backend resources; for memory and nats it is a no-op.
func openStore(ctx context.Context, cfg *config.Config, queue *loomnats.Queue) (kvstore.DB, func(), error) {
	switch cfg.Store.Backend {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		slog.Info("postgres connected, migrations applied")
		return postgres.NewDB(pool), pool.Close, nil

	case "nats":
		db, err := natskv.New(ctx, queue.JetStream(), cfg.NATS.KVBucket)
		if err != nil {
			return nil, nil, fmt.Errorf("nats kv: %w", err)
		}
		slog.Info("nats kv bucket ready", "bucket", cfg.NATS.KVBucket)
		return db, func() {}, nil

	default: // "memory", guarded by config validation
		slog.Warn("using in-memory store, data will not survive restarts")
		return memkv.New(), func() {}, nil
	}
}

// healthHandler returns an http.HandlerFunc that reports service health.
func healthHandler(cfg *config.Config, queue *loomnats.Queue) http.HandlerFunc {
	type healthStatus struct {
		Status  string `json:"status"`
		Backend string `json:"backend"`
		NATS    bool   `json:"nats_connected"`
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		status := healthStatus{
			Status:  "ok",
			Backend: cfg.Store.Backend,
			NATS:    queue.IsConnected(),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status)
	}
}
