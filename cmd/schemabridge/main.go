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

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	sbhttp "github.com/schemabridge/schemabridge/internal/adapter/http"
	"github.com/schemabridge/schemabridge/internal/adapter/mcp"
	sbnats "github.com/schemabridge/schemabridge/internal/adapter/nats"
	"github.com/schemabridge/schemabridge/internal/adapter/natskv"
	"github.com/schemabridge/schemabridge/internal/adapter/otel"
	sbregistry "github.com/schemabridge/schemabridge/internal/adapter/registry"
	"github.com/schemabridge/schemabridge/internal/adapter/ristretto"
	"github.com/schemabridge/schemabridge/internal/adapter/tiered"
	"github.com/schemabridge/schemabridge/internal/adapter/ws"
	"github.com/schemabridge/schemabridge/internal/config"
	"github.com/schemabridge/schemabridge/internal/logger"
	"github.com/schemabridge/schemabridge/internal/middleware"
	"github.com/schemabridge/schemabridge/internal/port/cache"
	"github.com/schemabridge/schemabridge/internal/port/eventbus"
	"github.com/schemabridge/schemabridge/internal/port/registry"
	"github.com/schemabridge/schemabridge/internal/resilience"
	"github.com/schemabridge/schemabridge/internal/service"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	slog.SetDefault(logger.New(cfg.Logging))

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"mcp_addr", cfg.MCP.Addr,
		"log_level", cfg.Logging.Level,
		"registries", len(cfg.Registries),
	)

	ctx := context.Background()

	// --- Infrastructure ---

	// OpenTelemetry
	otelShutdown, err := otel.Setup(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(shutdownCtx)
	}()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// NATS (optional)
	var bus eventbus.Publisher
	var natsBus *sbnats.Bus
	if cfg.NATS.Enabled {
		natsBus, err = sbnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = natsBus.Close() }()
		bus = natsBus
	}

	// Schema cache: in-process ristretto, layered over a shared NATS KV
	// bucket when NATS is available.
	memCache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer memCache.Close()

	var schemaCache cache.Cache = memCache
	if natsBus != nil {
		kv, err := natsBus.SchemaKV(ctx, cfg.Cache.SchemaTTL)
		if err != nil {
			return fmt.Errorf("nats kv: %w", err)
		}
		schemaCache = tiered.New(memCache, natskv.New(kv), cfg.Cache.SchemaTTL)
	}

	// Registry clients, one breaker each so a flapping registry cannot
	// open the circuit for the others.
	registries := registry.NewSet()
	for _, rc := range cfg.Registries {
		breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
		client := sbregistry.New(sbregistry.Config{
			Name:     rc.Name,
			URL:      rc.URL,
			Username: rc.Username,
			Password: rc.Password,
			ReadOnly: rc.ReadOnly,
			Timeout:  cfg.Tasks.CallTimeout,
		}, breaker, schemaCache, cfg.Cache.SchemaTTL)
		registries.Add(client)
		slog.Info("registry configured", "name", rc.Name, "url", rc.URL, "read_only", rc.ReadOnly)
	}

	// --- Services ---
	hub := ws.NewHub()
	tasks := service.NewTaskRegistry(hub, bus, metrics)
	migrationSvc := service.NewMigrationService(registries, tasks, cfg.Tasks.MigrateConcurrency, metrics)
	batchSvc := service.NewBatchService(registries, tasks, cfg.Tasks.BatchConcurrency, metrics)
	statsSvc := service.NewStatsService(registries, tasks, cfg.Tasks.StatsConcurrency)
	compareSvc := service.NewCompareService(registries)

	// --- MCP ---
	mcpSrv := mcp.NewServer(mcp.ServerConfig{
		Addr:    cfg.MCP.Addr,
		Name:    cfg.MCP.Name,
		Version: cfg.MCP.Version,
		APIKey:  cfg.MCP.APIKey,
	}, mcp.ServerDeps{
		Registries: registries,
		Migrator:   migrationSvc,
		Batch:      batchSvc,
		Stats:      statsSvc,
		Comparator: compareSvc,
		Tasks:      tasks,
	})
	if err := mcpSrv.Start(); err != nil {
		return fmt.Errorf("mcp: %w", err)
	}

	// --- Admin HTTP ---
	handlers := &sbhttp.Handlers{
		Tasks:      tasks,
		Registries: registries,
		Version:    cfg.MCP.Version,
	}

	r := chi.NewRouter()

	r.Use(sbhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(middleware.RequestID)
	r.Use(sbhttp.Logger)
	r.Use(sbhttp.SecurityHeaders)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	if cfg.Server.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
		stopCleanup := limiter.StartCleanup(time.Minute, 10*time.Minute)
		defer stopCleanup()
		r.Use(limiter.Handler)
	}

	r.Get("/health", handlers.Health)
	r.Get("/ws", hub.HandleWS)

	sbhttp.MountRoutes(r, handlers)

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
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := mcpSrv.Stop(shutdownCtx); err != nil {
		slog.Error("mcp shutdown failed", "error", err)
	}
	return srv.Shutdown(shutdownCtx)
}
