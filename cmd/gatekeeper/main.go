package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gatekeeper/internal/admission"
	"gatekeeper/internal/api"
	"gatekeeper/internal/auth"
	"gatekeeper/internal/block"
	"gatekeeper/internal/clientip"
	"gatekeeper/internal/config"
	"gatekeeper/internal/counter"
	"gatekeeper/internal/logger"
	"gatekeeper/internal/models"
	"gatekeeper/internal/observability"
	"gatekeeper/internal/ratelimit"
	"gatekeeper/internal/storage"
	"gatekeeper/internal/suspension"
	"gatekeeper/internal/version"

	"go.opentelemetry.io/otel"
)

var (
	configFile  = flag.String("config", "", "Path to configuration file")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// reporterOps bounds one failure recording, which takes a few backend calls.
const reporterOps = 4

func main() {
	flag.Parse()

	ver := version.GetInfo()
	if *showVersion {
		fmt.Println(ver.String())
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logging
	log, closer, err := logger.Setup(cfg.Logging, ver)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	if err := run(cfg, ver, log); err != nil {
		slog.Error("Gatekeeper stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *models.Config, ver version.Info, log *slog.Logger) error {
	ctx := context.Background()

	otelProvider, err := observability.Setup(ctx, cfg, ver)
	if err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	backend, err := counter.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize counter backend: %w", err)
	}
	defer backend.Close()

	store, err := initializeStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	blocks := block.NewStore(backend, block.PolicyFromConfig(cfg.Blocking), block.WithLogger(log))
	reporter := block.NewFailureReporter(blocks,
		block.ReporterConfigFrom(cfg.Blocking, reporterOps*cfg.Redis.OperationTimeout, log))
	// Drain pending failure reports before the backend closes.
	defer reporter.Close()

	provider, err := auth.NewJWTProvider(ctx, cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialize auth provider: %w", err)
	}

	suspensions := suspension.NewGate(store, backend,
		suspension.WithCacheTTL(cfg.Suspension.CacheTTL),
		suspension.WithLogger(log),
	)

	pipelineOpts := []admission.Option{
		admission.WithPolicy(ratelimit.PolicyFromConfig(cfg.RateLimit)),
		admission.WithRateLimiting(cfg.RateLimit.Enabled),
		admission.WithLogger(log),
	}
	if cfg.Metrics.Enabled {
		decisions, err := observability.NewAdmissionMetrics(otel.Meter("gatekeeper/admission"))
		if err != nil {
			return fmt.Errorf("failed to create admission metrics: %w", err)
		}
		pipelineOpts = append(pipelineOpts, admission.WithRecorder(decisions))
	}

	pipeline := admission.New(
		clientip.NewResolver(cfg.ClientIP),
		blocks,
		ratelimit.NewLimiter(backend, ratelimit.WithLogger(log)),
		auth.NewGate(provider, reporter, auth.WithLogger(log)),
		suspensions,
		pipelineOpts...,
	)

	handlers := api.NewHandlers(blocks, suspensions,
		api.WithAdminRole(cfg.Auth.AdminRole),
		api.WithVersion(ver.Version),
		api.WithStorage(store),
		api.WithCounterBackend(backend),
	)

	// Setup routes with middleware
	routeOpts := []api.RouteOption{}
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}
	router := api.SetupRoutes(handlers, pipeline, routeOpts...)

	// Start metrics server if enabled
	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, otelProvider)
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "addr", server.Addr, "storage", cfg.Storage.Type, "redis", cfg.Redis.Configured())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	slog.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server shutdown complete")
	return nil
}

// initializeStorage opens the configured suspension store, instrumented when
// metrics are enabled.
func initializeStorage(ctx context.Context, cfg *models.Config) (storage.Storage, error) {
	store, err := storage.NewFactory().Create(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	if !cfg.Metrics.Enabled {
		return store, nil
	}

	instrumented, err := observability.NewInstrumentedStorage(store)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to instrument storage: %w", err)
	}
	return instrumented, nil
}
