// crewproxy is the HTTP API server that proxies judging work to remote
// CrewAI deployments, persisting kickoff handles so long-running jobs
// survive the synchronous request that started them.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crewproxy/internal/api"
	"crewproxy/internal/apperrors"
	"crewproxy/internal/config"
	"crewproxy/internal/health"
	"crewproxy/internal/invoker"
	"crewproxy/internal/job"
	"crewproxy/internal/observability"
	"crewproxy/internal/registry"
	"crewproxy/internal/remote"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Load configuration
	config.LoadEnvFile()
	cfg := config.LoadServiceConfig()

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return apperrors.Internal("observability.init", err)
	}

	// Open the kickoff registry (survives restarts)
	store := registry.Open(cfg.RegistryPath, metrics)
	slog.Info("Kickoff registry loaded", "path", cfg.RegistryPath, "records", len(store.All()))

	// Create the orchestration core
	client := remote.NewClient(cfg.RemoteTimeout)
	inv := invoker.New(client, invoker.DefaultPolicy(), metrics)
	core := job.New(inv, store, metrics, job.Config{
		PollInterval: cfg.PollInterval,
		MaxTicks:     cfg.PollMaxTicks,
	})

	// Create health checker
	healthChecker := health.NewChecker(cfg)

	for jobType, configured := range cfg.ConfiguredTypes() {
		if !configured {
			slog.Warn("Job type has no configured deployment", "apiType", jobType)
		}
	}

	// Create API router
	router := api.NewRouter(api.RouterConfig{
		Core:          core,
		Config:        cfg,
		Metrics:       metrics,
		HealthChecker: healthChecker,
	})

	if cfg.APIKey != "" {
		slog.Info("Administrative API authentication enabled")
	} else {
		slog.Warn("Administrative API authentication disabled - no API_KEY_FILE configured")
	}

	// Create API server. Write timeout must cover a full poll budget:
	// submissions block until the remote finishes or the budget expires.
	waitBudget := time.Duration(cfg.PollMaxTicks) * cfg.PollInterval
	apiServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: waitBudget + cfg.RemoteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Create metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + cfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Channel to capture server errors
	serverErr := make(chan error, 1)

	// Start API server
	go func() {
		slog.Info("Starting API server", "port", cfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Start metrics server
	go func() {
		slog.Info("Starting metrics server", "port", cfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// shutdown closes both servers gracefully
	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	// Wait for interrupt signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		return err
	}

	// Phase 1: Mark service as unhealthy for load balancer draining
	healthChecker.SetShuttingDown()

	// Wait for load balancers to stop sending traffic
	if cfg.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", cfg.ShutdownDrainWait)
		time.Sleep(cfg.ShutdownDrainWait)
	}

	// Phase 2: Graceful shutdown - stop accepting new connections, finish
	// in-flight requests. In-flight submissions whose wait budget has not
	// expired are cut short; their handles stay in the registry and can be
	// resumed after restart.
	slog.Info("Starting graceful shutdown")
	shutdown(25 * time.Second)

	slog.Info("Shutdown complete", "records", len(store.All()))
	return nil
}
