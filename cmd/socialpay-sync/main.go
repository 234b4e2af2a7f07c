// Package main is the entry point for the socialpay chain state sync service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fd1az/socialpay-sync/business/chainsync"
	"github.com/fd1az/socialpay-sync/internal/apm"
	"github.com/fd1az/socialpay-sync/internal/config"
	"github.com/fd1az/socialpay-sync/internal/health"
	"github.com/fd1az/socialpay-sync/internal/logger"
	"github.com/fd1az/socialpay-sync/internal/metrics"
	"github.com/fd1az/socialpay-sync/internal/monolith"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("socialpay-sync %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.NewWithFormat(os.Stderr, logger.Format(cfg.App.LogFormat), logger.ParseLevel(cfg.App.LogLevel), cfg.App.Name, nil)
	log.Info(ctx, "starting socialpay-sync",
		"version", version,
		"environment", cfg.App.Environment,
		"provider", cfg.Chain.Provider,
		"storage", cfg.Storage.Driver,
	)

	shutdownTelemetry, err := setupTelemetry(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer shutdownTelemetry()

	healthServer := health.NewServer(cfg.HTTP.Port, version, log)

	mono, err := monolith.New(ctx, cfg, log, healthServer)
	if err != nil {
		return fmt.Errorf("failed to create monolith: %w", err)
	}
	defer func() {
		if err := mono.Close(); err != nil {
			log.Error(context.Background(), "error closing services", "error", err)
		}
	}()

	syncModule := &chainsync.Module{}
	modules := []monolith.Module{syncModule}

	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}
	if err := mono.StartModules(ctx, modules...); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}

	// Routes are mounted during module startup, so serve afterwards.
	if err := healthServer.Start(); err != nil {
		return fmt.Errorf("failed to start http server: %w", err)
	}
	log.Info(ctx, "http server started", "port", cfg.HTTP.Port)

	<-ctx.Done()
	log.Info(context.Background(), "shutting down")

	if err := syncModule.Shutdown(mono); err != nil {
		log.Error(context.Background(), "error stopping scheduler", "error", err)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := healthServer.Stop(stopCtx); err != nil {
		log.Warn(stopCtx, "http server shutdown", "error", err)
	}
	return nil
}

// setupTelemetry installs the tracer and meter providers when telemetry is enabled.
func setupTelemetry(ctx context.Context, cfg *config.Config, log logger.LoggerInterface) (func(), error) {
	if !cfg.Telemetry.Enabled {
		return func() {}, nil
	}

	serviceName := cfg.Telemetry.ServiceName
	if serviceName == "" {
		serviceName = cfg.App.Name
	}

	traceProvider := apm.NewTraceProvider(
		apm.WithServiceName(serviceName),
		apm.WithProvider(apm.ParseProvider(cfg.Telemetry.TraceProvider), cfg.Telemetry.OTLPEndpoint, log),
	)
	log.Info(ctx, "tracing initialized", "provider", cfg.Telemetry.TraceProvider, "endpoint", cfg.Telemetry.OTLPEndpoint)

	meterProvider, err := metrics.NewMetricProvider(
		metrics.WithServiceName(serviceName),
		metrics.WithProviderConfig(metrics.ProviderCfg{Provider: metrics.PrometheusProvider}),
	)
	if err != nil {
		_ = traceProvider.Stop()
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}

	promServer := metrics.NewPrometheusServer(cfg.Telemetry.PrometheusPort, nil, log)
	promServer.Start()

	return func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := promServer.Stop(stopCtx); err != nil {
			log.Warn(stopCtx, "metrics server shutdown", "error", err)
		}
		if err := meterProvider.Shutdown(stopCtx); err != nil {
			log.Warn(stopCtx, "meter provider shutdown", "error", err)
		}
		if err := traceProvider.Stop(); err != nil {
			log.Warn(stopCtx, "trace provider shutdown", "error", err)
		}
	}, nil
}
