// Package main is the entry point for the cross-exchange arbitrage bot.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fd1az/crossarb/business/arbitrage"
	"github.com/fd1az/crossarb/business/funds"
	"github.com/fd1az/crossarb/business/ledger"
	"github.com/fd1az/crossarb/business/venue"
	"github.com/fd1az/crossarb/internal/apm"
	"github.com/fd1az/crossarb/internal/config"
	"github.com/fd1az/crossarb/internal/health"
	"github.com/fd1az/crossarb/internal/logger"
	"github.com/fd1az/crossarb/internal/metrics"
	"github.com/fd1az/crossarb/internal/monolith"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

const shutdownTimeout = 5 * time.Second

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	once := flag.Bool("once", false, "Run a single tick and exit")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("crossarb %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		cancel()
	}()

	if err := run(ctx, *configPath, *once); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, once bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(os.Stderr, logLevel(cfg.App.LogLevel), cfg.App.Name, nil)
	log.Info(ctx, "starting crossarb",
		"version", version,
		"environment", cfg.App.Environment,
		"venues", len(cfg.Venues),
	)

	if cfg.Telemetry.Enabled {
		stop, err := startTelemetry(ctx, cfg.Telemetry, log)
		if err != nil {
			return err
		}
		defer stop()
	}

	var hs *health.Server
	if !once {
		hs = health.NewServer(cfg.Health.Port, version)
		hs.Start(func(err error) {
			log.Warn(ctx, "health server stopped", "error", err)
		})
		log.Info(ctx, "health server started", "port", cfg.Health.Port)
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			hs.Stop(stopCtx)
		}()
	}

	mono, err := monolith.New(ctx, cfg, log, hs)
	if err != nil {
		return fmt.Errorf("failed to create monolith: %w", err)
	}
	defer mono.Close()

	// Define modules in dependency order
	modules := []monolith.Module{
		&venue.Module{},
		&ledger.Module{},
		&funds.Module{},
		&arbitrage.Module{Once: once},
	}

	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}

	if err := mono.StartModules(ctx, modules...); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}

	if once {
		log.Info(ctx, "single tick complete")
		return nil
	}

	<-ctx.Done()
	log.Info(ctx, "shutting down")
	return nil
}

func startTelemetry(ctx context.Context, tc config.TelemetryConfig, log logger.LoggerInterface) (func(), error) {
	tp, err := apm.NewTraceProvider(ctx, apm.Config{
		ServiceName: tc.ServiceName,
		Provider:    apm.Provider(tc.TraceProvider),
		Endpoint:    tc.OTLPEndpoint,
		Headers:     tc.OTLPHeaders,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}

	mp, err := metrics.NewMetricProvider(ctx,
		metrics.WithServiceName(tc.ServiceName),
		metrics.WithProviderConfig(metrics.ProviderCfg{
			Provider: metrics.PrometheusProvider,
		}),
	)
	if err != nil {
		tp.Stop()
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}

	prom := metrics.NewPrometheusServer(tc.PrometheusPort, nil)
	prom.Start(func(err error) {
		log.Warn(ctx, "prometheus server stopped", "error", err)
	})
	log.Info(ctx, "prometheus metrics server started", "port", tc.PrometheusPort)

	return func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		prom.Stop(stopCtx)
		mp.Shutdown(stopCtx)
		tp.Stop()
	}, nil
}

func logLevel(s string) logger.Level {
	switch strings.ToLower(s) {
	case "debug":
		return logger.LevelDebug
	case "warn":
		return logger.LevelWarn
	case "error":
		return logger.LevelError
	}
	return logger.LevelInfo
}
