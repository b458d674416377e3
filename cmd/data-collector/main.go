// Package main is the entry point for the data collector. It loads the
// configuration, builds the configured resolvers, runs the collection loop
// and serves the results as Prometheus metrics until it is stopped.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/Guliveer/vitalis/data-collector/internal/cache"
	"github.com/Guliveer/vitalis/data-collector/internal/config"
	"github.com/Guliveer/vitalis/data-collector/internal/exporter"
	"github.com/Guliveer/vitalis/data-collector/internal/report"
	"github.com/Guliveer/vitalis/data-collector/internal/resolver"
	"github.com/Guliveer/vitalis/data-collector/internal/scheduler"
	"github.com/Guliveer/vitalis/data-collector/internal/service"
)

var (
	// version is set at build time via -ldflags.
	version = "dev"

	configPath  = flag.String("config", "", "Path to configuration file (searched in standard locations if empty)")
	showVersion = flag.Bool("version", false, "Show version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("data-collector %s\n", version)
		os.Exit(0)
	}

	path := *configPath
	if path == "" {
		path = config.Locate()
	}

	// A .env file next to the config file fills variables not set by the shell.
	var envFile string
	if path != "" {
		envFile = filepath.Join(filepath.Dir(path), ".env")
		loaded, err := config.LoadEnvFile(envFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load env file: %v\n", err)
			os.Exit(1)
		}
		if !loaded {
			envFile = ""
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)
	defer logger.Sync()

	logger.Info("Starting data collector",
		zap.String("version", version),
		zap.String("config", path))
	if envFile != "" {
		logger.Info("Loaded .env file", zap.String("file", envFile))
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	svc := service.New(logger, func(ctx context.Context) error {
		return run(ctx, cfg, logger)
	})
	if err := svc.Run(); err != nil {
		logger.Fatal("Collector failed", zap.Error(err))
	}
	logger.Info("Collector stopped")
}

// run wires all components and blocks until ctx is cancelled or one of the
// long-running parts fails.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	opts := resolver.BuiltinOptions{}
	reports, err := report.New(cfg.Traceroute.ReportDir, cfg.Traceroute.MaxReports, logger.Named("report"))
	if err != nil {
		logger.Warn("Traceroute reports disabled",
			zap.String("dir", cfg.Traceroute.ReportDir),
			zap.Error(err))
	} else {
		opts.Reports = reports
	}

	registry := resolver.NewRegistry(logger)
	if err := resolver.RegisterBuiltins(registry, opts); err != nil {
		return err
	}

	servers, err := resolver.BuildServers(registry, cfg.Servers)
	if err != nil {
		return fmt.Errorf("building resolvers: %w", err)
	}

	results := cache.New()
	sched := scheduler.New(servers, results, cfg.Global.RunInterval.Duration, logger.Named("scheduler"))

	metrics := prometheus.NewRegistry()
	if err := metrics.Register(exporter.New(results, logger.Named("exporter"))); err != nil {
		return fmt.Errorf("registering exporter: %w", err)
	}
	if err := sched.Register(metrics); err != nil {
		return err
	}
	srv := exporter.NewServer(cfg.Metrics.Address, metrics, logger.Named("http"))

	for _, s := range servers {
		ids := make([]string, 0, len(s.Resolvers))
		for _, r := range s.Resolvers {
			ids = append(ids, r.ID())
		}
		logger.Info("Monitoring server",
			zap.String("server", s.Hostname),
			zap.Strings("resolvers", ids))
	}
	logger.Info("Collector running",
		zap.Duration("run_interval", cfg.Global.RunInterval.Duration),
		zap.String("metrics_address", cfg.Metrics.Address))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Start(ctx) })
	g.Go(func() error { return srv.ListenAndServe(ctx) })
	return g.Wait()
}

// initLogger creates a zap logger based on the configuration.
// It outputs to both console (human-readable) and optionally a JSON log file.
func initLogger(cfg *config.Config) *zap.Logger {
	var level zapcore.Level
	switch cfg.Logging.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig),
			zapcore.AddSync(os.Stdout),
			level,
		),
	}

	if cfg.Logging.File != "" {
		file, err := os.OpenFile(cfg.Logging.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cannot open log file %s: %v\n", cfg.Logging.File, err)
		} else {
			cores = append(cores, zapcore.NewCore(
				zapcore.NewJSONEncoder(encoderConfig),
				zapcore.AddSync(file),
				level,
			))
		}
	}

	return zap.New(zapcore.NewTee(cores...))
}
