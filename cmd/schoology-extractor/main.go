package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"lms-sync/internal/config"
	"lms-sync/internal/extract"
	"lms-sync/internal/metrics"
	"lms-sync/internal/source/schoology"
	"lms-sync/internal/syncdb"
)

func main() {
	cfg, err := config.LoadSchoology()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if cfg.MetricsPort > 0 {
		metrics.Serve(cfg.MetricsPort, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := syncdb.Open(cfg.SyncDir)
	if err != nil {
		logger.Error("Failed to open sync store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	logger.Info("Starting schoology-extractor",
		"base_url", cfg.BaseURL,
		"output_dir", cfg.OutputDir)

	client := schoology.NewClient(cfg.BaseURL, cfg.Key, cfg.Secret, logger)

	// Usage analytics arrive as file drops, not API responses. No drop
	// directory means no system activities for this source.
	var usage *schoology.UsageReader
	if cfg.UsageDir != "" {
		usage = schoology.NewUsageReader(cfg.UsageDir, db, logger)
	}

	runner := extract.NewRunner(db, cfg.OutputDir, cfg.Features, logger)

	if err := runner.RunSchoology(ctx, client, usage); err != nil {
		if errors.Is(err, extract.ErrRunHadFailures) {
			logger.Error("Run finished with failures")
		} else {
			logger.Error("Run aborted", "error", err)
		}
		os.Exit(1)
	}

	logger.Info("Run complete")
}

func newLogger(level string) *slog.Logger {
	logLevel := slog.LevelInfo
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
}
