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
	"lms-sync/internal/source/googleclassroom"
	"lms-sync/internal/syncdb"
)

func main() {
	cfg, err := config.LoadGoogle()
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

	logger.Info("Starting google-classroom-extractor",
		"base_url", cfg.BaseURL,
		"output_dir", cfg.OutputDir)

	client := googleclassroom.NewClient(cfg.BaseURL, cfg.Token, logger)
	runner := extract.NewRunner(db, cfg.OutputDir, cfg.Features, logger)

	if err := runner.RunGoogle(ctx, client); err != nil {
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
