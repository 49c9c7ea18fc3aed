package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"lms-sync/internal/config"
	"lms-sync/internal/loader"
	"lms-sync/internal/metrics"
)

func main() {
	cfg, err := config.LoadLoader()
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

	logger.Info("Starting lms-ds-loader",
		"engine", cfg.Engine,
		"server", cfg.Server,
		"database", cfg.Database,
		"csv_dir", cfg.CSVDir)

	l, err := loader.Open(cfg, logger)
	if err != nil {
		logger.Error("Failed to connect to the ODS", "error", err)
		os.Exit(1)
	}
	defer l.Close()

	if err := l.LoadAll(ctx, cfg.CSVDir); err != nil {
		logger.Error("Load failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Load complete")
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
