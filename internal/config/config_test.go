package config

import (
	"os"
	"strings"
	"testing"
)

var configEnvVars = []string{
	"SYNC_DATABASE_DIRECTORY", "OUTPUT_DIRECTORY", "LOG_LEVEL", "METRICS_PORT",
	"FEATURE_ASSIGNMENTS", "FEATURE_GRADES", "FEATURE_ATTENDANCE", "FEATURE_ACTIVITIES",
	"CANVAS_BASE_URL", "CANVAS_ACCESS_TOKEN", "CANVAS_ACCOUNT", "START_DATE", "END_DATE",
	"CLASSROOM_BASE_URL", "CLASSROOM_ACCESS_TOKEN",
	"SCHOOLOGY_BASE_URL", "SCHOOLOGY_KEY", "SCHOOLOGY_SECRET", "SCHOOLOGY_USAGE_DIRECTORY",
	"CSV_PATH", "DB_ENGINE", "DB_SERVER", "DB_PORT", "DB_NAME", "DB_USERNAME", "DB_PASSWORD",
}

func setTestEnv(t *testing.T, vars map[string]string) {
	t.Helper()
	for _, key := range configEnvVars {
		os.Unsetenv(key)
	}
	for key, value := range vars {
		t.Setenv(key, value)
	}
}

func TestLoadCanvasWithDefaults(t *testing.T) {
	setTestEnv(t, map[string]string{
		"CANVAS_BASE_URL":     "https://canvas.example.edu",
		"CANVAS_ACCESS_TOKEN": "tok",
	})

	cfg, err := LoadCanvas()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Account != "self" {
		t.Errorf("Expected default account 'self', got %s", cfg.Account)
	}
	if cfg.SyncDir != "./data/sync" {
		t.Errorf("Expected default sync dir, got %s", cfg.SyncDir)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level 'info', got %s", cfg.LogLevel)
	}
	if cfg.MetricsPort != 0 {
		t.Errorf("Expected metrics disabled by default, got port %d", cfg.MetricsPort)
	}
	if cfg.Features.Assignments || cfg.Features.Activities {
		t.Errorf("Expected features off by default, got %+v", cfg.Features)
	}
}

func TestLoadCanvasCollectsAllMissingVars(t *testing.T) {
	setTestEnv(t, nil)

	_, err := LoadCanvas()
	if err == nil {
		t.Fatal("Expected error for missing required variables")
	}
	if !strings.Contains(err.Error(), "CANVAS_BASE_URL") || !strings.Contains(err.Error(), "CANVAS_ACCESS_TOKEN") {
		t.Errorf("Expected both missing variables in error, got: %v", err)
	}
}

func TestLoadCanvasFeatureFlags(t *testing.T) {
	setTestEnv(t, map[string]string{
		"CANVAS_BASE_URL":     "https://canvas.example.edu",
		"CANVAS_ACCESS_TOKEN": "tok",
		"FEATURE_ASSIGNMENTS": "true",
		"FEATURE_ACTIVITIES":  "true",
	})

	cfg, err := LoadCanvas()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if !cfg.Features.Assignments || !cfg.Features.Activities {
		t.Errorf("Expected assignments and activities on, got %+v", cfg.Features)
	}
	if cfg.Features.Grades || cfg.Features.Attendance {
		t.Errorf("Expected grades and attendance off, got %+v", cfg.Features)
	}
}

func TestLoadCanvasInvalidLogLevel(t *testing.T) {
	setTestEnv(t, map[string]string{
		"CANVAS_BASE_URL":     "https://canvas.example.edu",
		"CANVAS_ACCESS_TOKEN": "tok",
		"LOG_LEVEL":           "verbose",
	})

	_, err := LoadCanvas()
	if err == nil {
		t.Error("Expected validation error for invalid LOG_LEVEL")
	}
}

func TestLoadSchoology(t *testing.T) {
	setTestEnv(t, map[string]string{
		"SCHOOLOGY_KEY":             "key",
		"SCHOOLOGY_SECRET":          "secret",
		"SCHOOLOGY_USAGE_DIRECTORY": "/drops/usage",
	})

	cfg, err := LoadSchoology()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.BaseURL != "https://api.schoology.com" {
		t.Errorf("Expected default base URL, got %s", cfg.BaseURL)
	}
	if cfg.UsageDir != "/drops/usage" {
		t.Errorf("Expected usage dir '/drops/usage', got %s", cfg.UsageDir)
	}
}

func TestLoadLoaderEngineDefaults(t *testing.T) {
	setTestEnv(t, map[string]string{
		"CSV_PATH": "/data/output",
		"DB_NAME":  "lms",
	})

	cfg, err := LoadLoader()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Engine != "postgresql" {
		t.Errorf("Expected default engine postgresql, got %s", cfg.Engine)
	}
	if cfg.Port != 5432 {
		t.Errorf("Expected default port 5432, got %d", cfg.Port)
	}

	setTestEnv(t, map[string]string{
		"CSV_PATH":  "/data/output",
		"DB_NAME":   "lms",
		"DB_ENGINE": "mssql",
	})
	cfg, err = LoadLoader()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Port != 1433 {
		t.Errorf("Expected default mssql port 1433, got %d", cfg.Port)
	}
}

func TestLoadLoaderRejectsUnknownEngine(t *testing.T) {
	setTestEnv(t, map[string]string{
		"CSV_PATH":  "/data/output",
		"DB_NAME":   "lms",
		"DB_ENGINE": "oracle",
	})

	_, err := LoadLoader()
	if err == nil {
		t.Error("Expected error for unsupported engine")
	}
}
