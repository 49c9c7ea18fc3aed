// Package config reads each binary's configuration from environment
// variables. Loading fails fast, with every missing required variable
// reported at once.
package config

import (
	"fmt"
	"os"
	"strconv"

	"lms-sync/internal/extract"
)

// Common holds the configuration shared by all three extractors.
type Common struct {
	// SyncDir is the directory holding the sync store file.
	SyncDir string
	// OutputDir is the root of the CSV output tree.
	OutputDir string
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// MetricsPort exposes /metrics when nonzero.
	MetricsPort int
	// Features toggles the optional resource groups.
	Features extract.Features
}

// Canvas is the canvas-extractor configuration.
type Canvas struct {
	Common
	BaseURL string
	Token   string
	Account string
	// StartTime/EndTime bound the authentication-event window (RFC 3339).
	StartTime string
	EndTime   string
}

// Google is the google-classroom-extractor configuration.
type Google struct {
	Common
	BaseURL string
	Token   string
}

// Schoology is the schoology-extractor configuration.
type Schoology struct {
	Common
	BaseURL string
	Key     string
	Secret  string
	// UsageDir is the usage-analytics drop directory; empty disables
	// system activities.
	UsageDir string
}

// Loader is the lms-ds-loader configuration.
type Loader struct {
	// CSVDir is the root of the extractor output tree to load.
	CSVDir string
	// Engine is postgresql or mssql.
	Engine   string
	Server   string
	Port     int
	Database string
	Username string
	Password string
	LogLevel string
	// MetricsPort exposes /metrics when nonzero.
	MetricsPort int
}

// LoadCanvas reads the canvas-extractor configuration.
func LoadCanvas() (*Canvas, error) {
	var missingVars []string
	cfg := &Canvas{
		Common:    loadCommon(),
		BaseURL:   requireEnv("CANVAS_BASE_URL", &missingVars),
		Token:     requireEnv("CANVAS_ACCESS_TOKEN", &missingVars),
		Account:   getEnv("CANVAS_ACCOUNT", "self"),
		StartTime: os.Getenv("START_DATE"),
		EndTime:   os.Getenv("END_DATE"),
	}
	return cfg, validate(cfg.Common, missingVars)
}

// LoadGoogle reads the google-classroom-extractor configuration.
func LoadGoogle() (*Google, error) {
	var missingVars []string
	cfg := &Google{
		Common:  loadCommon(),
		BaseURL: getEnv("CLASSROOM_BASE_URL", "https://classroom.googleapis.com"),
		Token:   requireEnv("CLASSROOM_ACCESS_TOKEN", &missingVars),
	}
	return cfg, validate(cfg.Common, missingVars)
}

// LoadSchoology reads the schoology-extractor configuration.
func LoadSchoology() (*Schoology, error) {
	var missingVars []string
	cfg := &Schoology{
		Common:   loadCommon(),
		BaseURL:  getEnv("SCHOOLOGY_BASE_URL", "https://api.schoology.com"),
		Key:      requireEnv("SCHOOLOGY_KEY", &missingVars),
		Secret:   requireEnv("SCHOOLOGY_SECRET", &missingVars),
		UsageDir: os.Getenv("SCHOOLOGY_USAGE_DIRECTORY"),
	}
	return cfg, validate(cfg.Common, missingVars)
}

// LoadLoader reads the lms-ds-loader configuration.
func LoadLoader() (*Loader, error) {
	var missingVars []string
	engine := getEnv("DB_ENGINE", "postgresql")

	defaultPort := 5432
	if engine == "mssql" {
		defaultPort = 1433
	}

	cfg := &Loader{
		CSVDir:      requireEnv("CSV_PATH", &missingVars),
		Engine:      engine,
		Server:      getEnv("DB_SERVER", "localhost"),
		Port:        getEnvInt("DB_PORT", defaultPort),
		Database:    requireEnv("DB_NAME", &missingVars),
		Username:    os.Getenv("DB_USERNAME"),
		Password:    os.Getenv("DB_PASSWORD"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		MetricsPort: getEnvInt("METRICS_PORT", 0),
	}

	if len(missingVars) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missingVars)
	}
	if engine != "postgresql" && engine != "mssql" {
		return nil, fmt.Errorf("DB_ENGINE must be one of: postgresql, mssql")
	}
	if err := validLogLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadCommon() Common {
	return Common{
		SyncDir:     getEnv("SYNC_DATABASE_DIRECTORY", "./data/sync"),
		OutputDir:   getEnv("OUTPUT_DIRECTORY", "./data/output"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		MetricsPort: getEnvInt("METRICS_PORT", 0),
		Features: extract.Features{
			Assignments: getEnvBool("FEATURE_ASSIGNMENTS", false),
			Grades:      getEnvBool("FEATURE_GRADES", false),
			Attendance:  getEnvBool("FEATURE_ATTENDANCE", false),
			Activities:  getEnvBool("FEATURE_ACTIVITIES", false),
		},
	}
}

func validate(c Common, missingVars []string) error {
	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missingVars)
	}
	if err := validLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("METRICS_PORT must be between 0 and 65535")
	}
	return nil
}

func validLogLevel(level string) error {
	switch level {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
}

func requireEnv(key string, missingVars *[]string) string {
	value := os.Getenv(key)
	if value == "" {
		*missingVars = append(*missingVars, key)
	}
	return value
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvBool gets a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
