package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Host string
	Port int

	// Metrics server configuration
	MetricsEnabled bool
	MetricsHost    string
	MetricsPort    int

	// Database configuration
	DatabasePath string

	// Strava API configuration
	StravaClientID     string
	StravaClientSecret string

	// Internal API configuration
	InternalAPIKey string

	// Logging configuration
	LogLevel string

	// Job schedules (standard 5-field cron specs)
	SyncSchedule   string
	TrophySchedule string

	// Trophies are never awarded for weeks before this date
	TrophyEpoch time.Time
}

const defaultTrophyEpoch = "2023-01-01"

// Load reads configuration from the environment, with a .env file in the
// working directory filling in anything not already set. It fails fast if
// required variables are missing or invalid.
func Load() (*Config, error) {
	// Ignore a missing .env file; real env vars always win
	_ = godotenv.Load()

	cfg := &Config{
		Host:           getEnv("HOST", "localhost"),
		Port:           getEnvInt("PORT", 4201),
		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
		MetricsHost:    getEnv("METRICS_HOST", "localhost"),
		MetricsPort:    getEnvInt("METRICS_PORT", 4202),
		DatabasePath:   getEnv("DATABASE_PATH", "./data.db"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		SyncSchedule:   getEnv("SYNC_SCHEDULE", "*/30 * * * *"),
		TrophySchedule: getEnv("TROPHY_SCHEDULE", "5 0 * * 1"),
	}

	cfg.StravaClientID = os.Getenv("STRAVA_CLIENT_ID")
	if cfg.StravaClientID == "" {
		return nil, fmt.Errorf("STRAVA_CLIENT_ID is required")
	}

	cfg.StravaClientSecret = os.Getenv("STRAVA_CLIENT_SECRET")
	if cfg.StravaClientSecret == "" {
		return nil, fmt.Errorf("STRAVA_CLIENT_SECRET is required")
	}

	cfg.InternalAPIKey = os.Getenv("INTERNAL_API_KEY")
	if cfg.InternalAPIKey == "" {
		return nil, fmt.Errorf("INTERNAL_API_KEY is required")
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("PORT must be between 1 and 65535")
	}
	if cfg.MetricsPort < 1 || cfg.MetricsPort > 65535 {
		return nil, fmt.Errorf("METRICS_PORT must be between 1 and 65535")
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}

	epochStr := getEnv("TROPHY_EPOCH", defaultTrophyEpoch)
	epoch, err := time.ParseInLocation("2006-01-02", epochStr, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("TROPHY_EPOCH must be a YYYY-MM-DD date: %w", err)
	}
	cfg.TrophyEpoch = epoch

	return cfg, nil
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
