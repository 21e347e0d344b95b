package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigWithDefaults(t *testing.T) {
	setTestEnv(t, map[string]string{
		"STRAVA_CLIENT_ID":     "test_client_id",
		"STRAVA_CLIENT_SECRET": "test_client_secret",
		"INTERNAL_API_KEY":     "test_api_key",
	})

	config, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Host != "localhost" {
		t.Errorf("Expected default host 'localhost', got %s", config.Host)
	}
	if config.Port != 4201 {
		t.Errorf("Expected default port 4201, got %d", config.Port)
	}
	if !config.MetricsEnabled {
		t.Error("Expected metrics enabled by default")
	}
	if config.MetricsPort != 4202 {
		t.Errorf("Expected default metrics port 4202, got %d", config.MetricsPort)
	}
	if config.DatabasePath != "./data.db" {
		t.Errorf("Expected default database path './data.db', got %s", config.DatabasePath)
	}
	if config.LogLevel != "info" {
		t.Errorf("Expected default log level 'info', got %s", config.LogLevel)
	}
	if config.SyncSchedule != "*/30 * * * *" {
		t.Errorf("Expected default sync schedule, got %s", config.SyncSchedule)
	}
	if config.TrophySchedule != "5 0 * * 1" {
		t.Errorf("Expected default trophy schedule, got %s", config.TrophySchedule)
	}

	wantEpoch := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	if !config.TrophyEpoch.Equal(wantEpoch) {
		t.Errorf("Expected default trophy epoch %v, got %v", wantEpoch, config.TrophyEpoch)
	}

	if config.StravaClientID != "test_client_id" {
		t.Errorf("Expected STRAVA_CLIENT_ID 'test_client_id', got %s", config.StravaClientID)
	}
	if config.InternalAPIKey != "test_api_key" {
		t.Errorf("Expected INTERNAL_API_KEY 'test_api_key', got %s", config.InternalAPIKey)
	}
}

func TestLoadConfigFromEnvVars(t *testing.T) {
	setTestEnv(t, map[string]string{
		"HOST":                 "0.0.0.0",
		"PORT":                 "8080",
		"METRICS_ENABLED":      "false",
		"DATABASE_PATH":        "/tmp/test.db",
		"STRAVA_CLIENT_ID":     "custom_client_id",
		"STRAVA_CLIENT_SECRET": "custom_client_secret",
		"INTERNAL_API_KEY":     "custom_api_key",
		"LOG_LEVEL":            "debug",
		"SYNC_SCHEDULE":        "*/15 * * * *",
		"TROPHY_EPOCH":         "2024-06-03",
	})

	config, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Host != "0.0.0.0" {
		t.Errorf("Expected host '0.0.0.0', got %s", config.Host)
	}
	if config.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", config.Port)
	}
	if config.MetricsEnabled {
		t.Error("Expected metrics disabled")
	}
	if config.DatabasePath != "/tmp/test.db" {
		t.Errorf("Expected database path '/tmp/test.db', got %s", config.DatabasePath)
	}
	if config.LogLevel != "debug" {
		t.Errorf("Expected log level 'debug', got %s", config.LogLevel)
	}
	if config.SyncSchedule != "*/15 * * * *" {
		t.Errorf("Expected sync schedule '*/15 * * * *', got %s", config.SyncSchedule)
	}

	wantEpoch := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	if !config.TrophyEpoch.Equal(wantEpoch) {
		t.Errorf("Expected trophy epoch %v, got %v", wantEpoch, config.TrophyEpoch)
	}
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")

	envContent := `# Test .env file
HOST=192.168.1.1
PORT=9000
DATABASE_PATH=/custom/path/data.db
STRAVA_CLIENT_ID=env_file_client_id
STRAVA_CLIENT_SECRET=env_file_client_secret
INTERNAL_API_KEY=env_file_api_key
LOG_LEVEL=warn
`
	if err := os.WriteFile(envFile, []byte(envContent), 0644); err != nil {
		t.Fatalf("Failed to create .env file: %v", err)
	}

	oldDir, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(oldDir)

	clearTestEnv(t)

	config, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Host != "192.168.1.1" {
		t.Errorf("Expected host '192.168.1.1' from .env, got %s", config.Host)
	}
	if config.Port != 9000 {
		t.Errorf("Expected port 9000 from .env, got %d", config.Port)
	}
	if config.LogLevel != "warn" {
		t.Errorf("Expected log level 'warn' from .env, got %s", config.LogLevel)
	}
}

func TestEnvVarsPrecedenceOverEnvFile(t *testing.T) {
	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")

	envContent := `HOST=from_file
PORT=9000
STRAVA_CLIENT_ID=file_client_id
STRAVA_CLIENT_SECRET=file_client_secret
INTERNAL_API_KEY=file_api_key
`
	if err := os.WriteFile(envFile, []byte(envContent), 0644); err != nil {
		t.Fatalf("Failed to create .env file: %v", err)
	}

	oldDir, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(oldDir)

	setTestEnv(t, map[string]string{
		"HOST":             "from_env_var",
		"STRAVA_CLIENT_ID": "env_client_id",
	})

	config, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Host != "from_env_var" {
		t.Errorf("Expected host 'from_env_var' from env var, got %s", config.Host)
	}
	if config.StravaClientID != "env_client_id" {
		t.Errorf("Expected client ID 'env_client_id' from env var, got %s", config.StravaClientID)
	}

	if config.Port != 9000 {
		t.Errorf("Expected port 9000 from .env file, got %d", config.Port)
	}
	if config.StravaClientSecret != "file_client_secret" {
		t.Errorf("Expected client secret 'file_client_secret' from .env, got %s", config.StravaClientSecret)
	}
}

func TestValidationMissingClientID(t *testing.T) {
	setTestEnv(t, map[string]string{
		"STRAVA_CLIENT_SECRET": "test_client_secret",
		"INTERNAL_API_KEY":     "test_api_key",
	})

	_, err := Load()
	if err == nil {
		t.Error("Expected validation error for missing STRAVA_CLIENT_ID")
	}
	if err.Error() != "STRAVA_CLIENT_ID is required" {
		t.Errorf("Expected 'STRAVA_CLIENT_ID is required' error, got: %v", err)
	}
}

func TestValidationMissingClientSecret(t *testing.T) {
	setTestEnv(t, map[string]string{
		"STRAVA_CLIENT_ID": "test_client_id",
		"INTERNAL_API_KEY": "test_api_key",
	})

	_, err := Load()
	if err == nil {
		t.Error("Expected validation error for missing STRAVA_CLIENT_SECRET")
	}
	if err.Error() != "STRAVA_CLIENT_SECRET is required" {
		t.Errorf("Expected 'STRAVA_CLIENT_SECRET is required' error, got: %v", err)
	}
}

func TestValidationMissingAPIKey(t *testing.T) {
	setTestEnv(t, map[string]string{
		"STRAVA_CLIENT_ID":     "test_client_id",
		"STRAVA_CLIENT_SECRET": "test_client_secret",
	})

	_, err := Load()
	if err == nil {
		t.Error("Expected validation error for missing INTERNAL_API_KEY")
	}
	if err.Error() != "INTERNAL_API_KEY is required" {
		t.Errorf("Expected 'INTERNAL_API_KEY is required' error, got: %v", err)
	}
}

func TestValidationInvalidPort(t *testing.T) {
	tests := []struct {
		port    string
		wantErr bool
	}{
		{"0", true},
		{"1", false},
		{"4201", false},
		{"65535", false},
		{"65536", true},
	}

	for _, tt := range tests {
		t.Run("port_"+tt.port, func(t *testing.T) {
			setTestEnv(t, map[string]string{
				"PORT":                 tt.port,
				"STRAVA_CLIENT_ID":     "test_client_id",
				"STRAVA_CLIENT_SECRET": "test_client_secret",
				"INTERNAL_API_KEY":     "test_api_key",
			})

			_, err := Load()
			if tt.wantErr && err == nil {
				t.Errorf("Expected error for port %s, but got none", tt.port)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected no error for port %s, but got: %v", tt.port, err)
			}
		})
	}
}

func TestValidationInvalidLogLevel(t *testing.T) {
	setTestEnv(t, map[string]string{
		"LOG_LEVEL":            "invalid",
		"STRAVA_CLIENT_ID":     "test_client_id",
		"STRAVA_CLIENT_SECRET": "test_client_secret",
		"INTERNAL_API_KEY":     "test_api_key",
	})

	_, err := Load()
	if err == nil {
		t.Error("Expected validation error for invalid LOG_LEVEL")
	}
	if err.Error() != "LOG_LEVEL must be one of: debug, info, warn, error" {
		t.Errorf("Unexpected error message: %v", err)
	}
}

func TestValidationInvalidTrophyEpoch(t *testing.T) {
	setTestEnv(t, map[string]string{
		"TROPHY_EPOCH":         "January 1st",
		"STRAVA_CLIENT_ID":     "test_client_id",
		"STRAVA_CLIENT_SECRET": "test_client_secret",
		"INTERNAL_API_KEY":     "test_api_key",
	})

	_, err := Load()
	if err == nil {
		t.Error("Expected validation error for invalid TROPHY_EPOCH")
	}
}

// Helper function to set test environment variables and clean up after test
func setTestEnv(t *testing.T, vars map[string]string) {
	t.Helper()

	clearTestEnv(t)

	for key, value := range vars {
		os.Setenv(key, value)
		t.Cleanup(func() {
			os.Unsetenv(key)
		})
	}
}

// Helper function to clear all config-related environment variables
func clearTestEnv(t *testing.T) {
	t.Helper()

	envVars := []string{
		"HOST", "PORT", "METRICS_ENABLED", "METRICS_HOST", "METRICS_PORT",
		"DATABASE_PATH", "STRAVA_CLIENT_ID", "STRAVA_CLIENT_SECRET",
		"INTERNAL_API_KEY", "LOG_LEVEL",
		"SYNC_SCHEDULE", "TROPHY_SCHEDULE", "TROPHY_EPOCH",
	}

	for _, key := range envVars {
		os.Unsetenv(key)
	}
}
