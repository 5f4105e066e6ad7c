// Package config provides configuration management for Coalesce. Process
// settings load from environment variables with the COALESCE_ prefix and
// carry sensible defaults; resolution settings load from a YAML file.
package config

import (
	"os"
	"strconv"
)

// Config holds all process-level configuration.
type Config struct {
	Storage StorageConfig
	Events  EventsConfig
	Server  ServerConfig
}

// StorageConfig contains snapshot persistence configuration.
type StorageConfig struct {
	Engine      string // Snapshot engine: sqlite, postgres, none (default: sqlite)
	SQLitePath  string // Path to the SQLite snapshot file (default: ./data/coalesce.db)
	PostgresDSN string // PostgreSQL DSN; required when Engine is postgres
}

// EventsConfig contains merge-event fanout configuration.
type EventsConfig struct {
	Dir        string // Directory merge events are written to (default: ./data/events)
	FileEvents bool   // Write one .event file per merge record (default: true)
	RatePerSec int    // Commit pacing in clusters per second, 0 disables (default: 0)
	BreakerMax int    // Consecutive sink failures before the audit breaker opens (default: 3)
}

// ServerConfig contains the event-subscription endpoint configuration.
type ServerConfig struct {
	Port    int      // WebSocket server port (default: 7171)
	Host    string   // WebSocket server host (default: 127.0.0.1)
	Origins []string // Allowed WebSocket origin patterns
}

// Load reads configuration from environment variables with defaults. All
// variables use the COALESCE_ prefix.
func Load() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine:      getEnv("COALESCE_STORAGE_ENGINE", "sqlite"),
			SQLitePath:  getEnv("COALESCE_SQLITE_PATH", "./data/coalesce.db"),
			PostgresDSN: getEnv("COALESCE_POSTGRES_DSN", ""),
		},
		Events: EventsConfig{
			Dir:        getEnv("COALESCE_EVENTS_DIR", "./data/events"),
			FileEvents: getEnvBool("COALESCE_FILE_EVENTS", true),
			RatePerSec: getEnvInt("COALESCE_COMMIT_RATE", 0),
			BreakerMax: getEnvInt("COALESCE_AUDIT_BREAKER_MAX", 3),
		},
		Server: ServerConfig{
			Port:    getEnvInt("COALESCE_PORT", 7171),
			Host:    getEnv("COALESCE_HOST", "127.0.0.1"),
			Origins: []string{getEnv("COALESCE_WS_ORIGIN", "localhost:7171")},
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default
// value. It recognizes "true", "1", "yes" as true and "false", "0", "no"
// as false (case-insensitive). Unparseable values fall back to the default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}
