// Package config loads runtime configuration from the environment. Flags on
// the CLI override these values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config carries every runtime knob.
type Config struct {
	// HTTP server
	Addr string

	// Storage backend: memory, sqlite, or firestore.
	Backend          string
	SQLitePath       string
	FirestoreProject string

	// Oracle selection: none, section, http, or gemini.
	Oracle      string
	OracleURL   string
	GeminiModel string

	// Bucket registry override; empty means the embedded defaults.
	BucketsFile string

	// ValueCollision toggles duplicate-total suppression by derived value.
	ValueCollision bool

	LogLevel string
	LogJSON  bool
}

// Load reads configuration from PROPSHEET_* environment variables with
// defaults suitable for local use.
func Load() *Config {
	return &Config{
		Addr:             getEnv("PROPSHEET_ADDR", ":8085"),
		Backend:          getEnv("PROPSHEET_BACKEND", "memory"),
		SQLitePath:       getEnv("PROPSHEET_SQLITE_PATH", "./data/propsheet.db"),
		FirestoreProject: getEnv("PROPSHEET_FIRESTORE_PROJECT", ""),
		Oracle:           getEnv("PROPSHEET_ORACLE", "section"),
		OracleURL:        getEnv("PROPSHEET_ORACLE_URL", ""),
		GeminiModel:      getEnv("PROPSHEET_GEMINI_MODEL", ""),
		BucketsFile:      getEnv("PROPSHEET_BUCKETS_FILE", ""),
		ValueCollision:   getEnvBool("PROPSHEET_VALUE_COLLISION", true),
		LogLevel:         getEnv("PROPSHEET_LOG_LEVEL", "info"),
		LogJSON:          getEnvBool("PROPSHEET_LOG_JSON", false),
	}
}

// Validate checks the configuration and returns every problem at once.
func (c *Config) Validate() error {
	var errs []string

	validBackends := []string{"memory", "sqlite", "firestore"}
	if !contains(validBackends, c.Backend) {
		errs = append(errs, fmt.Sprintf("invalid backend %q: must be one of %v", c.Backend, validBackends))
	}

	if c.Backend == "sqlite" {
		if c.SQLitePath == "" {
			errs = append(errs, "sqlite path cannot be empty when using the sqlite backend")
		} else if dir := filepath.Dir(c.SQLitePath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					errs = append(errs, fmt.Sprintf("cannot create sqlite directory %q: %v", dir, err))
				}
			}
		}
	}

	if c.Backend == "firestore" && c.FirestoreProject == "" {
		errs = append(errs, "firestore project is required when using the firestore backend")
	}

	validOracles := []string{"none", "section", "http", "gemini"}
	if !contains(validOracles, c.Oracle) {
		errs = append(errs, fmt.Sprintf("invalid oracle %q: must be one of %v", c.Oracle, validOracles))
	}
	if c.Oracle == "http" && c.OracleURL == "" {
		errs = append(errs, "oracle URL is required when using the http oracle")
	}

	if c.BucketsFile != "" {
		if _, err := os.Stat(c.BucketsFile); os.IsNotExist(err) {
			errs = append(errs, fmt.Sprintf("buckets file does not exist: %s", c.BucketsFile))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
