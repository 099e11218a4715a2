// Package config centralizes how MemoryDrop reads environment variables and
// exposes them as strongly typed Go values.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents runtime configuration for the client.
type Config struct {
	APIURL       string
	PollInterval time.Duration
	HTTPTimeout  time.Duration
	StatePath    string
	EventID      *int
	Environment  string
}

const (
	defaultAPIURL       = "http://localhost:8080/api"
	defaultPollInterval = 7 * time.Second
	defaultHTTPTimeout  = 5 * time.Minute
	defaultStateFile    = "state.db"
)

// Load reads configuration from the environment, with a best-effort .env
// file on top, falling back to defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{
		APIURL:       readEnv("MEMORYDROP_API_URL", defaultAPIURL),
		PollInterval: parseDuration("MEMORYDROP_POLL_INTERVAL", defaultPollInterval),
		HTTPTimeout:  parseDuration("MEMORYDROP_HTTP_TIMEOUT", defaultHTTPTimeout),
		StatePath:    readEnv("MEMORYDROP_STATE_PATH", defaultStatePath()),
		EventID:      parseOptionalInt("MEMORYDROP_EVENT_ID"),
		Environment:  readEnv("MEMORYDROP_ENV", "development"),
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return cfg, nil
}

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultStateFile
	}
	return filepath.Join(home, ".memorydrop", defaultStateFile)
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseOptionalInt(key string) *int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return &parsed
		}
	}
	return nil
}
