// Package config loads application configuration from environment variables
// (with an optional .env file for local development) and decides which storage
// backend the session will use.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// BackendKind identifies which storage backend a session runs against.
type BackendKind string

const (
	// BackendSQLite is the local embedded database — no network dependency,
	// single process, stored in a file under DB_PATH.
	BackendSQLite BackendKind = "sqlite"
	// BackendSupabase is the hosted database, reached over HTTPS with the
	// project URL and anon key.
	BackendSupabase BackendKind = "supabase"
)

// Config holds all configuration for the application.
type Config struct {
	Port        int
	TemplateDir string
	StaticDir   string

	// Local backend
	DBPath string

	// Hosted backend. Both must be set for the hosted backend to be chosen;
	// they come from the environment or a secret store, never from code.
	SupabaseURL string
	SupabaseKey string
}

// Backend is the backend-selection decision: if hosted credentials are present
// and non-empty, use the hosted store; otherwise fall back to the local file
// database. The decision is made once at startup and never re-evaluated —
// if the hosted store is unreachable mid-session, the error surfaces to the
// caller instead of silently switching backends.
func (c *Config) Backend() BackendKind {
	if c.SupabaseURL != "" && c.SupabaseKey != "" {
		return BackendSupabase
	}
	return BackendSQLite
}

// Load reads configuration from environment variables and returns a Config.
// If a .env file exists in the current directory it is loaded first;
// real environment variables take precedence over .env values.
func Load() (*Config, error) {
	// Ignore the error: a missing .env file simply means "env vars only".
	_ = godotenv.Load()

	port := 8080
	if portStr := os.Getenv("PORT"); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT value %q: %w", portStr, err)
		}
		port = p
	}

	cfg := &Config{
		Port:        port,
		TemplateDir: getEnv("TEMPLATE_DIR", "web/templates"),
		StaticDir:   getEnv("STATIC_DIR", "web/static"),
		DBPath:      getEnv("DB_PATH", "data/knowledgebase.db"),
		SupabaseURL: os.Getenv("SUPABASE_URL"),
		SupabaseKey: os.Getenv("SUPABASE_ANON_KEY"),
	}

	// Half-configured hosted credentials are almost always a deployment
	// mistake; refuse to start rather than silently using the local file.
	if (cfg.SupabaseURL == "") != (cfg.SupabaseKey == "") {
		return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_ANON_KEY must be set together")
	}

	if cfg.Backend() == BackendSQLite {
		// Ensure the directory for the database file exists (like `mkdir -p`).
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
