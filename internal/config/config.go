// Package config loads application configuration from environment
// variables.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
package config

import (
	"log"
	"os"
	"strings"
	"time"
)

// Storage backend names accepted in STORE_BACKEND.
const (
	BackendMySQL  = "mysql"
	BackendMemory = "memory"
)

// Config holds all runtime configuration values.  Each field corresponds
// to an environment variable.  Database settings are only required when
// the MySQL backend is selected; the in-memory backend needs none.
type Config struct {
	Env           string        // application environment (dev, test, prod)
	Port          string        // HTTP port to listen on
	StoreBackend  string        // "mysql" or "memory"
	DBUser        string        // database username
	DBPass        string        // database password (optional)
	DBHost        string        // database host address
	DBPort        string        // database port number
	DBName        string        // database name
	JWTSecret     string        // secret used to verify access tokens
	SweepInterval time.Duration // how often the expiry sweep runs
}

// Load reads configuration from the environment and returns a Config.
func Load() Config {
	cfg := Config{
		Env:           must("APP_ENV"),
		Port:          must("APP_PORT"),
		StoreBackend:  strings.ToLower(getenv("STORE_BACKEND", BackendMySQL)),
		JWTSecret:     must("JWT_SECRET"),
		SweepInterval: parseDur(getenv("SWEEP_INTERVAL", "60s")),
	}
	switch cfg.StoreBackend {
	case BackendMySQL:
		cfg.DBUser = must("DB_USER")
		cfg.DBPass = os.Getenv("DB_PASS") // empty allowed
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = must("DB_PORT")
		cfg.DBName = must("DB_NAME")
	case BackendMemory:
		// nothing to load; state lives in the process
	default:
		log.Fatalf("unknown STORE_BACKEND: %q (want %q or %q)", cfg.StoreBackend, BackendMySQL, BackendMemory)
	}
	return cfg
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// getenv returns the variable's value or a default when unset.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDur(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}
