/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// DefaultFilterBatchSize is the fallback processing batch size for the
// smart playlist filter pipeline when SKALD_FILTER_BATCH_SIZE is unset
// or non-positive.
const DefaultFilterBatchSize = 300

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	DBBackend   DatabaseBackend
	DBDSN       string

	JWTSigningKey string

	// Redis entity cache
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// NATS event publishing
	NATSURL string

	// Refresh loop
	RefreshInterval time.Duration

	// Smart playlist filter pipeline
	FilterBatchSize  int
	CompileCacheSize int

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:       getEnv("SKALD_ENV", "development"),
		HTTPBind:          getEnv("SKALD_HTTP_BIND", "0.0.0.0"),
		HTTPPort:          getEnvInt("SKALD_HTTP_PORT", 8080),
		DBBackend:         DatabaseBackend(getEnv("SKALD_DB_BACKEND", string(DatabaseSQLite))),
		DBDSN:             getEnv("SKALD_DB_DSN", ""),
		JWTSigningKey:     getEnv("SKALD_JWT_SIGNING_KEY", ""),
		RedisAddr:         getEnv("SKALD_REDIS_ADDR", ""),
		RedisPassword:     getEnv("SKALD_REDIS_PASSWORD", ""),
		RedisDB:           getEnvInt("SKALD_REDIS_DB", 0),
		NATSURL:           getEnv("SKALD_NATS_URL", ""),
		RefreshInterval:   getEnvDuration("SKALD_REFRESH_INTERVAL", 15*time.Minute),
		FilterBatchSize:   getEnvInt("SKALD_FILTER_BATCH_SIZE", DefaultFilterBatchSize),
		CompileCacheSize:  getEnvInt("SKALD_COMPILE_CACHE_SIZE", 512),
		TracingEnabled:    getEnvBool("SKALD_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("SKALD_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("SKALD_TRACING_SAMPLE_RATE", 0.1),
	}

	switch cfg.DBBackend {
	case DatabasePostgres, DatabaseMySQL, DatabaseSQLite:
	default:
		return nil, fmt.Errorf("SKALD_DB_BACKEND must be one of postgres, mysql, sqlite (got %q)", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		if cfg.DBBackend == DatabaseSQLite {
			cfg.DBDSN = "skald.db"
		} else {
			return nil, fmt.Errorf("SKALD_DB_DSN must be provided for backend %s", cfg.DBBackend)
		}
	}

	if strings.EqualFold(cfg.Environment, "production") && cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("SKALD_JWT_SIGNING_KEY must be provided in production")
	}

	if cfg.FilterBatchSize <= 0 {
		cfg.FilterBatchSize = DefaultFilterBatchSize
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 15 * time.Minute
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(strings.TrimSpace(val))
		if val == "true" || val == "1" || val == "yes" {
			return true
		}
		if val == "false" || val == "0" || val == "no" {
			return false
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return def
}
