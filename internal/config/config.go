/*
Copyright (C) 2026 QLC+ Show Creator Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	MetricsBind string

	DBBackend DatabaseBackend
	DBDSN     string

	// Art-Net output
	ArtNetTarget string // broadcast by default
	ArtNetPort   int

	// Workspace and fixture library locations
	WorkspacePath  string
	FixtureLibrary string

	// Playback
	DefaultBPM float64
	TickRateHz int // compositor tick rate; transport limits sends independently
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("SHOWCREATOR_ENV", "development"),
		HTTPBind:    getEnv("SHOWCREATOR_HTTP_BIND", "0.0.0.0"),
		HTTPPort:    getEnvInt("SHOWCREATOR_HTTP_PORT", 8080),
		MetricsBind: getEnv("SHOWCREATOR_METRICS_BIND", "127.0.0.1:9000"),

		DBBackend: DatabaseBackend(getEnv("SHOWCREATOR_DB_BACKEND", string(DatabaseSQLite))),
		DBDSN:     getEnv("SHOWCREATOR_DB_DSN", "showcreator.db"),

		ArtNetTarget: getEnv("SHOWCREATOR_ARTNET_TARGET", "255.255.255.255"),
		ArtNetPort:   getEnvInt("SHOWCREATOR_ARTNET_PORT", 6454),

		WorkspacePath:  getEnv("SHOWCREATOR_WORKSPACE", "workspace.yaml"),
		FixtureLibrary: getEnv("SHOWCREATOR_FIXTURE_LIBRARY", "./fixtures"),

		DefaultBPM: getEnvFloat("SHOWCREATOR_DEFAULT_BPM", 120),
		TickRateHz: getEnvInt("SHOWCREATOR_TICK_RATE_HZ", 60),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("SHOWCREATOR_DB_DSN must be provided")
	}

	if cfg.TickRateHz <= 0 || cfg.TickRateHz > 250 {
		return nil, fmt.Errorf("SHOWCREATOR_TICK_RATE_HZ out of range: %d", cfg.TickRateHz)
	}

	if cfg.DefaultBPM <= 0 {
		return nil, fmt.Errorf("SHOWCREATOR_DEFAULT_BPM must be positive")
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

func getEnvFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return def
}
