// RepoPulse - GitHub CI and Issue Analytics Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/repopulse

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/repopulse/config.yaml",
	"/etc/repopulse/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		GitHub: GitHubConfig{
			Owner:             "",
			Repo:              "",
			Token:             "",
			Branch:            "main",
			APIBase:           "https://api.github.com",
			GraphQLURL:        "https://api.github.com/graphql",
			RequestsPerSecond: 5,
		},
		Sync: SyncConfig{
			CIInterval:          time.Hour,
			ItemsInterval:       time.Hour,
			RunLimit:            100,
			JobFetchConcurrency: 8,
			RetentionDays:       180,
			PageDelay:           500 * time.Millisecond,
			BackfillDelay:       2 * time.Second,
			OverlapMinutes:      10,
			StopThreshold:       100,
			CurrentTTL:          time.Hour,
		},
		BusFactor: BusFactorConfig{
			Directories:  []string{},
			TeamMembers:  []string{},
			WindowMonths: 6,
			MaxPages:     10,
			CacheTTL:     time.Hour,
		},
		Triage: TriageConfig{
			AwaitingLabels: []string{"awaiting-dev", "awaiting-review", "in-progress"},
			BlockingLabels: []string{"triaged", "wontfix", "duplicate", "question"},
		},
		Store: StoreConfig{
			Path:       "/data/repopulse",
			InMemory:   false,
			GCInterval: 10 * time.Minute,
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8380,
			Timeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds configuration from layered sources:
//  1. Defaults: built-in values from defaultConfig()
//  2. Config File: optional YAML file (if found)
//  3. Environment Variables: highest priority
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Transform environment variable names to koanf paths:
	// GITHUB_OWNER -> github.owner, SYNC_RUN_LIMIT -> sync.run_limit
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Env vars arrive as strings; convert known list fields.
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file, honoring CONFIG_PATH first.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths defines which config paths are parsed as
// comma-separated slices when supplied via environment variables.
var sliceConfigPaths = []string{
	"busfactor.directories",
	"busfactor.team_members",
	"triage.awaiting_labels",
	"triage.blocking_labels",
	"security.cors_origins",
}

// processSliceFields converts comma-separated string values to slices
// for known slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		// Already a slice (from YAML or defaults).
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to config paths.
// Unmapped variables return empty string and are skipped, so random
// environment variables cannot pollute the config.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// GitHub upstream
		"github_owner":       "github.owner",
		"github_repo":        "github.repo",
		"github_token":       "github.token",
		"github_branch":      "github.branch",
		"github_api_base":    "github.api_base",
		"github_graphql_url": "github.graphql_url",
		"github_rps":         "github.requests_per_second",

		// Sync scheduling and aggregation
		"sync_ci_interval":      "sync.ci_interval",
		"sync_items_interval":   "sync.items_interval",
		"sync_run_limit":        "sync.run_limit",
		"sync_job_concurrency":  "sync.job_fetch_concurrency",
		"sync_retention_days":   "sync.retention_days",
		"sync_page_delay":       "sync.page_delay",
		"sync_backfill_delay":   "sync.backfill_delay",
		"sync_overlap_minutes":  "sync.overlap_minutes",
		"sync_stop_threshold":   "sync.stop_threshold",
		"sync_current_ttl":      "sync.current_ttl",

		// Bus factor analysis
		"busfactor_directories":   "busfactor.directories",
		"busfactor_team_members":  "busfactor.team_members",
		"busfactor_window_months": "busfactor.window_months",
		"busfactor_max_pages":     "busfactor.max_pages",
		"busfactor_cache_ttl":     "busfactor.cache_ttl",

		// Triage label sets
		"triage_awaiting_labels": "triage.awaiting_labels",
		"triage_blocking_labels": "triage.blocking_labels",

		// Store
		"store_path":        "store.path",
		"store_in_memory":   "store.in_memory",
		"store_gc_interval": "store.gc_interval",

		// Server
		"http_host":    "server.host",
		"http_port":    "server.port",
		"http_timeout": "server.timeout",

		// Security
		"rate_limit_requests": "security.rate_limit_reqs",
		"rate_limit_window":   "security.rate_limit_window",
		"cors_origins":        "security.cors_origins",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
