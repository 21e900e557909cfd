// RepoPulse - GitHub CI and Issue Analytics Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/repopulse

// Package config holds application configuration loaded from environment
// variables and an optional YAML config file.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: built-in sensible defaults for all optional settings
//  2. Config File: optional YAML config file (config.yaml)
//  3. Environment Variables: override any setting
//
// Config is immutable after Load() and safe for concurrent read access.
package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration.
type Config struct {
	GitHub    GitHubConfig    `koanf:"github"`
	Sync      SyncConfig      `koanf:"sync"`
	BusFactor BusFactorConfig `koanf:"busfactor"`
	Triage    TriageConfig    `koanf:"triage"`
	Store     StoreConfig     `koanf:"store"`
	Server    ServerConfig    `koanf:"server"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// GitHubConfig holds upstream API connection settings.
//
// Environment Variables:
//   - GITHUB_OWNER: repository owner (required)
//   - GITHUB_REPO: repository name (required)
//   - GITHUB_TOKEN: bearer token; unauthenticated requests are allowed
//     but severely rate limited by GitHub
//   - GITHUB_BRANCH: branch whose workflow runs are aggregated
type GitHubConfig struct {
	Owner      string `koanf:"owner"`
	Repo       string `koanf:"repo"`
	Token      string `koanf:"token"`
	Branch     string `koanf:"branch"`
	APIBase    string `koanf:"api_base"`
	GraphQLURL string `koanf:"graphql_url"`
	// RequestsPerSecond caps the sustained upstream request rate.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
}

// SyncConfig holds scheduling and aggregation settings.
type SyncConfig struct {
	// CIInterval is the period between scheduled CI aggregation runs.
	CIInterval time.Duration `koanf:"ci_interval"`
	// ItemsInterval is the period between scheduled issue/PR syncs.
	ItemsInterval time.Duration `koanf:"items_interval"`
	// RunLimit caps the number of workflow runs fetched per cycle.
	RunLimit int `koanf:"run_limit"`
	// JobFetchConcurrency bounds concurrent per-run job fetches.
	JobFetchConcurrency int `koanf:"job_fetch_concurrency"`
	// RetentionDays is the daily-snapshot retention horizon.
	RetentionDays int `koanf:"retention_days"`
	// PageDelay is the pause between GraphQL pages during item sync.
	PageDelay time.Duration `koanf:"page_delay"`
	// BackfillDelay is the pause between days during backfill.
	BackfillDelay time.Duration `koanf:"backfill_delay"`
	// OverlapMinutes widens the incremental-sync window to tolerate
	// clock skew between recorded lastSync and actual query time.
	OverlapMinutes int `koanf:"overlap_minutes"`
	// StopThreshold is the number of consecutive already-known items
	// after which the new-item scan stops early.
	StopThreshold int `koanf:"stop_threshold"`
	// CurrentTTL is the expiration of the frequently-polled "current"
	// CI snapshot.
	CurrentTTL time.Duration `koanf:"current_ttl"`
}

// BusFactorConfig holds commit-history analysis settings.
type BusFactorConfig struct {
	// Directories lists the repository paths analyzed per cycle.
	Directories []string `koanf:"directories"`
	// TeamMembers is reported alongside results for the dashboard.
	TeamMembers []string `koanf:"team_members"`
	// WindowMonths is the commit-history lookback.
	WindowMonths int `koanf:"window_months"`
	// MaxPages caps commit pagination per directory.
	MaxPages int           `koanf:"max_pages"`
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

// TriageConfig defines the label sets that drive triage bucketing.
type TriageConfig struct {
	// AwaitingLabels mark an issue as awaiting developer action.
	AwaitingLabels []string `koanf:"awaiting_labels"`
	// BlockingLabels mark an issue as already triaged.
	BlockingLabels []string `koanf:"blocking_labels"`
}

// StoreConfig holds BadgerDB settings.
type StoreConfig struct {
	Path string `koanf:"path"`
	// InMemory runs Badger without disk persistence. Used by tests.
	InMemory bool `koanf:"in_memory"`
	// GCInterval is the period between value-log garbage collections.
	GCInterval time.Duration `koanf:"gc_interval"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// SecurityConfig holds rate limiting and CORS settings.
type SecurityConfig struct {
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Validate checks required fields and numeric sanity.
func (c *Config) Validate() error {
	if c.GitHub.Owner == "" {
		return fmt.Errorf("github.owner is required (GITHUB_OWNER)")
	}
	if c.GitHub.Repo == "" {
		return fmt.Errorf("github.repo is required (GITHUB_REPO)")
	}
	if c.Sync.RunLimit <= 0 {
		return fmt.Errorf("sync.run_limit must be positive, got %d", c.Sync.RunLimit)
	}
	if c.Sync.JobFetchConcurrency <= 0 {
		return fmt.Errorf("sync.job_fetch_concurrency must be positive, got %d", c.Sync.JobFetchConcurrency)
	}
	if c.Sync.RetentionDays <= 0 {
		return fmt.Errorf("sync.retention_days must be positive, got %d", c.Sync.RetentionDays)
	}
	if c.Sync.StopThreshold <= 0 {
		return fmt.Errorf("sync.stop_threshold must be positive, got %d", c.Sync.StopThreshold)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1-65535, got %d", c.Server.Port)
	}
	if c.Store.Path == "" && !c.Store.InMemory {
		return fmt.Errorf("store.path is required unless store.in_memory is set")
	}
	return nil
}
