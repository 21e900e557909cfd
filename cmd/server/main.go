// RepoPulse - GitHub CI and Issue Analytics Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/repopulse

// Package main is the entry point for the RepoPulse server.
//
// RepoPulse aggregates a GitHub repository's CI results and issue/PR
// activity into a local BadgerDB store and serves dashboard views over
// a REST API. Startup order:
//
//  1. Configuration: environment variables plus optional config.yaml
//     (Koanf v2)
//  2. Store: BadgerDB key-value store with per-entry TTLs
//  3. GitHub client: rate-limited REST + GraphQL client behind a
//     circuit breaker
//  4. Sync components: CI aggregator, issue/PR mirror syncer,
//     bus-factor calculator, sync scheduler
//  5. HTTP server: chi router under /api/v1 plus /metrics
//  6. Supervisor tree: sync and API layers under suture
//
// The server shuts down gracefully on SIGINT and SIGTERM: in-flight
// requests get a bounded drain, sync loops finish their current pass,
// then the store is closed.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/repopulse/internal/api"
	"github.com/tomtom215/repopulse/internal/ci"
	"github.com/tomtom215/repopulse/internal/config"
	"github.com/tomtom215/repopulse/internal/githubapi"
	"github.com/tomtom215/repopulse/internal/items"
	"github.com/tomtom215/repopulse/internal/logging"
	"github.com/tomtom215/repopulse/internal/scheduler"
	"github.com/tomtom215/repopulse/internal/store"
	"github.com/tomtom215/repopulse/internal/supervisor"
	"github.com/tomtom215/repopulse/internal/supervisor/services"
	"github.com/tomtom215/repopulse/internal/views"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("owner", cfg.GitHub.Owner).
		Str("repo", cfg.GitHub.Repo).
		Str("branch", cfg.GitHub.Branch).
		Str("store_path", cfg.Store.Path).
		Msg("Configuration loaded")

	st, err := store.Open(store.Options{
		Path:     cfg.Store.Path,
		InMemory: cfg.Store.InMemory,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()

	client := githubapi.New(githubapi.Config{
		Owner:             cfg.GitHub.Owner,
		Repo:              cfg.GitHub.Repo,
		Token:             cfg.GitHub.Token,
		APIBase:           cfg.GitHub.APIBase,
		GraphQLURL:        cfg.GitHub.GraphQLURL,
		RequestsPerSecond: cfg.GitHub.RequestsPerSecond,
	})

	aggregator := ci.New(client, st, ci.Config{
		Branch:         cfg.GitHub.Branch,
		RunLimit:       cfg.Sync.RunLimit,
		JobConcurrency: cfg.Sync.JobFetchConcurrency,
		RetentionDays:  cfg.Sync.RetentionDays,
		CurrentTTL:     cfg.Sync.CurrentTTL,
		BackfillDelay:  cfg.Sync.BackfillDelay,
	})

	syncer := items.New(client, st, items.Config{
		PageDelay:     cfg.Sync.PageDelay,
		Overlap:       time.Duration(cfg.Sync.OverlapMinutes) * time.Minute,
		StopThreshold: cfg.Sync.StopThreshold,
	})

	busFactor := views.NewBusFactorCalculator(client, st, views.BusFactorConfig{
		Directories:  cfg.BusFactor.Directories,
		TeamMembers:  cfg.BusFactor.TeamMembers,
		WindowMonths: cfg.BusFactor.WindowMonths,
		MaxPages:     cfg.BusFactor.MaxPages,
		CacheTTL:     cfg.BusFactor.CacheTTL,
	})

	manager := scheduler.New(aggregator, syncer, scheduler.Config{
		CIInterval:    cfg.Sync.CIInterval,
		ItemsInterval: cfg.Sync.ItemsInterval,
	})

	handlers := api.NewHandlers(
		aggregator,
		manager,
		items.Source{Store: st},
		busFactor,
		st,
		api.TriageLabels{
			AwaitingLabels: cfg.Triage.AwaitingLabels,
			BlockingLabels: cfg.Triage.BlockingLabels,
		},
	)
	router := api.NewRouter(handlers, api.RouterConfig{
		RateLimitReqs:   cfg.Security.RateLimitReqs,
		RateLimitWindow: cfg.Security.RateLimitWindow,
		CORSOrigins:     cfg.Security.CORSOrigins,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddSyncService(services.NewSchedulerService(manager))
	tree.AddSyncService(services.NewGCService(st, cfg.Store.GCInterval))
	tree.AddAPIService(services.NewHTTPService(server, 10*time.Second))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, stopping services")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	logging.Info().Msg("Stopped")
}
