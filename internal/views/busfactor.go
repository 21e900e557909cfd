// RepoPulse - GitHub CI and Issue Analytics Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/repopulse

package views

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/repopulse/internal/githubapi"
	"github.com/tomtom215/repopulse/internal/logging"
	"github.com/tomtom215/repopulse/internal/metrics"
	"github.com/tomtom215/repopulse/internal/models"
	"github.com/tomtom215/repopulse/internal/store"
)

// CommitsClient is the slice of the GitHub client the bus-factor
// calculator uses.
type CommitsClient interface {
	Commits(ctx context.Context, path string, since time.Time, page int) ([]githubapi.Commit, error)
}

// BusFactorStorage is the cache backend for computed reports.
type BusFactorStorage interface {
	GetJSON(key string, v interface{}) error
	PutJSON(key string, v interface{}, ttl time.Duration) error
}

// BusFactorConfig holds the calculator's tunables.
type BusFactorConfig struct {
	// Directories are the repository paths to analyze.
	Directories []string
	// TeamMembers is echoed into the report for the frontend.
	TeamMembers []string
	// WindowMonths bounds the commit history window.
	WindowMonths int
	// MaxPages caps pagination per directory.
	MaxPages int
	// CacheTTL is the report cache lifetime. This view gets its own
	// cache because it is by far the most expensive to compute
	// (directories x paginated commit history).
	CacheTTL time.Duration
}

// BusFactorCalculator computes per-directory bus factors from commit
// history.
type BusFactorCalculator struct {
	client CommitsClient
	store  BusFactorStorage
	cfg    BusFactorConfig
	now    func() time.Time
}

// NewBusFactorCalculator creates a calculator with defaulted config.
func NewBusFactorCalculator(client CommitsClient, st BusFactorStorage, cfg BusFactorConfig) *BusFactorCalculator {
	if cfg.WindowMonths <= 0 {
		cfg.WindowMonths = 6
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	return &BusFactorCalculator{client: client, store: st, cfg: cfg, now: time.Now}
}

// BusFactor returns the cached report when present, unless
// forceRefresh is set; otherwise it recomputes and re-caches.
func (c *BusFactorCalculator) BusFactor(ctx context.Context, forceRefresh bool) (*models.BusFactorResult, error) {
	if !forceRefresh {
		var cached models.BusFactorResult
		err := c.store.GetJSON(store.KeyBusFactorCache, &cached)
		if err == nil {
			cached.Cached = true
			return &cached, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("read bus factor cache: %w", err)
		}
	}

	start := c.now()
	since := start.AddDate(0, -c.cfg.WindowMonths, 0)

	result := &models.BusFactorResult{
		Data:        make([]models.DirectoryBusFactor, 0, len(c.cfg.Directories)),
		TeamMembers: c.cfg.TeamMembers,
		GeneratedAt: start.UTC(),
	}
	for _, dir := range c.cfg.Directories {
		entry, err := c.analyzeDirectory(ctx, dir, since)
		if err != nil {
			// One unreadable directory does not void the whole report.
			metrics.SyncErrors.WithLabelValues("busfactor", "commit_fetch").Inc()
			logging.Ctx(ctx).Warn().Err(err).Str("directory", dir).Msg("Skipping directory: commit fetch failed")
			continue
		}
		result.Data = append(result.Data, *entry)
	}

	if err := c.store.PutJSON(store.KeyBusFactorCache, result, c.cfg.CacheTTL); err != nil {
		return nil, fmt.Errorf("store bus factor cache: %w", err)
	}
	metrics.RecordSyncSuccess("busfactor", c.now().Sub(start))
	return result, nil
}

func (c *BusFactorCalculator) analyzeDirectory(ctx context.Context, dir string, since time.Time) (*models.DirectoryBusFactor, error) {
	// Count in first-seen order so ties between equal commit counts
	// break deterministically.
	index := make(map[string]int)
	var contributors []models.AuthorCommit
	total := 0

	for page := 1; page <= c.cfg.MaxPages; page++ {
		commits, err := c.client.Commits(ctx, dir, since, page)
		if err != nil {
			return nil, err
		}
		for _, commit := range commits {
			if commit.Author == nil || commit.Author.Login == "" {
				continue
			}
			total++
			if i, ok := index[commit.Author.Login]; ok {
				contributors[i].Commits++
				continue
			}
			index[commit.Author.Login] = len(contributors)
			contributors = append(contributors, models.AuthorCommit{Login: commit.Author.Login, Commits: 1})
		}
		if len(commits) < 100 {
			break
		}
	}

	sort.SliceStable(contributors, func(i, j int) bool {
		return contributors[i].Commits > contributors[j].Commits
	})

	return &models.DirectoryBusFactor{
		Directory:    dir,
		BusFactor:    busFactor(contributors, total),
		TotalCommits: total,
		Contributors: contributors,
	}, nil
}

// busFactor is the minimum number of top contributors whose cumulative
// commits reach at least half the total.
func busFactor(contributors []models.AuthorCommit, total int) int {
	if total == 0 {
		return 0
	}
	cumulative := 0
	for i, c := range contributors {
		cumulative += c.Commits
		if cumulative*2 >= total {
			return i + 1
		}
	}
	return len(contributors)
}
