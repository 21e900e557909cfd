// RepoPulse - GitHub CI and Issue Analytics Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/repopulse

// Package ci computes per-job CI failure statistics from GitHub
// Actions workflow runs and maintains the gap-free daily snapshot
// history.
//
// Statistics are rebuilt from scratch on every sync cycle rather than
// updated incrementally. That trades O(runs) recomputation per cycle
// for idempotence: two syncs over the same upstream data produce
// identical output, and a crashed sync leaves nothing to repair.
package ci

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/repopulse/internal/githubapi"
	"github.com/tomtom215/repopulse/internal/logging"
	"github.com/tomtom215/repopulse/internal/metrics"
	"github.com/tomtom215/repopulse/internal/models"
	"github.com/tomtom215/repopulse/internal/store"
)

// RunsClient is the slice of the GitHub client the aggregator uses.
type RunsClient interface {
	WorkflowRuns(ctx context.Context, branch string, limit int) ([]githubapi.WorkflowRun, error)
	WorkflowRunsCreated(ctx context.Context, branch, created string, limit int) ([]githubapi.WorkflowRun, error)
	Jobs(ctx context.Context, jobsURL string) ([]githubapi.Job, error)
}

// Storage is the slice of the key-value store the aggregator uses.
type Storage interface {
	GetJSON(key string, v interface{}) error
	PutJSON(key string, v interface{}, ttl time.Duration) error
}

// Config holds the aggregator's tunables.
type Config struct {
	Branch string
	// RunLimit caps how many workflow runs one sync pass examines.
	RunLimit int
	// JobConcurrency bounds concurrent job-detail fetches.
	JobConcurrency int
	// RetentionDays is the daily-snapshot horizon.
	RetentionDays int
	// CurrentTTL is the expiration of the frequently-polled current
	// snapshot.
	CurrentTTL time.Duration
	// BackfillDelay is the pause between backfilled days.
	BackfillDelay time.Duration
}

// Aggregator fetches workflow runs, computes per-job statistics, and
// persists the current snapshot, daily snapshots, and the date index.
type Aggregator struct {
	client RunsClient
	store  Storage
	cfg    Config
	now    func() time.Time
}

// New creates an Aggregator. Zero config fields fall back to sane
// defaults.
func New(client RunsClient, st Storage, cfg Config) *Aggregator {
	if cfg.RunLimit <= 0 {
		cfg.RunLimit = 100
	}
	if cfg.JobConcurrency <= 0 {
		cfg.JobConcurrency = 8
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 180
	}
	if cfg.CurrentTTL <= 0 {
		cfg.CurrentTTL = time.Hour
	}
	return &Aggregator{
		client: client,
		store:  st,
		cfg:    cfg,
		now:    time.Now,
	}
}

// SyncCIData performs one full aggregation pass: fetch runs, fetch job
// details in bounded batches, rebuild all per-job statistics, and
// persist the current snapshot plus today's daily snapshot. A limit of
// zero or less uses the configured run limit.
//
// A failed run-list fetch aborts the sync with nothing stored. A
// failed job fetch for a single run only drops that run's jobs.
func (a *Aggregator) SyncCIData(ctx context.Context, limit int) (*models.CISnapshot, error) {
	start := a.now()
	if limit <= 0 {
		limit = a.cfg.RunLimit
	}

	runs, err := a.client.WorkflowRuns(ctx, a.cfg.Branch, limit)
	if err != nil {
		metrics.SyncErrors.WithLabelValues("ci", "run_fetch").Inc()
		return nil, fmt.Errorf("sync ci data: %w", err)
	}

	jobsByRun := a.fetchJobs(ctx, runs)

	// The 7-day window is fixed once at sync start so every job is
	// judged against the same boundary.
	windowStart := start.Add(-7 * 24 * time.Hour)
	jobStats := buildJobStats(runs, jobsByRun, &windowStart)

	snapshot := &models.CISnapshot{
		LastUpdated: start.UTC(),
		TotalRuns:   len(runs),
		JobStats:    jobStats,
	}

	if err := a.store.PutJSON(store.KeyCIData, snapshot, a.cfg.CurrentTTL); err != nil {
		return nil, fmt.Errorf("store current snapshot: %w", err)
	}

	today := start.UTC().Format(models.DateOnly)
	if err := a.writeDailySnapshot(today, jobStats); err != nil {
		return nil, err
	}

	metrics.RecordSyncSuccess("ci", a.now().Sub(start))
	logging.Ctx(ctx).Info().
		Int("total_runs", len(runs)).
		Int("jobs", len(jobStats)).
		Str("branch", a.cfg.Branch).
		Msg("CI sync complete")
	return snapshot, nil
}

// fetchJobs retrieves job details for each run with a bounded fan-out.
// Failed runs are logged and skipped rather than failing the pass; the
// corresponding slot stays nil.
func (a *Aggregator) fetchJobs(ctx context.Context, runs []githubapi.WorkflowRun) [][]githubapi.Job {
	jobsByRun := make([][]githubapi.Job, len(runs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.JobConcurrency)
	for i, run := range runs {
		g.Go(func() error {
			jobs, err := a.client.Jobs(gctx, run.JobsURL)
			if err != nil {
				metrics.SyncErrors.WithLabelValues("ci", "job_fetch").Inc()
				logging.Ctx(ctx).Warn().
					Err(err).
					Int64("run_id", run.ID).
					Msg("Skipping run: job fetch failed")
				return nil
			}
			jobsByRun[i] = jobs
			return nil
		})
	}
	// Workers never return errors; Wait only observes ctx cancellation.
	_ = g.Wait()
	return jobsByRun
}

// buildJobStats rebuilds the per-job statistics map from one fetched
// run set. windowStart bounds the rolling 7-day sub-window; when nil,
// the 7-day fields mirror the full-window counts (used by backfill,
// where only a single day's runs are visible).
func buildJobStats(runs []githubapi.WorkflowRun, jobsByRun [][]githubapi.Job, windowStart *time.Time) map[string]*models.JobStatistic {
	stats := make(map[string]*models.JobStatistic)

	for i, run := range runs {
		for _, job := range jobsByRun[i] {
			if job.Conclusion != models.ConclusionSuccess && job.Conclusion != models.ConclusionFailure {
				continue
			}

			js := stats[job.Name]
			if js == nil {
				js = &models.JobStatistic{}
				stats[job.Name] = js
			}

			failed := job.Conclusion == models.ConclusionFailure
			js.TotalRuns++
			if failed {
				js.Failures++
			} else {
				js.Successes++
			}

			if windowStart != nil && !run.CreatedAt.Before(*windowStart) {
				js.Last7Days.TotalRuns++
				if failed {
					js.Last7Days.Failures++
				} else {
					js.Last7Days.Successes++
				}
			}

			if failed {
				js.RecentFailures = append(js.RecentFailures, models.FailureDetail{
					RunID:     run.ID,
					RunNumber: run.RunNumber,
					URL:       run.HTMLURL,
					Timestamp: run.CreatedAt,
					JobURL:    job.HTMLURL,
				})
			}

			js.Instances = append(js.Instances, models.JobInstance{
				ID:          job.ID,
				RunID:       run.ID,
				RunNumber:   run.RunNumber,
				Conclusion:  job.Conclusion,
				StartedAt:   job.StartedAt,
				CompletedAt: job.CompletedAt,
				URL:         job.HTMLURL,
				RunURL:      run.HTMLURL,
				Timestamp:   run.CreatedAt,
			})
		}
	}

	// Rates and truncation happen only after the full pass, never
	// incrementally, so results do not depend on processing order.
	for _, js := range stats {
		js.Recalculate()
		if windowStart == nil {
			js.Last7Days = js.WindowStats
		} else {
			js.Last7Days.Recalculate()
		}

		// Keep the most recently appended failures in discovery order.
		if len(js.RecentFailures) > models.MaxRecentFailures {
			js.RecentFailures = js.RecentFailures[len(js.RecentFailures)-models.MaxRecentFailures:]
		}

		sort.SliceStable(js.Instances, func(a, b int) bool {
			return js.Instances[a].Timestamp.After(js.Instances[b].Timestamp)
		})
	}
	return stats
}

// writeDailySnapshot upserts the snapshot for one calendar date and
// inserts the date into the index.
func (a *Aggregator) writeDailySnapshot(date string, jobStats map[string]*models.JobStatistic) error {
	daily := &models.DailySnapshot{
		Date:      date,
		CreatedAt: a.now().UTC(),
		Jobs:      jobStats,
	}
	ttl := time.Duration(a.cfg.RetentionDays) * 24 * time.Hour
	if err := a.store.PutJSON(store.DailyKey(date), daily, ttl); err != nil {
		return fmt.Errorf("store daily snapshot %s: %w", date, err)
	}
	if err := a.updateDateIndex(date); err != nil {
		return err
	}
	return nil
}

// updateDateIndex inserts date into the index, keeping it sorted,
// deduplicated, and capped at the retention horizon (oldest dropped
// first).
func (a *Aggregator) updateDateIndex(date string) error {
	var dates []string
	if err := a.store.GetJSON(store.KeyDateIndex, &dates); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("read date index: %w", err)
	}

	dates = insertDate(dates, date, a.cfg.RetentionDays)

	if err := a.store.PutJSON(store.KeyDateIndex, dates, 0); err != nil {
		return fmt.Errorf("store date index: %w", err)
	}
	return nil
}

// insertDate returns dates with date inserted, sorted ascending,
// deduplicated, and truncated to at most max entries from the newest
// end. Calendar dates in YYYY-MM-DD sort correctly as strings.
func insertDate(dates []string, date string, max int) []string {
	seen := make(map[string]struct{}, len(dates)+1)
	out := make([]string, 0, len(dates)+1)
	for _, d := range append(dates, date) {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Strings(out)
	if len(out) > max {
		out = out[len(out)-max:]
	}
	return out
}
