// RepoPulse - GitHub CI and Issue Analytics Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/repopulse

package ci

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/repopulse/internal/models"
	"github.com/tomtom215/repopulse/internal/store"
)

// ErrNoData is returned by read operations when nothing is cached for
// the requested range yet. Callers translate it into a "needs sync"
// response rather than a failure.
var ErrNoData = errors.New("ci: no data for requested range")

// CurrentSnapshot returns the cached current snapshot, or ErrNoData
// when none exists (or it has expired).
func (a *Aggregator) CurrentSnapshot() (*models.CISnapshot, error) {
	var snapshot models.CISnapshot
	err := a.store.GetJSON(store.KeyCIData, &snapshot)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoData
	}
	if err != nil {
		return nil, fmt.Errorf("read current snapshot: %w", err)
	}
	return &snapshot, nil
}

// AggregateRange merges the daily snapshots within [startDate, endDate]
// (inclusive, YYYY-MM-DD) into a single snapshot-shaped result.
// Read-only and idempotent; snapshots are fetched in parallel.
//
// Per job, failure/success counts are summed across days; instances
// are deduplicated by job-instance ID and recent failures by run ID,
// keeping the 5 most recent by timestamp after dedup.
func (a *Aggregator) AggregateRange(ctx context.Context, startDate, endDate string) (*models.CISnapshot, error) {
	var dates []string
	if err := a.store.GetJSON(store.KeyDateIndex, &dates); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoData
		}
		return nil, fmt.Errorf("read date index: %w", err)
	}

	var inRange []string
	for _, d := range dates {
		if d >= startDate && d <= endDate {
			inRange = append(inRange, d)
		}
	}
	if len(inRange) == 0 {
		return nil, ErrNoData
	}

	var (
		mu        sync.Mutex
		snapshots []*models.DailySnapshot
	)
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, date := range inRange {
		g.Go(func() error {
			var daily models.DailySnapshot
			err := a.store.GetJSON(store.DailyKey(date), &daily)
			if errors.Is(err, store.ErrNotFound) {
				// Index entry whose snapshot expired early; tolerated.
				return nil
			}
			if err != nil {
				return fmt.Errorf("read daily snapshot %s: %w", date, err)
			}
			mu.Lock()
			snapshots = append(snapshots, &daily)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, ErrNoData
	}

	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].Date < snapshots[j].Date })
	return mergeSnapshots(snapshots), nil
}

func mergeSnapshots(snapshots []*models.DailySnapshot) *models.CISnapshot {
	merged := make(map[string]*models.JobStatistic)
	seenInstances := make(map[string]map[int64]struct{})
	seenFailures := make(map[string]map[int64]struct{})
	runIDs := make(map[int64]struct{})

	for _, daily := range snapshots {
		for name, js := range daily.Jobs {
			m := merged[name]
			if m == nil {
				m = &models.JobStatistic{}
				merged[name] = m
				seenInstances[name] = make(map[int64]struct{})
				seenFailures[name] = make(map[int64]struct{})
			}

			m.Failures += js.Failures
			m.Successes += js.Successes
			m.TotalRuns += js.TotalRuns
			m.Last7Days.Failures += js.Last7Days.Failures
			m.Last7Days.Successes += js.Last7Days.Successes
			m.Last7Days.TotalRuns += js.Last7Days.TotalRuns

			for _, inst := range js.Instances {
				if _, ok := seenInstances[name][inst.ID]; ok {
					continue
				}
				seenInstances[name][inst.ID] = struct{}{}
				m.Instances = append(m.Instances, inst)
				runIDs[inst.RunID] = struct{}{}
			}
			for _, f := range js.RecentFailures {
				if _, ok := seenFailures[name][f.RunID]; ok {
					continue
				}
				seenFailures[name][f.RunID] = struct{}{}
				m.RecentFailures = append(m.RecentFailures, f)
			}
		}
	}

	var lastUpdated = snapshots[len(snapshots)-1].CreatedAt
	for _, m := range merged {
		m.Recalculate()
		m.Last7Days.Recalculate()

		sort.SliceStable(m.Instances, func(a, b int) bool {
			return m.Instances[a].Timestamp.After(m.Instances[b].Timestamp)
		})
		sort.SliceStable(m.RecentFailures, func(a, b int) bool {
			return m.RecentFailures[a].Timestamp.After(m.RecentFailures[b].Timestamp)
		})
		if len(m.RecentFailures) > models.MaxRecentFailures {
			m.RecentFailures = m.RecentFailures[:models.MaxRecentFailures]
		}
	}

	return &models.CISnapshot{
		LastUpdated: lastUpdated,
		TotalRuns:   len(runIDs),
		JobStats:    merged,
	}
}
