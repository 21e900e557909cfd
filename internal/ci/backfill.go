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
	"time"

	"github.com/tomtom215/repopulse/internal/logging"
	"github.com/tomtom215/repopulse/internal/metrics"
	"github.com/tomtom215/repopulse/internal/models"
	"github.com/tomtom215/repopulse/internal/store"
)

// MissingDateRanges inspects the date index and reports the calendar
// ranges (inclusive) with no daily snapshot, up to the retention
// horizon. Today is never reported: the regular sync owns it, so a
// gap's end is always yesterday relative to the next known date or to
// now.
func (a *Aggregator) MissingDateRanges() ([]models.DateRange, error) {
	var dates []string
	if err := a.store.GetJSON(store.KeyDateIndex, &dates); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("read date index: %w", err)
	}

	today := a.now().UTC().Truncate(24 * time.Hour)
	horizonStart := today.AddDate(0, 0, -a.cfg.RetentionDays)
	yesterday := today.AddDate(0, 0, -1)

	if len(dates) == 0 {
		if yesterday.Before(horizonStart) {
			return nil, nil
		}
		return []models.DateRange{{
			Start: horizonStart.Format(models.DateOnly),
			End:   yesterday.Format(models.DateOnly),
		}}, nil
	}

	sort.Strings(dates)
	known := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		t, err := time.Parse(models.DateOnly, d)
		if err != nil {
			// A malformed index entry cannot be backfilled around;
			// skip it rather than abort gap detection.
			logging.Warn().Str("date", d).Msg("Ignoring malformed date index entry")
			continue
		}
		known = append(known, t)
	}
	if len(known) == 0 {
		return []models.DateRange{{
			Start: horizonStart.Format(models.DateOnly),
			End:   yesterday.Format(models.DateOnly),
		}}, nil
	}

	var gaps []models.DateRange
	addGap := func(start, end time.Time) {
		if start.Before(horizonStart) {
			start = horizonStart
		}
		if end.After(yesterday) {
			end = yesterday
		}
		if end.Before(start) {
			return
		}
		gaps = append(gaps, models.DateRange{
			Start: start.Format(models.DateOnly),
			End:   end.Format(models.DateOnly),
		})
	}

	// Before the earliest known date.
	addGap(horizonStart, known[0].AddDate(0, 0, -1))
	// Between consecutive known dates.
	for i := 1; i < len(known); i++ {
		prev, next := known[i-1], known[i]
		if next.Sub(prev) > 24*time.Hour {
			addGap(prev.AddDate(0, 0, 1), next.AddDate(0, 0, -1))
		}
	}
	// After the latest known date, up to yesterday.
	addGap(known[len(known)-1].AddDate(0, 0, 1), yesterday)

	return gaps, nil
}

// BackfillRange fills one gap a day at a time. Each day queries only
// runs created within that day, so the 7-day fields of backfilled
// snapshots hold that day's own rates as a stand-in; the true rolling
// window cannot be reconstructed after the fact.
//
// A failed day is logged and skipped. A day with zero runs is still
// recorded in the index with no job entries, so it is not re-detected
// as a gap forever. Returns the number of days written.
func (a *Aggregator) BackfillRange(ctx context.Context, gap models.DateRange) (int, error) {
	startDay, err := time.Parse(models.DateOnly, gap.Start)
	if err != nil {
		return 0, fmt.Errorf("parse gap start %q: %w", gap.Start, err)
	}
	endDay, err := time.Parse(models.DateOnly, gap.End)
	if err != nil {
		return 0, fmt.Errorf("parse gap end %q: %w", gap.End, err)
	}

	written := 0
	for day := startDay; !day.After(endDay); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		date := day.Format(models.DateOnly)
		if err := a.backfillDay(ctx, date); err != nil {
			metrics.SyncErrors.WithLabelValues("backfill", "day_fetch").Inc()
			logging.Ctx(ctx).Warn().
				Err(err).
				Str("date", date).
				Msg("Skipping day: backfill failed")
			continue
		}
		written++
		metrics.BackfillDaysTotal.Inc()

		if a.cfg.BackfillDelay > 0 && day.Before(endDay) {
			select {
			case <-time.After(a.cfg.BackfillDelay):
			case <-ctx.Done():
				return written, ctx.Err()
			}
		}
	}

	logging.Ctx(ctx).Info().
		Str("start", gap.Start).
		Str("end", gap.End).
		Int("days_written", written).
		Msg("Backfill range complete")
	return written, nil
}

func (a *Aggregator) backfillDay(ctx context.Context, date string) error {
	created := date + ".." + date
	runs, err := a.client.WorkflowRunsCreated(ctx, a.cfg.Branch, created, a.cfg.RunLimit)
	if err != nil {
		return fmt.Errorf("fetch runs for %s: %w", date, err)
	}

	jobsByRun := a.fetchJobs(ctx, runs)
	jobStats := buildJobStats(runs, jobsByRun, nil)

	return a.writeDailySnapshot(date, jobStats)
}
