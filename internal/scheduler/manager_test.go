// RepoPulse - GitHub CI and Issue Analytics Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/repopulse

package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/repopulse/internal/models"
)

type fakeCI struct {
	mu           sync.Mutex
	syncCalls    int
	backfills    []models.DateRange
	gaps         []models.DateRange
	syncErr      error
	gapsErr      error
	lastLimit    int
	snapshotTime time.Time
}

func (f *fakeCI) SyncCIData(_ context.Context, limit int) (*models.CISnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncCalls++
	f.lastLimit = limit
	if f.syncErr != nil {
		return nil, f.syncErr
	}
	return &models.CISnapshot{LastUpdated: f.snapshotTime, TotalRuns: 7}, nil
}

func (f *fakeCI) MissingDateRanges() ([]models.DateRange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gaps, f.gapsErr
}

func (f *fakeCI) BackfillRange(_ context.Context, gap models.DateRange) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backfills = append(f.backfills, gap)
	return 1, nil
}

type fakeItems struct {
	mu        sync.Mutex
	syncCalls int
	lastForce bool
}

func (f *fakeItems) Sync(_ context.Context, force bool) (*models.SyncResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncCalls++
	f.lastForce = force
	return &models.SyncResult{TotalItems: 3}, nil
}

func TestTriggerCISyncBackfillsGaps(t *testing.T) {
	ci := &fakeCI{
		gaps:         []models.DateRange{{Start: "2026-01-02", End: "2026-01-02"}},
		snapshotTime: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
	}
	m := New(ci, &fakeItems{}, Config{})

	result, err := m.TriggerCISync(context.Background(), 50, true)
	if err != nil {
		t.Fatalf("TriggerCISync() error = %v", err)
	}
	if result.TotalRuns != 7 {
		t.Errorf("TotalRuns = %d, want 7", result.TotalRuns)
	}
	if ci.lastLimit != 50 {
		t.Errorf("limit passed through = %d, want 50", ci.lastLimit)
	}
	if len(result.GapsFound) != 1 {
		t.Errorf("GapsFound = %v, want the detected gap", result.GapsFound)
	}
	if len(ci.backfills) != 1 || ci.backfills[0].Start != "2026-01-02" {
		t.Errorf("backfills = %v", ci.backfills)
	}
}

func TestTriggerCISyncWithoutBackfillReportsGapsOnly(t *testing.T) {
	ci := &fakeCI{gaps: []models.DateRange{{Start: "2026-01-02", End: "2026-01-03"}}}
	m := New(ci, &fakeItems{}, Config{})

	result, err := m.TriggerCISync(context.Background(), 0, false)
	if err != nil {
		t.Fatalf("TriggerCISync() error = %v", err)
	}
	if len(result.GapsFound) != 1 {
		t.Errorf("GapsFound = %v", result.GapsFound)
	}
	if len(ci.backfills) != 0 {
		t.Errorf("backfills = %v, want none", ci.backfills)
	}
}

func TestTriggerCISyncPropagatesSyncFailure(t *testing.T) {
	ci := &fakeCI{syncErr: errors.New("upstream down")}
	m := New(ci, &fakeItems{}, Config{})

	if _, err := m.TriggerCISync(context.Background(), 0, true); err == nil {
		t.Fatal("expected error from failed sync")
	}
	if len(ci.backfills) != 0 {
		t.Error("must not backfill after a failed sync")
	}
}

func TestTriggerCISyncToleratesGapDetectionFailure(t *testing.T) {
	ci := &fakeCI{gapsErr: errors.New("index unreadable")}
	m := New(ci, &fakeItems{}, Config{})

	result, err := m.TriggerCISync(context.Background(), 0, true)
	if err != nil {
		t.Fatalf("TriggerCISync() error = %v, want sync result despite gap failure", err)
	}
	if result.GapsFound != nil {
		t.Errorf("GapsFound = %v, want nil", result.GapsFound)
	}
}

func TestStartRunsLoopsAndStops(t *testing.T) {
	ci := &fakeCI{}
	items := &fakeItems{}
	m := New(ci, items, Config{CIInterval: time.Hour, ItemsInterval: time.Hour})

	m.Start(context.Background())
	// Each loop runs once immediately.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ci.mu.Lock()
		ciRan := ci.syncCalls > 0
		ci.mu.Unlock()
		items.mu.Lock()
		itemsRan := items.syncCalls > 0
		items.mu.Unlock()
		if ciRan && itemsRan {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	m.Stop()

	if ci.syncCalls == 0 {
		t.Error("CI loop never ran")
	}
	if items.syncCalls == 0 {
		t.Error("items loop never ran")
	}

	// Stop is idempotent and Start after Stop is allowed.
	m.Stop()
}

func TestTriggerItemSyncPassesForce(t *testing.T) {
	items := &fakeItems{}
	m := New(&fakeCI{}, items, Config{})

	result, err := m.TriggerItemSync(context.Background(), true)
	if err != nil {
		t.Fatalf("TriggerItemSync() error = %v", err)
	}
	if result.TotalItems != 3 {
		t.Errorf("TotalItems = %d", result.TotalItems)
	}
	if !items.lastForce {
		t.Error("force flag not passed through")
	}
}
