// RepoPulse - GitHub CI and Issue Analytics Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/repopulse

// Package scheduler drives the periodic CI aggregation and item sync
// cycles and exposes the manual triggers used by the HTTP API.
//
// Scheduled and manual triggers of the same kind are serialized with a
// per-kind mutex so a slow cycle and an operator refresh do not run
// concurrently. Writes are full-state rebuilds, so an overlap would
// only waste work, not corrupt data; serializing just avoids burning
// upstream rate limit twice for the same answer.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/repopulse/internal/logging"
	"github.com/tomtom215/repopulse/internal/models"
)

// CISyncer is the aggregation surface the scheduler drives.
type CISyncer interface {
	SyncCIData(ctx context.Context, limit int) (*models.CISnapshot, error)
	MissingDateRanges() ([]models.DateRange, error)
	BackfillRange(ctx context.Context, gap models.DateRange) (int, error)
}

// ItemSyncer is the item-mirror surface the scheduler drives.
type ItemSyncer interface {
	Sync(ctx context.Context, force bool) (*models.SyncResult, error)
}

// Config holds the scheduler intervals. A zero interval disables that
// loop.
type Config struct {
	CIInterval    time.Duration
	ItemsInterval time.Duration
}

// Manager owns the background sync loops.
type Manager struct {
	ci    CISyncer
	items ItemSyncer
	cfg   Config

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup

	ciMu    sync.Mutex
	itemsMu sync.Mutex
}

// New creates a Manager.
func New(ci CISyncer, items ItemSyncer, cfg Config) *Manager {
	return &Manager{ci: ci, items: items, cfg: cfg}
}

// Start launches the sync loops. Each loop runs one cycle immediately
// and then on its interval. Calling Start on a running manager is a
// no-op.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stopChan = make(chan struct{})

	if m.cfg.CIInterval > 0 {
		m.wg.Add(1)
		go m.loop(ctx, "ci", m.cfg.CIInterval, func(ctx context.Context) error {
			_, err := m.TriggerCISync(ctx, 0, true)
			return err
		})
	}
	if m.cfg.ItemsInterval > 0 {
		m.wg.Add(1)
		go m.loop(ctx, "items", m.cfg.ItemsInterval, func(ctx context.Context) error {
			_, err := m.TriggerItemSync(ctx, false)
			return err
		})
	}
	logging.Info().
		Dur("ci_interval", m.cfg.CIInterval).
		Dur("items_interval", m.cfg.ItemsInterval).
		Msg("Scheduler started")
}

// Stop halts the loops and waits for in-flight cycles to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopChan)
	m.mu.Unlock()

	m.wg.Wait()
	logging.Info().Msg("Scheduler stopped")
}

func (m *Manager) loop(ctx context.Context, kind string, interval time.Duration, run func(context.Context) error) {
	defer m.wg.Done()

	if err := run(ctx); err != nil {
		logging.Error().Err(err).Str("kind", kind).Msg("Scheduled sync failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := run(ctx); err != nil {
				logging.Error().Err(err).Str("kind", kind).Msg("Scheduled sync failed")
			}
		case <-m.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// TriggerCISync runs one CI aggregation cycle. With backfill set, gaps
// in the snapshot history are detected after the sync and filled; the
// ranges found are reported either way.
func (m *Manager) TriggerCISync(ctx context.Context, limit int, backfill bool) (*models.RefreshResult, error) {
	m.ciMu.Lock()
	defer m.ciMu.Unlock()

	snapshot, err := m.ci.SyncCIData(ctx, limit)
	if err != nil {
		return nil, err
	}

	result := &models.RefreshResult{
		LastUpdated: snapshot.LastUpdated,
		TotalRuns:   snapshot.TotalRuns,
	}

	gaps, err := m.ci.MissingDateRanges()
	if err != nil {
		// Gap detection failing does not invalidate the fresh sync.
		logging.Ctx(ctx).Warn().Err(err).Msg("Gap detection failed")
		return result, nil
	}
	result.GapsFound = gaps

	if backfill {
		for _, gap := range gaps {
			if _, err := m.ci.BackfillRange(ctx, gap); err != nil {
				logging.Ctx(ctx).Warn().
					Err(err).
					Str("start", gap.Start).
					Str("end", gap.End).
					Msg("Backfill aborted for range")
			}
		}
	}
	return result, nil
}

// TriggerItemSync runs one item-mirror sync cycle.
func (m *Manager) TriggerItemSync(ctx context.Context, force bool) (*models.SyncResult, error) {
	m.itemsMu.Lock()
	defer m.itemsMu.Unlock()
	return m.items.Sync(ctx, force)
}
