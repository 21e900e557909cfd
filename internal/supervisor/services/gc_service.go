// RepoPulse - GitHub CI and Issue Analytics Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/repopulse

package services

import (
	"context"
	"time"

	"github.com/tomtom215/repopulse/internal/logging"
)

// GarbageCollector is the store's value-log GC entry point.
type GarbageCollector interface {
	RunGC() error
}

// GCService periodically runs Badger value-log garbage collection.
// Daily snapshots expire by TTL; without GC passes the value log only
// grows.
type GCService struct {
	store    GarbageCollector
	interval time.Duration
}

// NewGCService wraps store. A zero interval defaults to 10 minutes.
func NewGCService(store GarbageCollector, interval time.Duration) *GCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &GCService{store: store, interval: interval}
}

// Serve implements suture.Service.
func (s *GCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.store.RunGC(); err != nil {
				logging.Warn().Err(err).Msg("store gc pass failed")
			}
		}
	}
}

// String implements fmt.Stringer for suture's event log.
func (s *GCService) String() string {
	return "store-gc"
}
