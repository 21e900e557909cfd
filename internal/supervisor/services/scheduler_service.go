// RepoPulse - GitHub CI and Issue Analytics Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/repopulse

package services

import (
	"context"
)

// StartStopManager matches the scheduler.Manager lifecycle.
type StartStopManager interface {
	Start(ctx context.Context)
	Stop()
}

// SchedulerService adapts the Start/Stop scheduler to suture's Serve
// pattern: start, block until cancellation, stop and wait for the sync
// loops to drain.
type SchedulerService struct {
	manager StartStopManager
}

// NewSchedulerService wraps manager as a supervised service.
func NewSchedulerService(manager StartStopManager) *SchedulerService {
	return &SchedulerService{manager: manager}
}

// Serve implements suture.Service.
func (s *SchedulerService) Serve(ctx context.Context) error {
	s.manager.Start(ctx)

	<-ctx.Done()

	// Stop blocks until both sync loops have exited.
	s.manager.Stop()
	return ctx.Err()
}

// String implements fmt.Stringer for suture's event log.
func (s *SchedulerService) String() string {
	return "scheduler"
}
