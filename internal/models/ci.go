// RepoPulse - GitHub CI and Issue Analytics Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/repopulse

// Package models contains the persisted and API-facing data structures
// shared by the aggregation, sync, and HTTP layers.
package models

import "time"

// Job conclusions as reported by the GitHub Actions API.
// Only success and failure count toward statistics; cancelled and
// skipped jobs are excluded from every total.
const (
	ConclusionSuccess   = "success"
	ConclusionFailure   = "failure"
	ConclusionCancelled = "cancelled"
	ConclusionSkipped   = "skipped"
)

// WindowStats holds success/failure counts for a time window.
// FailureRate is a percentage; it is 0 (never NaN) when no runs counted.
type WindowStats struct {
	TotalRuns   int     `json:"totalRuns"`
	Failures    int     `json:"failures"`
	Successes   int     `json:"successes"`
	FailureRate float64 `json:"failureRate"`
}

// Recalculate recomputes FailureRate from the current counts.
// Called once after a full accumulation pass, never incrementally,
// so rounding does not depend on processing order.
func (w *WindowStats) Recalculate() {
	denom := w.Failures + w.Successes
	if denom == 0 {
		w.FailureRate = 0
		return
	}
	w.FailureRate = float64(w.Failures) / float64(denom) * 100
}

// JobInstance is one execution of a named job within a workflow run.
type JobInstance struct {
	ID          int64      `json:"id"`
	RunID       int64      `json:"runId"`
	RunNumber   int        `json:"runNumber"`
	Conclusion  string     `json:"conclusion"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	URL         string     `json:"url"`
	RunURL      string     `json:"runUrl"`
	// Timestamp is the creation time of the owning workflow run. It is
	// the ordering key for instances and the 7-day window check.
	Timestamp time.Time `json:"timestamp"`
}

// FailureDetail identifies a single failed job execution.
type FailureDetail struct {
	RunID     int64     `json:"runId"`
	RunNumber int       `json:"runNumber"`
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
	JobURL    string    `json:"jobUrl"`
}

// MaxRecentFailures bounds the per-job recent failure list.
const MaxRecentFailures = 5

// JobStatistic is the full per-job statistics record, rebuilt from
// scratch on every sync cycle. The previous cycle's value is replaced
// wholesale rather than updated incrementally.
type JobStatistic struct {
	WindowStats
	Last7Days      WindowStats     `json:"last7Days"`
	RecentFailures []FailureDetail `json:"recentFailures"`
	Instances      []JobInstance   `json:"instances"`
}

// CISnapshot is the "current" view served to the dashboard.
type CISnapshot struct {
	LastUpdated time.Time                `json:"lastUpdated"`
	TotalRuns   int                      `json:"totalRuns"`
	JobStats    map[string]*JobStatistic `json:"jobStats"`
}

// DailySnapshot holds one calendar day's per-job statistics.
// At most one snapshot exists per date; re-running sync on the same
// day overwrites it.
type DailySnapshot struct {
	Date      string                   `json:"date"` // YYYY-MM-DD, UTC
	CreatedAt time.Time                `json:"createdAt"`
	Jobs      map[string]*JobStatistic `json:"jobs"`
}

// DateRange is a closed range of calendar days (both ends inclusive).
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// RefreshResult reports the outcome of a CI refresh operation.
type RefreshResult struct {
	LastUpdated time.Time   `json:"lastUpdated"`
	TotalRuns   int         `json:"totalRuns"`
	GapsFound   []DateRange `json:"gapsFound,omitempty"`
}

// DateOnly is the calendar-date layout used for snapshot keys and the
// date index.
const DateOnly = "2006-01-02"
