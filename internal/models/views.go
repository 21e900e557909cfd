// RepoPulse - GitHub CI and Issue Analytics Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/repopulse

package models

import "time"

// OpenCount is one point of the daily open-item time series.
type OpenCount struct {
	Date      string `json:"date"` // YYYY-MM-DD
	OpenCount int    `json:"openCount"`
}

// LabelSeries holds per-label open-count time series over a date range.
// Timestamps, Total, and every Labels entry share the same length and
// day ordering.
type LabelSeries struct {
	Timestamps []string         `json:"timestamps"`
	Total      []int            `json:"total"`
	Labels     map[string][]int `json:"labels"`
}

// TriageTotals summarizes the triage buckets.
type TriageTotals struct {
	Untriaged   int `json:"untriaged"`
	AwaitingDev int `json:"awaitingDev"`
	OpenIssues  int `json:"openIssues"`
}

// TriageResult partitions open issues into mutually exclusive buckets.
// AwaitingDev takes precedence: an issue carrying both an awaiting
// label and no blocking label lands in AwaitingDev, not Untriaged.
type TriageResult struct {
	Untriaged   []GitHubItem `json:"untriaged"`
	AwaitingDev []GitHubItem `json:"awaitingDev"`
	Totals      TriageTotals `json:"totals"`
}

// PRHealthItem is a PR annotated with age and staleness in whole days.
type PRHealthItem struct {
	GitHubItem
	AgeDays   int `json:"ageDays"`
	StaleDays int `json:"staleDays"`
}

// PRHealthStats summarizes the filtered PR set.
type PRHealthStats struct {
	Count        int     `json:"count"`
	AvgAgeDays   float64 `json:"avgAgeDays"`
	AvgStaleDays float64 `json:"avgStaleDays"`
	MaxStaleDays int     `json:"maxStaleDays"`
}

// PRHealthResult is the sortable PR staleness view.
type PRHealthResult struct {
	PRs   []PRHealthItem `json:"prs"`
	Stats PRHealthStats  `json:"stats"`
}

// DirectoryBusFactor is the bus-factor result for one monitored
// directory: the minimum number of top contributors whose cumulative
// share of commits reaches at least 50%.
type DirectoryBusFactor struct {
	Directory    string         `json:"directory"`
	BusFactor    int            `json:"busFactor"`
	TotalCommits int            `json:"totalCommits"`
	Contributors []AuthorCommit `json:"contributors"`
}

// AuthorCommit is a per-author commit count within the analysis window.
type AuthorCommit struct {
	Login   string `json:"login"`
	Commits int    `json:"commits"`
}

// BusFactorResult is the cached bus-factor report across all monitored
// directories.
type BusFactorResult struct {
	Data        []DirectoryBusFactor `json:"data"`
	TeamMembers []string             `json:"teamMembers"`
	GeneratedAt time.Time            `json:"generatedAt"`
	Cached      bool                 `json:"cached"`
}
