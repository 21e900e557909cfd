// RepoPulse - GitHub CI and Issue Analytics Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/repopulse

package models

import "time"

// Item types. Issue and PR numbers share one numbering space, so the
// item number alone is a unique key across both.
const (
	ItemTypeIssue = "issue"
	ItemTypePR    = "pr"
)

// Item states. StateMerged is only reachable for PRs; an issue is only
// ever open or closed.
const (
	StateOpen   = "open"
	StateClosed = "closed"
	StateMerged = "merged"
)

// ItemAuthor is the author of an issue or PR. Nil when the upstream
// account has been deleted.
type ItemAuthor struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// ItemLabel is a label attached to an issue or PR.
type ItemLabel struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// GitHubItem is the mirrored metadata for one issue or PR. Only the
// latest observed state is kept; every sync observation overwrites the
// row in place.
type GitHubItem struct {
	Number    int         `json:"number"`
	Type      string      `json:"type"`
	Title     string      `json:"title"`
	State     string      `json:"state"`
	CreatedAt time.Time   `json:"createdAt"`
	ClosedAt  *time.Time  `json:"closedAt,omitempty"`
	UpdatedAt time.Time   `json:"updatedAt"`
	Author    *ItemAuthor `json:"author,omitempty"`
	Labels    []ItemLabel `json:"labels"`
	Comments  int         `json:"comments"`
}

// IsOpenAt reports whether the item counts as open at the end of the
// given day. An item closed exactly on that day counts as closed.
func (i *GitHubItem) IsOpenAt(dayEnd time.Time) bool {
	if i.CreatedAt.After(dayEnd) {
		return false
	}
	return i.ClosedAt == nil || i.ClosedAt.After(dayEnd)
}

// SyncMetadata is the single bookkeeping record for the item mirror.
// It is recomputed from the full item set and written only after the
// item-mutation pass has succeeded.
type SyncMetadata struct {
	LastSync      time.Time  `json:"lastSync"`
	HighestNumber int        `json:"highestNumber"`
	OldestDate    *time.Time `json:"oldestDate,omitempty"`
	IssueCount    int        `json:"issueCount"`
	PRCount       int        `json:"prCount"`
}

// SyncResult reports the outcome of an item sync operation.
type SyncResult struct {
	NewItems     int        `json:"newItems"`
	UpdatedItems int        `json:"updatedItems"`
	TotalItems   int        `json:"totalItems"`
	IssueCount   int        `json:"issueCount"`
	PRCount      int        `json:"prCount"`
	OldestDate   *time.Time `json:"oldestDate,omitempty"`
	SyncDuration string     `json:"syncDuration"`
}
