// RepoPulse - GitHub CI and Issue Analytics Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/repopulse

package views

import (
	"sort"

	"github.com/tomtom215/repopulse/internal/models"
)

// TriageConfig names the label sets driving the triage buckets.
type TriageConfig struct {
	// AwaitingLabels route an issue to the awaiting-dev bucket.
	AwaitingLabels []string
	// BlockingLabels mark an issue as already triaged; issues carrying
	// one are excluded from the untriaged bucket.
	BlockingLabels []string
}

// Triage partitions open issues into awaiting-dev and untriaged
// buckets. The buckets are mutually exclusive and awaiting-dev is
// checked first, so an issue matching both label sets lands in
// awaiting-dev. PRs never appear in either bucket.
func Triage(itemsByNumber map[int]*models.GitHubItem, cfg TriageConfig) *models.TriageResult {
	awaiting := toSet(cfg.AwaitingLabels)
	blocking := toSet(cfg.BlockingLabels)

	result := &models.TriageResult{
		Untriaged:   []models.GitHubItem{},
		AwaitingDev: []models.GitHubItem{},
	}
	for _, item := range itemsByNumber {
		if item.Type != models.ItemTypeIssue || item.State != models.StateOpen {
			continue
		}
		result.Totals.OpenIssues++

		switch {
		case hasAnyLabel(item, awaiting):
			result.AwaitingDev = append(result.AwaitingDev, *item)
		case !hasAnyLabel(item, blocking):
			result.Untriaged = append(result.Untriaged, *item)
		}
	}

	sort.Slice(result.AwaitingDev, func(i, j int) bool {
		return result.AwaitingDev[i].Number < result.AwaitingDev[j].Number
	})
	sort.Slice(result.Untriaged, func(i, j int) bool {
		return result.Untriaged[i].Number < result.Untriaged[j].Number
	})

	result.Totals.AwaitingDev = len(result.AwaitingDev)
	result.Totals.Untriaged = len(result.Untriaged)
	return result
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

func hasAnyLabel(item *models.GitHubItem, set map[string]struct{}) bool {
	for _, label := range item.Labels {
		if _, ok := set[label.Name]; ok {
			return true
		}
	}
	return false
}
