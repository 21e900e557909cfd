// RepoPulse - GitHub CI and Issue Analytics Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/repopulse

package views

import (
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/repopulse/internal/models"
)

// PR health sort keys.
const (
	SortByStaleness = "staleness"
	SortByAge       = "age"
	SortByComments  = "comments"
)

// Sort orders.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// PRHealth annotates the PRs matching stateFilter with age and
// staleness (whole days relative to now) and sorts them by the given
// key and order. An empty stateFilter includes all PRs; an empty sort
// key defaults to staleness descending.
func PRHealth(itemsByNumber map[int]*models.GitHubItem, stateFilter, sortKey, order string, now time.Time) (*models.PRHealthResult, error) {
	if sortKey == "" {
		sortKey = SortByStaleness
	}
	if order == "" {
		order = OrderDesc
	}
	switch sortKey {
	case SortByStaleness, SortByAge, SortByComments:
	default:
		return nil, fmt.Errorf("unknown sort key %q", sortKey)
	}
	switch order {
	case OrderAsc, OrderDesc:
	default:
		return nil, fmt.Errorf("unknown sort order %q", order)
	}

	result := &models.PRHealthResult{PRs: []models.PRHealthItem{}}
	for _, item := range itemsByNumber {
		if item.Type != models.ItemTypePR {
			continue
		}
		if stateFilter != "" && item.State != stateFilter {
			continue
		}
		result.PRs = append(result.PRs, models.PRHealthItem{
			GitHubItem: *item,
			AgeDays:    int(now.Sub(item.CreatedAt).Hours() / 24),
			StaleDays:  int(now.Sub(item.UpdatedAt).Hours() / 24),
		})
	}

	key := func(p models.PRHealthItem) int {
		switch sortKey {
		case SortByAge:
			return p.AgeDays
		case SortByComments:
			return p.Comments
		default:
			return p.StaleDays
		}
	}
	sort.SliceStable(result.PRs, func(i, j int) bool {
		if order == OrderAsc {
			return key(result.PRs[i]) < key(result.PRs[j])
		}
		return key(result.PRs[i]) > key(result.PRs[j])
	})

	result.Stats = summarize(result.PRs)
	return result, nil
}

func summarize(prs []models.PRHealthItem) models.PRHealthStats {
	stats := models.PRHealthStats{Count: len(prs)}
	if len(prs) == 0 {
		return stats
	}
	var ageSum, staleSum int
	for _, p := range prs {
		ageSum += p.AgeDays
		staleSum += p.StaleDays
		if p.StaleDays > stats.MaxStaleDays {
			stats.MaxStaleDays = p.StaleDays
		}
	}
	stats.AvgAgeDays = float64(ageSum) / float64(len(prs))
	stats.AvgStaleDays = float64(staleSum) / float64(len(prs))
	return stats
}
