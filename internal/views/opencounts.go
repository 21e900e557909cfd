// RepoPulse - GitHub CI and Issue Analytics Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/repopulse

// Package views transforms the mirrored item set and snapshot history
// into the shapes the dashboard renders. Everything here is a pure
// function over inputs except the bus-factor calculator, which owns
// its own upstream fetch and cache.
package views

import (
	"fmt"
	"time"

	"github.com/tomtom215/repopulse/internal/models"
)

// dayEnd returns the last instant of a calendar day in UTC.
func dayEnd(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 999999999, time.UTC)
}

// filterByType returns the items matching itemType, or all items when
// itemType is empty.
func filterByType(itemsByNumber map[int]*models.GitHubItem, itemType string) []*models.GitHubItem {
	out := make([]*models.GitHubItem, 0, len(itemsByNumber))
	for _, item := range itemsByNumber {
		if itemType != "" && item.Type != itemType {
			continue
		}
		out = append(out, item)
	}
	return out
}

// OpenCounts produces the daily open-item count over [startDate,
// endDate] inclusive. O(days x items): the item set is small enough
// that no incremental index is worth maintaining.
func OpenCounts(itemsByNumber map[int]*models.GitHubItem, itemType, startDate, endDate string) ([]models.OpenCount, error) {
	start, err := time.Parse(models.DateOnly, startDate)
	if err != nil {
		return nil, fmt.Errorf("parse start date %q: %w", startDate, err)
	}
	end, err := time.Parse(models.DateOnly, endDate)
	if err != nil {
		return nil, fmt.Errorf("parse end date %q: %w", endDate, err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end date %s before start date %s", endDate, startDate)
	}

	items := filterByType(itemsByNumber, itemType)

	var series []models.OpenCount
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		boundary := dayEnd(day)
		count := 0
		for _, item := range items {
			if item.IsOpenAt(boundary) {
				count++
			}
		}
		series = append(series, models.OpenCount{
			Date:      day.Format(models.DateOnly),
			OpenCount: count,
		})
	}
	return series, nil
}

// LabelTimeSeries buckets daily open counts per label, plus an
// aggregate total series. All series share the Timestamps ordering.
func LabelTimeSeries(itemsByNumber map[int]*models.GitHubItem, startDate, endDate string) (*models.LabelSeries, error) {
	start, err := time.Parse(models.DateOnly, startDate)
	if err != nil {
		return nil, fmt.Errorf("parse start date %q: %w", startDate, err)
	}
	end, err := time.Parse(models.DateOnly, endDate)
	if err != nil {
		return nil, fmt.Errorf("parse end date %q: %w", endDate, err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end date %s before start date %s", endDate, startDate)
	}

	items := filterByType(itemsByNumber, "")

	result := &models.LabelSeries{Labels: map[string][]int{}}
	for _, item := range items {
		for _, label := range item.Labels {
			if _, ok := result.Labels[label.Name]; !ok {
				result.Labels[label.Name] = nil
			}
		}
	}

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		boundary := dayEnd(day)
		total := 0
		perLabel := make(map[string]int, len(result.Labels))
		for _, item := range items {
			if !item.IsOpenAt(boundary) {
				continue
			}
			total++
			for _, label := range item.Labels {
				perLabel[label.Name]++
			}
		}

		result.Timestamps = append(result.Timestamps, day.Format(models.DateOnly))
		result.Total = append(result.Total, total)
		for name := range result.Labels {
			result.Labels[name] = append(result.Labels[name], perLabel[name])
		}
	}
	return result, nil
}
