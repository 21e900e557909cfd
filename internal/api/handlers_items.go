// RepoPulse - GitHub CI and Issue Analytics Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/repopulse

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/repopulse/internal/models"
	"github.com/tomtom215/repopulse/internal/store"
	"github.com/tomtom215/repopulse/internal/views"
)

// defaultSeriesDays is the window served by time-series endpoints when
// the caller omits a range.
const defaultSeriesDays = 90

// SyncItems handles POST /api/v1/items/sync. The force parameter
// rebuilds the mirror from scratch, dropping items deleted upstream.
func (h *Handlers) SyncItems(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	force := r.URL.Query().Get("force") == "true"

	result, err := h.trigger.TriggerItemSync(r.Context(), force)
	if err != nil {
		writeFetchError(rw, err)
		return
	}
	rw.Success(result)
}

// loadMirror reads the item set, translating an empty store into a
// needs-sync response. The bool reports whether the caller may
// proceed.
func (h *Handlers) loadMirror(rw *ResponseWriter) (map[int]*models.GitHubItem, bool) {
	itemsByNumber, err := h.items.Items()
	if errors.Is(err, store.ErrNotFound) {
		rw.NeedsSync("no items mirrored yet; run an item sync first")
		return nil, false
	}
	if err != nil {
		rw.InternalError(err.Error())
		return nil, false
	}
	return itemsByNumber, true
}

// OpenCounts handles GET /api/v1/items/open-counts. Required: start,
// end. Optional: type (issue|pr).
func (h *Handlers) OpenCounts(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	q := r.URL.Query()

	start, end := q.Get("start"), q.Get("end")
	if start == "" {
		rw.MissingParameter("start")
		return
	}
	if end == "" {
		rw.MissingParameter("end")
		return
	}
	itemType := q.Get("type")
	switch itemType {
	case "", models.ItemTypeIssue, models.ItemTypePR:
	default:
		rw.BadRequest("type must be issue or pr")
		return
	}

	itemsByNumber, ok := h.loadMirror(rw)
	if !ok {
		return
	}
	series, err := views.OpenCounts(itemsByNumber, itemType, start, end)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	rw.Success(series)
}

// LabelSeries handles GET /api/v1/items/labels. start and end are
// optional; the default window is the trailing 90 days.
func (h *Handlers) LabelSeries(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	q := r.URL.Query()

	end := q.Get("end")
	if end == "" {
		end = h.now().UTC().Format(models.DateOnly)
	}
	start := q.Get("start")
	if start == "" {
		start = h.now().UTC().AddDate(0, 0, -(defaultSeriesDays - 1)).Format(models.DateOnly)
	}

	itemsByNumber, ok := h.loadMirror(rw)
	if !ok {
		return
	}
	series, err := views.LabelTimeSeries(itemsByNumber, start, end)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	rw.Success(series)
}

// Triage handles GET /api/v1/items/triage.
func (h *Handlers) Triage(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	itemsByNumber, ok := h.loadMirror(rw)
	if !ok {
		return
	}
	result := views.Triage(itemsByNumber, views.TriageConfig{
		AwaitingLabels: h.triage.AwaitingLabels,
		BlockingLabels: h.triage.BlockingLabels,
	})
	rw.Success(result)
}

// PRHealth handles GET /api/v1/items/pr-health. Optional: state
// (open|closed|merged), sort (staleness|age|comments), order
// (asc|desc).
func (h *Handlers) PRHealth(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	q := r.URL.Query()

	state := q.Get("state")
	switch state {
	case "", models.StateOpen, models.StateClosed, models.StateMerged:
	default:
		rw.BadRequest("state must be open, closed, or merged")
		return
	}

	itemsByNumber, ok := h.loadMirror(rw)
	if !ok {
		return
	}
	result, err := views.PRHealth(itemsByNumber, state, q.Get("sort"), q.Get("order"), h.now())
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	rw.Success(result)
}

// BusFactor handles GET /api/v1/bus-factor. refresh=true bypasses the
// cache.
func (h *Handlers) BusFactor(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	forceRefresh := r.URL.Query().Get("refresh") == "true"

	result, err := h.busFactor.BusFactor(r.Context(), forceRefresh)
	if err != nil {
		writeFetchError(rw, err)
		return
	}
	rw.Success(result)
}
