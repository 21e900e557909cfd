// RepoPulse - GitHub CI and Issue Analytics Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/repopulse

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/tomtom215/repopulse/internal/ci"
	"github.com/tomtom215/repopulse/internal/githubapi"
	"github.com/tomtom215/repopulse/internal/models"
)

// CIService is the read surface of the CI aggregator.
type CIService interface {
	CurrentSnapshot() (*models.CISnapshot, error)
	AggregateRange(ctx context.Context, startDate, endDate string) (*models.CISnapshot, error)
	MissingDateRanges() ([]models.DateRange, error)
}

// SyncTrigger is the manual-trigger surface of the scheduler.
type SyncTrigger interface {
	TriggerCISync(ctx context.Context, limit int, backfill bool) (*models.RefreshResult, error)
	TriggerItemSync(ctx context.Context, force bool) (*models.SyncResult, error)
}

// ItemSource loads the mirrored item set.
type ItemSource interface {
	Items() (map[int]*models.GitHubItem, error)
}

// BusFactorService computes or serves the cached bus-factor report.
type BusFactorService interface {
	BusFactor(ctx context.Context, forceRefresh bool) (*models.BusFactorResult, error)
}

// HealthChecker reports storage liveness.
type HealthChecker interface {
	Healthy() error
}

// TriageLabels configures the triage endpoint's label sets.
type TriageLabels struct {
	AwaitingLabels []string
	BlockingLabels []string
}

// Handlers holds the HTTP handlers and their collaborators.
type Handlers struct {
	ci        CIService
	trigger   SyncTrigger
	items     ItemSource
	busFactor BusFactorService
	health    HealthChecker
	triage    TriageLabels
	now       func() time.Time
}

// NewHandlers wires the handler set.
func NewHandlers(ciSvc CIService, trigger SyncTrigger, items ItemSource, busFactor BusFactorService, health HealthChecker, triage TriageLabels) *Handlers {
	return &Handlers{
		ci:        ciSvc,
		trigger:   trigger,
		items:     items,
		busFactor: busFactor,
		health:    health,
		triage:    triage,
		now:       time.Now,
	}
}

// writeFetchError maps an error from a sync or read path onto the
// right response: upstream failures become 502, everything else 500.
func writeFetchError(rw *ResponseWriter, err error) {
	var httpErr *githubapi.HTTPError
	var gqlErr *githubapi.GraphQLError
	if errors.As(err, &httpErr) || errors.As(err, &gqlErr) {
		rw.UpstreamError(err)
		return
	}
	rw.InternalError(err.Error())
}

// RefreshCI handles POST /api/v1/ci/refresh. Query parameters: limit
// (optional run cap for this pass) and backfill (fill detected gaps).
func (h *Handlers) RefreshCI(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			rw.BadRequest("limit must be a positive integer")
			return
		}
		limit = parsed
	}
	backfill := r.URL.Query().Get("backfill") == "true"

	result, err := h.trigger.TriggerCISync(r.Context(), limit, backfill)
	if err != nil {
		writeFetchError(rw, err)
		return
	}
	rw.Success(result)
}

// GetCI handles GET /api/v1/ci. Without parameters it serves the
// cached current snapshot, falling back to a fresh live fetch when
// nothing is cached. With start and end (YYYY-MM-DD, inclusive) it
// aggregates the stored daily snapshots for that range.
func (h *Handlers) GetCI(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	start := r.URL.Query().Get("start")
	end := r.URL.Query().Get("end")

	if (start == "") != (end == "") {
		rw.BadRequest("start and end must be provided together")
		return
	}

	if start != "" {
		if !validDate(start) || !validDate(end) {
			rw.BadRequest("start and end must be YYYY-MM-DD dates")
			return
		}
		if end < start {
			rw.BadRequest("end must not precede start")
			return
		}
		snapshot, err := h.ci.AggregateRange(r.Context(), start, end)
		if errors.Is(err, ci.ErrNoData) {
			rw.NeedsSync("no daily snapshots in the requested range; run a CI refresh first")
			return
		}
		if err != nil {
			writeFetchError(rw, err)
			return
		}
		rw.Success(snapshot)
		return
	}

	snapshot, err := h.ci.CurrentSnapshot()
	if errors.Is(err, ci.ErrNoData) {
		// Cache empty or expired: do one live pass instead of telling
		// the dashboard to come back later.
		if _, err := h.trigger.TriggerCISync(r.Context(), 0, false); err != nil {
			writeFetchError(rw, err)
			return
		}
		snapshot, err = h.ci.CurrentSnapshot()
		if err != nil {
			writeFetchError(rw, err)
			return
		}
		rw.Success(snapshot)
		return
	}
	if err != nil {
		writeFetchError(rw, err)
		return
	}
	rw.Success(snapshot)
}

// GetCIGaps handles GET /api/v1/ci/gaps.
func (h *Handlers) GetCIGaps(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	gaps, err := h.ci.MissingDateRanges()
	if err != nil {
		rw.InternalError(err.Error())
		return
	}
	if gaps == nil {
		gaps = []models.DateRange{}
	}
	rw.Success(gaps)
}

// HealthResponse is the health endpoint payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Health handles GET /api/v1/health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if err := h.health.Healthy(); err != nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeInternalError, err.Error())
		return
	}
	rw.Success(HealthResponse{Status: "ok", Timestamp: h.now().UTC()})
}

func validDate(s string) bool {
	_, err := time.Parse(models.DateOnly, s)
	return err == nil
}
