// RepoPulse - GitHub CI and Issue Analytics Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/repopulse

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/repopulse/internal/ci"
	"github.com/tomtom215/repopulse/internal/githubapi"
	"github.com/tomtom215/repopulse/internal/models"
	"github.com/tomtom215/repopulse/internal/store"
)

type fakeCIService struct {
	current    *models.CISnapshot
	currentErr error
	rangeSnap  *models.CISnapshot
	rangeErr   error
	gaps       []models.DateRange
}

func (f *fakeCIService) CurrentSnapshot() (*models.CISnapshot, error) {
	return f.current, f.currentErr
}

func (f *fakeCIService) AggregateRange(_ context.Context, _, _ string) (*models.CISnapshot, error) {
	return f.rangeSnap, f.rangeErr
}

func (f *fakeCIService) MissingDateRanges() ([]models.DateRange, error) {
	return f.gaps, nil
}

type fakeTrigger struct {
	ciResult   *models.RefreshResult
	ciErr      error
	ciCalls    int
	lastLimit  int
	itemResult *models.SyncResult
	itemErr    error
	lastForce  bool
	onCISync   func()
}

func (f *fakeTrigger) TriggerCISync(_ context.Context, limit int, _ bool) (*models.RefreshResult, error) {
	f.ciCalls++
	f.lastLimit = limit
	if f.onCISync != nil {
		f.onCISync()
	}
	return f.ciResult, f.ciErr
}

func (f *fakeTrigger) TriggerItemSync(_ context.Context, force bool) (*models.SyncResult, error) {
	f.lastForce = force
	return f.itemResult, f.itemErr
}

type fakeItemSource struct {
	items map[int]*models.GitHubItem
	err   error
}

func (f *fakeItemSource) Items() (map[int]*models.GitHubItem, error) {
	return f.items, f.err
}

type fakeBusFactor struct {
	result *models.BusFactorResult
	err    error
}

func (f *fakeBusFactor) BusFactor(_ context.Context, _ bool) (*models.BusFactorResult, error) {
	return f.result, f.err
}

type fakeHealth struct{ err error }

func (f *fakeHealth) Healthy() error { return f.err }

type testEnv struct {
	ci      *fakeCIService
	trigger *fakeTrigger
	items   *fakeItemSource
	bus     *fakeBusFactor
	health  *fakeHealth
	server  *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		ci:      &fakeCIService{},
		trigger: &fakeTrigger{},
		items:   &fakeItemSource{err: store.ErrNotFound},
		bus:     &fakeBusFactor{},
		health:  &fakeHealth{},
	}
	h := NewHandlers(env.ci, env.trigger, env.items, env.bus, env.health, TriageLabels{
		AwaitingLabels: []string{"awaiting-dev"},
		BlockingLabels: []string{"triaged"},
	})
	env.server = httptest.NewServer(NewRouter(h, RouterConfig{RateLimitReqs: 10000}))
	t.Cleanup(env.server.Close)
	return env
}

func doRequest(t *testing.T, method, url string) (*http.Response, APIResponse) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var envelope APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return resp, envelope
}

func TestGetCIServesCachedSnapshot(t *testing.T) {
	env := newTestEnv(t)
	env.ci.current = &models.CISnapshot{TotalRuns: 42, JobStats: map[string]*models.JobStatistic{}}

	resp, envelope := doRequest(t, http.MethodGet, env.server.URL+"/api/v1/ci")
	if resp.StatusCode != http.StatusOK || !envelope.Success {
		t.Fatalf("status=%d success=%v", resp.StatusCode, envelope.Success)
	}
	if env.trigger.ciCalls != 0 {
		t.Error("cached read must not trigger a sync")
	}
}

func TestGetCIFallsBackToLiveFetch(t *testing.T) {
	env := newTestEnv(t)
	env.ci.currentErr = ci.ErrNoData
	env.trigger.ciResult = &models.RefreshResult{TotalRuns: 3}
	env.trigger.onCISync = func() {
		env.ci.current = &models.CISnapshot{TotalRuns: 3}
		env.ci.currentErr = nil
	}

	resp, envelope := doRequest(t, http.MethodGet, env.server.URL+"/api/v1/ci")
	if resp.StatusCode != http.StatusOK || !envelope.Success {
		t.Fatalf("status=%d success=%v", resp.StatusCode, envelope.Success)
	}
	if env.trigger.ciCalls != 1 {
		t.Errorf("ciCalls = %d, want 1 (live fallback)", env.trigger.ciCalls)
	}
}

func TestGetCIRangeNeedsSync(t *testing.T) {
	env := newTestEnv(t)
	env.ci.rangeErr = ci.ErrNoData

	resp, envelope := doRequest(t, http.MethodGet, env.server.URL+"/api/v1/ci?start=2026-01-01&end=2026-01-31")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 (needs_sync is not an error)", resp.StatusCode)
	}
	data, _ := json.Marshal(envelope.Data)
	var ns NeedsSyncResponse
	if err := json.Unmarshal(data, &ns); err != nil || ns.Status != "needs_sync" {
		t.Errorf("data = %s, want needs_sync payload", data)
	}
}

func TestGetCIRangeValidation(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name  string
		query string
	}{
		{"start without end", "?start=2026-01-01"},
		{"malformed date", "?start=01/02/2026&end=2026-01-31"},
		{"inverted range", "?start=2026-02-01&end=2026-01-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, envelope := doRequest(t, http.MethodGet, env.server.URL+"/api/v1/ci"+tt.query)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			if envelope.Success || envelope.Error == nil {
				t.Errorf("envelope = %+v, want error", envelope)
			}
		})
	}
}

func TestRefreshCIPassesLimitAndMapsUpstreamError(t *testing.T) {
	env := newTestEnv(t)
	env.trigger.ciResult = &models.RefreshResult{TotalRuns: 9}

	resp, _ := doRequest(t, http.MethodPost, env.server.URL+"/api/v1/ci/refresh?limit=25")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if env.trigger.lastLimit != 25 {
		t.Errorf("limit = %d, want 25", env.trigger.lastLimit)
	}

	resp, _ = doRequest(t, http.MethodPost, env.server.URL+"/api/v1/ci/refresh?limit=zero")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit: status = %d, want 400", resp.StatusCode)
	}

	env.trigger.ciErr = &githubapi.HTTPError{Status: 502, Body: "bad gateway"}
	resp, envelope := doRequest(t, http.MethodPost, env.server.URL+"/api/v1/ci/refresh")
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("upstream failure: status = %d, want 502", resp.StatusCode)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeExternalServiceFail {
		t.Errorf("error = %+v", envelope.Error)
	}
}

func TestOpenCountsValidation(t *testing.T) {
	env := newTestEnv(t)

	resp, envelope := doRequest(t, http.MethodGet, env.server.URL+"/api/v1/items/open-counts?end=2026-01-31")
	if resp.StatusCode != http.StatusBadRequest || envelope.Error.Code != ErrCodeMissingParameter {
		t.Errorf("missing start: status=%d error=%+v", resp.StatusCode, envelope.Error)
	}

	resp, _ = doRequest(t, http.MethodGet, env.server.URL+"/api/v1/items/open-counts?start=2026-01-01&end=2026-01-31&type=gist")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad type: status = %d, want 400", resp.StatusCode)
	}
}

func TestOpenCountsNeedsSyncWhenMirrorEmpty(t *testing.T) {
	env := newTestEnv(t)

	resp, envelope := doRequest(t, http.MethodGet, env.server.URL+"/api/v1/items/open-counts?start=2026-01-01&end=2026-01-02")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	data, _ := json.Marshal(envelope.Data)
	var ns NeedsSyncResponse
	if err := json.Unmarshal(data, &ns); err != nil || ns.Status != "needs_sync" {
		t.Errorf("data = %s, want needs_sync payload", data)
	}
}

func TestOpenCountsServesSeries(t *testing.T) {
	env := newTestEnv(t)
	env.items.err = nil
	env.items.items = map[int]*models.GitHubItem{
		1: {Number: 1, Type: models.ItemTypeIssue, State: models.StateOpen,
			CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	resp, envelope := doRequest(t, http.MethodGet, env.server.URL+"/api/v1/items/open-counts?start=2026-01-01&end=2026-01-03")
	if resp.StatusCode != http.StatusOK || !envelope.Success {
		t.Fatalf("status=%d success=%v", resp.StatusCode, envelope.Success)
	}
	data, _ := json.Marshal(envelope.Data)
	var series []models.OpenCount
	if err := json.Unmarshal(data, &series); err != nil {
		t.Fatalf("decode series: %v", err)
	}
	if len(series) != 3 || series[0].OpenCount != 1 {
		t.Errorf("series = %+v", series)
	}
}

func TestSyncItemsPassesForce(t *testing.T) {
	env := newTestEnv(t)
	env.trigger.itemResult = &models.SyncResult{TotalItems: 5}

	resp, _ := doRequest(t, http.MethodPost, env.server.URL+"/api/v1/items/sync?force=true")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !env.trigger.lastForce {
		t.Error("force not passed through")
	}
}

func TestPRHealthRejectsBadState(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := doRequest(t, http.MethodGet, env.server.URL+"/api/v1/items/pr-health?state=reopened")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestBusFactorEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.bus.result = &models.BusFactorResult{Cached: true}

	resp, envelope := doRequest(t, http.MethodGet, env.server.URL+"/api/v1/bus-factor")
	if resp.StatusCode != http.StatusOK || !envelope.Success {
		t.Fatalf("status=%d success=%v", resp.StatusCode, envelope.Success)
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := doRequest(t, http.MethodGet, env.server.URL+"/api/v1/health")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthy: status = %d, want 200", resp.StatusCode)
	}

	env.health.err = errors.New("store closed")
	resp, _ = doRequest(t, http.MethodGet, env.server.URL+"/api/v1/health")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("unhealthy: status = %d, want 503", resp.StatusCode)
	}
}

func TestGapsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.ci.gaps = []models.DateRange{{Start: "2026-01-02", End: "2026-01-04"}}

	resp, envelope := doRequest(t, http.MethodGet, env.server.URL+"/api/v1/ci/gaps")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	data, _ := json.Marshal(envelope.Data)
	var gaps []models.DateRange
	if err := json.Unmarshal(data, &gaps); err != nil || len(gaps) != 1 {
		t.Errorf("gaps = %s", data)
	}
}
