// RepoPulse - GitHub CI and Issue Analytics Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/repopulse

package items

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/repopulse/internal/githubapi"
	"github.com/tomtom215/repopulse/internal/models"
	"github.com/tomtom215/repopulse/internal/store"
)

type memStore struct {
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}}
}

func (m *memStore) GetJSON(key string, v interface{}) error {
	raw, ok := m.data[key]
	if !ok {
		return store.ErrNotFound
	}
	return json.Unmarshal(raw, v)
}

func (m *memStore) PutJSON(key string, v interface{}, _ time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.data[key] = raw
	return nil
}

func (m *memStore) Delete(key string) error {
	delete(m.data, key)
	return nil
}

// fakeItems serves canned pages per query kind. Cursors are page
// indexes encoded as strings.
type fakeItems struct {
	issuesAsc     [][]githubapi.ItemNode
	prsAsc        [][]githubapi.ItemNode
	issuesUpdated [][]githubapi.ItemNode
	prsDesc       [][]githubapi.ItemNode

	issuesAscCalls int
	prsAscCalls    int
	updatedCalls   int
	prsDescCalls   int

	updatedErr error
}

func servePage(pages [][]githubapi.ItemNode, cursor string) (*githubapi.ItemPage, error) {
	idx := 0
	if cursor != "" {
		idx, _ = strconv.Atoi(cursor)
	}
	if idx >= len(pages) {
		return &githubapi.ItemPage{}, nil
	}
	return &githubapi.ItemPage{
		Nodes:       pages[idx],
		HasNextPage: idx < len(pages)-1,
		EndCursor:   strconv.Itoa(idx + 1),
	}, nil
}

func (f *fakeItems) IssuesPage(_ context.Context, cursor string) (*githubapi.ItemPage, error) {
	f.issuesAscCalls++
	return servePage(f.issuesAsc, cursor)
}

func (f *fakeItems) PRsPage(_ context.Context, cursor string) (*githubapi.ItemPage, error) {
	f.prsAscCalls++
	return servePage(f.prsAsc, cursor)
}

func (f *fakeItems) IssuesUpdatedSincePage(_ context.Context, _ time.Time, cursor string) (*githubapi.ItemPage, error) {
	f.updatedCalls++
	if f.updatedErr != nil {
		return nil, f.updatedErr
	}
	return servePage(f.issuesUpdated, cursor)
}

func (f *fakeItems) PRsByUpdatedDescPage(_ context.Context, cursor string) (*githubapi.ItemPage, error) {
	f.prsDescCalls++
	return servePage(f.prsDesc, cursor)
}

func issueNode(number int, created, updated time.Time) githubapi.ItemNode {
	n := githubapi.ItemNode{
		Number:    number,
		Title:     "issue " + strconv.Itoa(number),
		State:     "OPEN",
		CreatedAt: created,
		UpdatedAt: updated,
	}
	return n
}

func prNode(number int, created, updated time.Time, merged bool) githubapi.ItemNode {
	state := "OPEN"
	if merged {
		state = "CLOSED"
	}
	return githubapi.ItemNode{
		Number:    number,
		Title:     "pr " + strconv.Itoa(number),
		State:     state,
		Merged:    merged,
		CreatedAt: created,
		UpdatedAt: updated,
		IsPR:      true,
	}
}

var (
	t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 = time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
)

func TestFullSyncMirrorsEverything(t *testing.T) {
	client := &fakeItems{
		issuesAsc: [][]githubapi.ItemNode{
			{issueNode(1, t0, t0), issueNode(2, t0, t1)},
			{issueNode(4, t1, t1)},
		},
		prsAsc: [][]githubapi.ItemNode{
			{prNode(3, t0, t1, true)},
		},
	}
	st := newMemStore()
	s := New(client, st, Config{})

	result, err := s.Sync(context.Background(), false)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if result.NewItems != 4 || result.UpdatedItems != 0 || result.TotalItems != 4 {
		t.Errorf("result = %+v, want 4 new / 0 updated / 4 total", result)
	}
	if result.IssueCount != 3 || result.PRCount != 1 {
		t.Errorf("counts = %d issues / %d prs", result.IssueCount, result.PRCount)
	}

	mirror, err := Mirror(st)
	if err != nil {
		t.Fatalf("Mirror() error = %v", err)
	}
	if mirror[3].State != models.StateMerged {
		t.Errorf("merged PR state = %q, want merged (flag precedence)", mirror[3].State)
	}
	if mirror[1].State != models.StateOpen || mirror[1].Type != models.ItemTypeIssue {
		t.Errorf("issue 1 = %+v", mirror[1])
	}

	var meta models.SyncMetadata
	if err := st.GetJSON(store.KeyItemsMeta, &meta); err != nil {
		t.Fatalf("metadata not stored: %v", err)
	}
	if meta.HighestNumber != 4 {
		t.Errorf("HighestNumber = %d, want 4", meta.HighestNumber)
	}
	if meta.OldestDate == nil || !meta.OldestDate.Equal(t0) {
		t.Errorf("OldestDate = %v, want %v", meta.OldestDate, t0)
	}
}

func TestIncrementalSyncNoChanges(t *testing.T) {
	client := &fakeItems{
		issuesAsc: [][]githubapi.ItemNode{{issueNode(1, t0, t0)}},
		prsAsc:    [][]githubapi.ItemNode{{prNode(2, t0, t0, false)}},
	}
	st := newMemStore()
	s := New(client, st, Config{})

	if _, err := s.Sync(context.Background(), false); err != nil {
		t.Fatalf("initial sync error = %v", err)
	}

	// Updated passes return the same unchanged nodes upstream would.
	client.issuesUpdated = [][]githubapi.ItemNode{{issueNode(1, t0, t0)}}
	client.prsDesc = [][]githubapi.ItemNode{{prNode(2, t0, t0, false)}}

	result, err := s.Sync(context.Background(), false)
	if err != nil {
		t.Fatalf("incremental sync error = %v", err)
	}
	if result.NewItems != 0 || result.UpdatedItems != 0 {
		t.Errorf("result = %+v, want 0 new / 0 updated", result)
	}
}

func TestIncrementalSyncCountsRealUpdates(t *testing.T) {
	client := &fakeItems{
		issuesAsc: [][]githubapi.ItemNode{{issueNode(1, t0, t0), issueNode(2, t0, t0)}},
	}
	st := newMemStore()
	s := New(client, st, Config{})
	if _, err := s.Sync(context.Background(), false); err != nil {
		t.Fatalf("initial sync error = %v", err)
	}

	// Issue 1 got a new comment upstream; issue 2 is merely re-observed.
	changed := issueNode(1, t0, t1)
	changed.State = "CLOSED"
	changed.ClosedAt = &t1
	client.issuesUpdated = [][]githubapi.ItemNode{{changed, issueNode(2, t0, t0)}}

	result, err := s.Sync(context.Background(), false)
	if err != nil {
		t.Fatalf("incremental sync error = %v", err)
	}
	if result.UpdatedItems != 1 {
		t.Errorf("UpdatedItems = %d, want 1 (unchanged re-observation not counted)", result.UpdatedItems)
	}

	mirror, _ := Mirror(st)
	if mirror[1].State != models.StateClosed || mirror[1].ClosedAt == nil {
		t.Errorf("issue 1 not overwritten in place: %+v", mirror[1])
	}
}

func TestNewItemPassStopsAfterConsecutiveKnown(t *testing.T) {
	// Three pages of known issues; with a threshold of 2 the walk must
	// stop inside page one and never request page three.
	client := &fakeItems{
		issuesAsc: [][]githubapi.ItemNode{
			{issueNode(1, t0, t0), issueNode(2, t0, t0)},
			{issueNode(3, t0, t0)},
			{issueNode(4, t0, t0)},
		},
	}
	st := newMemStore()
	s := New(client, st, Config{StopThreshold: 2})
	if _, err := s.Sync(context.Background(), false); err != nil {
		t.Fatalf("initial sync error = %v", err)
	}

	client.issuesAscCalls = 0
	if _, err := s.Sync(context.Background(), false); err != nil {
		t.Fatalf("incremental sync error = %v", err)
	}
	if client.issuesAscCalls != 1 {
		t.Errorf("issue pages fetched = %d, want 1 (early stop)", client.issuesAscCalls)
	}
}

func TestNewItemResetsConsecutiveKnownCounter(t *testing.T) {
	client := &fakeItems{
		issuesAsc: [][]githubapi.ItemNode{
			{issueNode(1, t0, t0), issueNode(2, t0, t0)},
		},
	}
	st := newMemStore()
	s := New(client, st, Config{StopThreshold: 2})
	if _, err := s.Sync(context.Background(), false); err != nil {
		t.Fatalf("initial sync error = %v", err)
	}

	// A new number interleaved between known ones keeps the walk alive
	// long enough to find the new item on the later page.
	client.issuesAsc = [][]githubapi.ItemNode{
		{issueNode(1, t0, t0), issueNode(5, t1, t1)},
		{issueNode(2, t0, t0), issueNode(6, t1, t1)},
	}

	result, err := s.Sync(context.Background(), false)
	if err != nil {
		t.Fatalf("incremental sync error = %v", err)
	}
	if result.NewItems != 2 {
		t.Errorf("NewItems = %d, want 2", result.NewItems)
	}
}

func TestUpdatedPRPassStopsBeforeThreshold(t *testing.T) {
	client := &fakeItems{
		prsAsc: [][]githubapi.ItemNode{{prNode(1, t0, t0, false), prNode(2, t0, t0, false)}},
	}
	st := newMemStore()
	s := New(client, st, Config{Overlap: time.Minute})
	if _, err := s.Sync(context.Background(), false); err != nil {
		t.Fatalf("initial sync error = %v", err)
	}

	// Newest-first: PR 2 updated after lastSync, PR 1 long before. The
	// walk must stop at PR 1 and never ask for page two.
	recent := time.Now().Add(time.Hour)
	client.prsDesc = [][]githubapi.ItemNode{
		{prNode(2, t0, recent, true), prNode(1, t0, t0, false)},
		{prNode(1, t0, t0, false)},
	}

	result, err := s.Sync(context.Background(), false)
	if err != nil {
		t.Fatalf("incremental sync error = %v", err)
	}
	if result.UpdatedItems != 1 {
		t.Errorf("UpdatedItems = %d, want 1", result.UpdatedItems)
	}
	if client.prsDescCalls != 1 {
		t.Errorf("PR pages fetched = %d, want 1 (stop at stale node)", client.prsDescCalls)
	}

	mirror, _ := Mirror(st)
	if mirror[2].State != models.StateMerged {
		t.Errorf("PR 2 state = %q, want merged", mirror[2].State)
	}
}

func TestForceSyncRebuildsMirror(t *testing.T) {
	client := &fakeItems{
		issuesAsc: [][]githubapi.ItemNode{{issueNode(1, t0, t0), issueNode(2, t0, t0)}},
	}
	st := newMemStore()
	s := New(client, st, Config{})
	if _, err := s.Sync(context.Background(), false); err != nil {
		t.Fatalf("initial sync error = %v", err)
	}

	// Upstream lost issue 2 (e.g. converted); force drops it from the
	// mirror where incremental sync never would.
	client.issuesAsc = [][]githubapi.ItemNode{{issueNode(1, t0, t0)}}

	result, err := s.Sync(context.Background(), true)
	if err != nil {
		t.Fatalf("force sync error = %v", err)
	}
	if result.TotalItems != 1 {
		t.Errorf("TotalItems = %d, want 1 after force rebuild", result.TotalItems)
	}
	mirror, _ := Mirror(st)
	if _, ok := mirror[2]; ok {
		t.Error("force sync must drop items absent upstream")
	}
}

func TestFailedSyncDoesNotAdvanceMetadata(t *testing.T) {
	client := &fakeItems{
		issuesAsc: [][]githubapi.ItemNode{{issueNode(1, t0, t0)}},
	}
	st := newMemStore()
	s := New(client, st, Config{})
	if _, err := s.Sync(context.Background(), false); err != nil {
		t.Fatalf("initial sync error = %v", err)
	}
	var before models.SyncMetadata
	st.GetJSON(store.KeyItemsMeta, &before)

	client.updatedErr = errors.New("rate limited")
	if _, err := s.Sync(context.Background(), false); err == nil {
		t.Fatal("expected error from failed updated pass")
	}

	var after models.SyncMetadata
	st.GetJSON(store.KeyItemsMeta, &after)
	if !after.LastSync.Equal(before.LastSync) {
		t.Errorf("LastSync advanced despite failed sync: %v -> %v", before.LastSync, after.LastSync)
	}
}
