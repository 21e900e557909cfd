// RepoPulse - GitHub CI and Issue Analytics Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/repopulse

package githubapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(Config{
		Owner:             "octo",
		Repo:              "pulse",
		Token:             "test-token",
		APIBase:           srv.URL,
		GraphQLURL:        srv.URL + "/graphql",
		RequestsPerSecond: 1000,
	})
	return c, srv
}

func TestWorkflowRunsHeadersAndQuery(t *testing.T) {
	var gotAuth, gotAccept, gotBranch, gotStatus string
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		gotBranch = r.URL.Query().Get("branch")
		gotStatus = r.URL.Query().Get("status")
		fmt.Fprint(w, `{"total_count":1,"workflow_runs":[{"id":10,"run_number":7,"created_at":"2026-01-02T03:04:05Z","html_url":"https://example.com/run/10","jobs_url":"https://example.com/run/10/jobs"}]}`)
	}))

	runs, err := c.WorkflowRuns(context.Background(), "main", 50)
	if err != nil {
		t.Fatalf("WorkflowRuns() error = %v", err)
	}
	if len(runs) != 1 || runs[0].ID != 10 || runs[0].RunNumber != 7 {
		t.Errorf("unexpected runs: %+v", runs)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if gotAccept != "application/vnd.github+json" {
		t.Errorf("Accept = %q", gotAccept)
	}
	if gotBranch != "main" || gotStatus != "completed" {
		t.Errorf("query branch=%q status=%q", gotBranch, gotStatus)
	}
}

func TestWorkflowRunsPagination(t *testing.T) {
	pages := 0
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		fmt.Fprint(w, `{"total_count":250,"workflow_runs":[`)
		for i := 0; i < 100; i++ {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprintf(w, `{"id":%d,"run_number":%d,"created_at":"2026-01-02T03:04:05Z"}`, pages*1000+i, i)
		}
		fmt.Fprint(w, `]}`)
	}))

	runs, err := c.WorkflowRuns(context.Background(), "main", 150)
	if err != nil {
		t.Fatalf("WorkflowRuns() error = %v", err)
	}
	if len(runs) != 150 {
		t.Errorf("got %d runs, want 150", len(runs))
	}
	if pages != 2 {
		t.Errorf("made %d requests, want 2", pages)
	}
}

func TestWorkflowRunsShortFinalPage(t *testing.T) {
	requests := 0
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprint(w, `{"total_count":3,"workflow_runs":[{"id":1,"created_at":"2026-01-02T03:04:05Z"},{"id":2,"created_at":"2026-01-02T03:04:05Z"},{"id":3,"created_at":"2026-01-02T03:04:05Z"}]}`)
	}))

	runs, err := c.WorkflowRuns(context.Background(), "main", 100)
	if err != nil {
		t.Fatalf("WorkflowRuns() error = %v", err)
	}
	if len(runs) != 3 {
		t.Errorf("got %d runs, want 3", len(runs))
	}
	if requests != 1 {
		t.Errorf("made %d requests, want 1 (short page ends pagination)", requests)
	}
}

func TestHTTPErrorOnNon2xx(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	}))

	_, err := c.WorkflowRuns(context.Background(), "main", 10)
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("error = %v, want *HTTPError", err)
	}
	if httpErr.Status != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", httpErr.Status)
	}
}

func TestClientErrorsDoNotOpenBreaker(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))

	// Well past the consecutive-failure threshold; every call must
	// still reach upstream rather than be rejected by an open breaker.
	for i := 0; i < 10; i++ {
		_, err := c.WorkflowRuns(context.Background(), "main", 10)
		var httpErr *HTTPError
		if !errors.As(err, &httpErr) {
			t.Fatalf("call %d: error = %v, want *HTTPError", i, err)
		}
	}
}

func TestServerErrorsOpenBreaker(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	var lastErr error
	for i := 0; i < 10; i++ {
		_, lastErr = c.WorkflowRuns(context.Background(), "main", 10)
	}
	var httpErr *HTTPError
	if errors.As(lastErr, &httpErr) {
		t.Errorf("breaker still closed after repeated 5xx: %v", lastErr)
	}
}

func TestGraphQLErrorsFailEvenOn200(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"repository":{"issues":{"pageInfo":{"hasNextPage":false},"nodes":[]}}},"errors":[{"message":"rate limited"},{"message":"try later"}]}`)
	}))

	_, err := c.IssuesPage(context.Background(), "")
	var gqlErr *GraphQLError
	if !errors.As(err, &gqlErr) {
		t.Fatalf("error = %v, want *GraphQLError", err)
	}
	if len(gqlErr.Messages) != 2 {
		t.Errorf("Messages = %v, want 2 entries", gqlErr.Messages)
	}
}

func TestIssuesPageDecodesNodes(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"repository":{"issues":{
			"pageInfo":{"hasNextPage":true,"endCursor":"abc"},
			"nodes":[
				{"number":42,"title":"flaky test","state":"OPEN","createdAt":"2026-01-01T00:00:00Z","updatedAt":"2026-01-02T00:00:00Z","author":{"login":"alice","avatarUrl":"https://example.com/a.png"},"labels":{"nodes":[{"name":"bug","color":"ff0000"}]},"comments":{"totalCount":3}},
				{"number":0,"title":"ghost","state":"OPEN","createdAt":"2026-01-01T00:00:00Z","updatedAt":"2026-01-01T00:00:00Z"}
			]}}}}`)
	}))

	page, err := c.IssuesPage(context.Background(), "")
	if err != nil {
		t.Fatalf("IssuesPage() error = %v", err)
	}
	if !page.HasNextPage || page.EndCursor != "abc" {
		t.Errorf("pageInfo = %+v", page)
	}
	if len(page.Nodes) != 1 {
		t.Fatalf("got %d nodes, want 1 (malformed node dropped)", len(page.Nodes))
	}
	n := page.Nodes[0]
	if n.Number != 42 || n.IsPR || n.Author.Login != "alice" || n.Comments.TotalCount != 3 {
		t.Errorf("unexpected node: %+v", n)
	}
	if len(n.Labels.Nodes) != 1 || n.Labels.Nodes[0].Name != "bug" {
		t.Errorf("labels = %+v", n.Labels.Nodes)
	}
}

func TestPRsPageMarksNodesAsPRs(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"repository":{"pullRequests":{
			"pageInfo":{"hasNextPage":false,"endCursor":""},
			"nodes":[{"number":7,"title":"fix","state":"CLOSED","merged":true,"createdAt":"2026-01-01T00:00:00Z","updatedAt":"2026-01-03T00:00:00Z","closedAt":"2026-01-03T00:00:00Z"}]}}}}`)
	}))

	page, err := c.PRsPage(context.Background(), "")
	if err != nil {
		t.Fatalf("PRsPage() error = %v", err)
	}
	if len(page.Nodes) != 1 || !page.Nodes[0].IsPR || !page.Nodes[0].Merged {
		t.Errorf("unexpected nodes: %+v", page.Nodes)
	}
}

func TestCommitsQuery(t *testing.T) {
	var gotPath, gotSince string
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Query().Get("path")
		gotSince = r.URL.Query().Get("since")
		fmt.Fprint(w, `[{"sha":"abc123","author":{"login":"bob"}},{"sha":"def456","author":null}]`)
	}))

	since := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	commits, err := c.Commits(context.Background(), "internal/api", since, 1)
	if err != nil {
		t.Fatalf("Commits() error = %v", err)
	}
	if gotPath != "internal/api" {
		t.Errorf("path = %q", gotPath)
	}
	if gotSince != "2025-07-01T00:00:00Z" {
		t.Errorf("since = %q", gotSince)
	}
	if len(commits) != 2 || commits[0].Author.Login != "bob" || commits[1].Author != nil {
		t.Errorf("unexpected commits: %+v", commits)
	}
}

func TestJobsFetch(t *testing.T) {
	c, srv := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jobs":[{"id":1,"run_id":10,"name":"build","conclusion":"success","started_at":"2026-01-02T03:00:00Z","completed_at":"2026-01-02T03:05:00Z"},{"id":2,"run_id":10,"name":"lint","conclusion":"failure"}]}`)
	}))

	jobs, err := c.Jobs(context.Background(), srv.URL+"/repos/octo/pulse/actions/runs/10/jobs")
	if err != nil {
		t.Fatalf("Jobs() error = %v", err)
	}
	if len(jobs) != 2 || jobs[0].Name != "build" || jobs[1].Conclusion != "failure" {
		t.Errorf("unexpected jobs: %+v", jobs)
	}
	if jobs[1].StartedAt != nil {
		t.Errorf("expected nil StartedAt for in-progress timestamps")
	}
}
