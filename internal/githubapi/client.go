// RepoPulse - GitHub CI and Issue Analytics Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/repopulse

// Package githubapi is the single boundary to the GitHub REST and
// GraphQL APIs. All upstream traffic passes through one client-side
// rate limiter and one circuit breaker; callers receive typed payloads
// and typed errors, never raw JSON.
package githubapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/repopulse/internal/logging"
	"github.com/tomtom215/repopulse/internal/metrics"
)

const (
	userAgent = "repopulse"

	// maxErrorBody bounds how much of an error response we keep for
	// diagnostics.
	maxErrorBody = 512

	// maxPageSize is GitHub's per_page ceiling.
	maxPageSize = 100
)

// Config configures a Client.
type Config struct {
	Owner      string
	Repo       string
	Token      string
	APIBase    string
	GraphQLURL string
	// RequestsPerSecond is the client-side rate cap across REST and
	// GraphQL combined.
	RequestsPerSecond float64
	Timeout           time.Duration
}

// Client is a rate-limited, circuit-protected GitHub API client for a
// single repository.
type Client struct {
	owner      string
	repo       string
	token      string
	apiBase    string
	graphqlURL string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

// New creates a Client. The token may be empty; requests are then sent
// unauthenticated at GitHub's lower anonymous rate limits.
func New(cfg Config) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "github",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state change")
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// 4xx responses are the caller's problem, not upstream
			// degradation; they must not open the breaker.
			var perm *permanentError
			return errors.As(err, &perm)
		},
	}

	return &Client{
		owner:      cfg.Owner,
		repo:       cfg.Repo,
		token:      cfg.Token,
		apiBase:    cfg.APIBase,
		graphqlURL: cfg.GraphQLURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		breaker:    gobreaker.NewCircuitBreaker[[]byte](settings),
	}
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// repoPath returns the REST path for this client's repository with the
// given suffix, e.g. repoPath("/actions/runs").
func (c *Client) repoPath(suffix string) string {
	return fmt.Sprintf("%s/repos/%s/%s%s", c.apiBase, c.owner, c.repo, suffix)
}

// do executes one upstream request through the rate limiter and
// circuit breaker, returning the raw response body. Non-2xx responses
// become *HTTPError; breaker failures count only on transport errors
// and 5xx/429 responses so that a 404 cannot trip the breaker.
func (c *Client) do(ctx context.Context, kind, method, rawURL string, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	data, err := c.breaker.Execute(func() ([]byte, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/vnd.github+json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			metrics.RecordUpstreamRequest(kind, 0, time.Since(start))
			return nil, fmt.Errorf("request %s: %w", rawURL, err)
		}
		defer resp.Body.Close()
		metrics.RecordUpstreamRequest(kind, resp.StatusCode, time.Since(start))

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			httpErr := &HTTPError{Status: resp.StatusCode, Body: string(snippet)}
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return nil, httpErr
			}
			// Client errors are the caller's problem, not upstream
			// degradation. Wrap so the breaker ignores them.
			return nil, &permanentError{err: httpErr}
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		return data, nil
	})
	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues("github", "success").Inc()
		return data, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues("github", "rejected").Inc()
		return nil, fmt.Errorf("github upstream unavailable: %w", err)
	default:
		metrics.CircuitBreakerRequests.WithLabelValues("github", "failure").Inc()
		var perm *permanentError
		if errors.As(err, &perm) {
			return nil, perm.err
		}
		return nil, err
	}
}

// permanentError marks an error the circuit breaker should not count
// as upstream failure.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// getJSON issues a GET and decodes the response into out.
func (c *Client) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	data, err := c.do(ctx, "rest", http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}

// graphqlRequest is the GraphQL POST envelope.
type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

// graphqlResponse is the GraphQL response envelope. Errors alongside
// partial data still fail the call.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// queryGraphQL posts a GraphQL query and decodes data into out. A
// non-empty errors array fails the call even on HTTP 200.
func (c *Client) queryGraphQL(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("encode graphql request: %w", err)
	}

	data, err := c.do(ctx, "graphql", http.MethodPost, c.graphqlURL, body)
	if err != nil {
		return err
	}

	var envelope graphqlResponse
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("decode graphql response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		gqlErr := &GraphQLError{}
		for _, e := range envelope.Errors {
			gqlErr.Messages = append(gqlErr.Messages, e.Message)
		}
		return gqlErr
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode graphql data: %w", err)
	}
	return nil
}

// WorkflowRuns fetches up to limit completed workflow runs on branch,
// newest first, paging as needed.
func (c *Client) WorkflowRuns(ctx context.Context, branch string, limit int) ([]WorkflowRun, error) {
	return c.workflowRuns(ctx, branch, "", limit)
}

// WorkflowRunsCreated fetches up to limit completed workflow runs on
// branch restricted to a created-date range in GitHub's range syntax,
// e.g. "2026-01-02..2026-01-02".
func (c *Client) WorkflowRunsCreated(ctx context.Context, branch, created string, limit int) ([]WorkflowRun, error) {
	return c.workflowRuns(ctx, branch, created, limit)
}

func (c *Client) workflowRuns(ctx context.Context, branch, created string, limit int) ([]WorkflowRun, error) {
	var runs []WorkflowRun
	for page := 1; len(runs) < limit; page++ {
		perPage := limit - len(runs)
		if perPage > maxPageSize {
			perPage = maxPageSize
		}
		q := url.Values{}
		q.Set("branch", branch)
		q.Set("status", "completed")
		q.Set("per_page", strconv.Itoa(perPage))
		q.Set("page", strconv.Itoa(page))
		if created != "" {
			q.Set("created", created)
		}

		var resp workflowRunsResponse
		if err := c.getJSON(ctx, c.repoPath("/actions/runs")+"?"+q.Encode(), &resp); err != nil {
			return nil, fmt.Errorf("fetch workflow runs: %w", err)
		}
		runs = append(runs, resp.WorkflowRuns...)
		if len(resp.WorkflowRuns) < perPage {
			break
		}
	}
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// Jobs fetches all jobs for one run via the run's jobs_url.
func (c *Client) Jobs(ctx context.Context, jobsURL string) ([]Job, error) {
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(maxPageSize))

	var resp jobsResponse
	if err := c.getJSON(ctx, jobsURL+"?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("fetch jobs: %w", err)
	}
	return resp.Jobs, nil
}

// Commits fetches one page of commits touching path since the given
// time. Page numbering starts at 1.
func (c *Client) Commits(ctx context.Context, path string, since time.Time, page int) ([]Commit, error) {
	q := url.Values{}
	q.Set("path", path)
	q.Set("since", since.UTC().Format(time.RFC3339))
	q.Set("per_page", strconv.Itoa(maxPageSize))
	q.Set("page", strconv.Itoa(page))

	var commits []Commit
	if err := c.getJSON(ctx, c.repoPath("/commits")+"?"+q.Encode(), &commits); err != nil {
		return nil, fmt.Errorf("fetch commits for %s: %w", path, err)
	}
	return commits, nil
}
