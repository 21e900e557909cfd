// RepoPulse - GitHub CI and Issue Analytics Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/repopulse

package githubapi

import "time"

// Typed payloads for the subset of the GitHub REST and GraphQL APIs
// this service consumes. Upstream JSON is parsed into these records at
// the client boundary; nothing loosely typed crosses into the
// aggregation layers.

// WorkflowRun is one GitHub Actions workflow run. Ephemeral: fetched
// per sync pass, never persisted verbatim.
type WorkflowRun struct {
	ID        int64     `json:"id"`
	RunNumber int       `json:"run_number"`
	HeadSHA   string    `json:"head_sha"`
	CreatedAt time.Time `json:"created_at"`
	HTMLURL   string    `json:"html_url"`
	JobsURL   string    `json:"jobs_url"`
}

// workflowRunsResponse is the envelope of GET /actions/runs.
type workflowRunsResponse struct {
	TotalCount   int           `json:"total_count"`
	WorkflowRuns []WorkflowRun `json:"workflow_runs"`
}

// Job is one job execution within a workflow run.
type Job struct {
	ID          int64      `json:"id"`
	RunID       int64      `json:"run_id"`
	Name        string     `json:"name"`
	Conclusion  string     `json:"conclusion"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	HTMLURL     string     `json:"html_url"`
}

// jobsResponse is the envelope of GET {run.jobs_url}.
type jobsResponse struct {
	Jobs []Job `json:"jobs"`
}

// CommitAuthor is the GitHub account a commit is linked to.
type CommitAuthor struct {
	Login string `json:"login"`
}

// Commit is one entry of GET /repos/{owner}/{repo}/commits. Author is
// nil when the commit is not linked to a GitHub account.
type Commit struct {
	SHA    string        `json:"sha"`
	Author *CommitAuthor `json:"author"`
}

// ItemPage is one page of issue or PR nodes from the GraphQL API.
type ItemPage struct {
	Nodes       []ItemNode
	HasNextPage bool
	EndCursor   string
}

// ItemNode is one issue or PR node. IsPR distinguishes the two; issue
// and PR numbers share a single numbering space.
type ItemNode struct {
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	State     string     `json:"state"` // OPEN / CLOSED / MERGED (raw, uppercase)
	Merged    bool       `json:"merged"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	ClosedAt  *time.Time `json:"closedAt"`
	Author    *struct {
		Login     string `json:"login"`
		AvatarURL string `json:"avatarUrl"`
	} `json:"author"`
	Labels struct {
		Nodes []struct {
			Name  string `json:"name"`
			Color string `json:"color"`
		} `json:"nodes"`
	} `json:"labels"`
	Comments struct {
		TotalCount int `json:"totalCount"`
	} `json:"comments"`
	IsPR bool `json:"-"`
}

type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

type itemConnection struct {
	PageInfo pageInfo   `json:"pageInfo"`
	Nodes    []ItemNode `json:"nodes"`
}
