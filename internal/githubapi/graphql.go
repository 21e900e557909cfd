// RepoPulse - GitHub CI and Issue Analytics Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/repopulse

package githubapi

import (
	"context"
	"fmt"
	"time"
)

// GraphQL documents for the issue/PR mirror. Pages are 100 nodes, the
// API maximum. Issues and PRs are separate connections in GitHub's
// schema, so each sync direction has its own query.

const issuesAscQuery = `
query($owner: String!, $repo: String!, $cursor: String) {
  repository(owner: $owner, name: $repo) {
    issues(first: 100, after: $cursor, orderBy: {field: CREATED_AT, direction: ASC}) {
      pageInfo { hasNextPage endCursor }
      nodes {
        number title state createdAt updatedAt closedAt
        author { login avatarUrl }
        labels(first: 20) { nodes { name color } }
        comments { totalCount }
      }
    }
  }
}`

const issuesUpdatedSinceQuery = `
query($owner: String!, $repo: String!, $cursor: String, $since: DateTime!) {
  repository(owner: $owner, name: $repo) {
    issues(first: 100, after: $cursor, filterBy: {since: $since}, orderBy: {field: UPDATED_AT, direction: ASC}) {
      pageInfo { hasNextPage endCursor }
      nodes {
        number title state createdAt updatedAt closedAt
        author { login avatarUrl }
        labels(first: 20) { nodes { name color } }
        comments { totalCount }
      }
    }
  }
}`

const prsAscQuery = `
query($owner: String!, $repo: String!, $cursor: String) {
  repository(owner: $owner, name: $repo) {
    pullRequests(first: 100, after: $cursor, orderBy: {field: CREATED_AT, direction: ASC}) {
      pageInfo { hasNextPage endCursor }
      nodes {
        number title state merged createdAt updatedAt closedAt
        author { login avatarUrl }
        labels(first: 20) { nodes { name color } }
        comments { totalCount }
      }
    }
  }
}`

const prsByUpdatedDescQuery = `
query($owner: String!, $repo: String!, $cursor: String) {
  repository(owner: $owner, name: $repo) {
    pullRequests(first: 100, after: $cursor, orderBy: {field: UPDATED_AT, direction: DESC}) {
      pageInfo { hasNextPage endCursor }
      nodes {
        number title state merged createdAt updatedAt closedAt
        author { login avatarUrl }
        labels(first: 20) { nodes { name color } }
        comments { totalCount }
      }
    }
  }
}`

type issuesData struct {
	Repository struct {
		Issues itemConnection `json:"issues"`
	} `json:"repository"`
}

type prsData struct {
	Repository struct {
		PullRequests itemConnection `json:"pullRequests"`
	} `json:"repository"`
}

func (c *Client) itemVariables(cursor string) map[string]interface{} {
	vars := map[string]interface{}{
		"owner": c.owner,
		"repo":  c.repo,
	}
	if cursor != "" {
		vars["cursor"] = cursor
	}
	return vars
}

// sanitizeNodes drops malformed nodes (missing number or creation
// time) rather than letting them poison the mirror.
func sanitizeNodes(nodes []ItemNode, isPR bool) []ItemNode {
	out := nodes[:0]
	for _, n := range nodes {
		if n.Number <= 0 || n.CreatedAt.IsZero() {
			continue
		}
		n.IsPR = isPR
		out = append(out, n)
	}
	return out
}

// IssuesPage fetches one page of issues ordered by creation time
// ascending. An empty cursor starts from the beginning.
func (c *Client) IssuesPage(ctx context.Context, cursor string) (*ItemPage, error) {
	var data issuesData
	if err := c.queryGraphQL(ctx, issuesAscQuery, c.itemVariables(cursor), &data); err != nil {
		return nil, fmt.Errorf("fetch issues page: %w", err)
	}
	conn := data.Repository.Issues
	return &ItemPage{
		Nodes:       sanitizeNodes(conn.Nodes, false),
		HasNextPage: conn.PageInfo.HasNextPage,
		EndCursor:   conn.PageInfo.EndCursor,
	}, nil
}

// IssuesUpdatedSincePage fetches one page of issues updated at or
// after since, ordered by update time ascending.
func (c *Client) IssuesUpdatedSincePage(ctx context.Context, since time.Time, cursor string) (*ItemPage, error) {
	vars := c.itemVariables(cursor)
	vars["since"] = since.UTC().Format(time.RFC3339)

	var data issuesData
	if err := c.queryGraphQL(ctx, issuesUpdatedSinceQuery, vars, &data); err != nil {
		return nil, fmt.Errorf("fetch updated issues page: %w", err)
	}
	conn := data.Repository.Issues
	return &ItemPage{
		Nodes:       sanitizeNodes(conn.Nodes, false),
		HasNextPage: conn.PageInfo.HasNextPage,
		EndCursor:   conn.PageInfo.EndCursor,
	}, nil
}

// PRsPage fetches one page of pull requests ordered by creation time
// ascending.
func (c *Client) PRsPage(ctx context.Context, cursor string) (*ItemPage, error) {
	var data prsData
	if err := c.queryGraphQL(ctx, prsAscQuery, c.itemVariables(cursor), &data); err != nil {
		return nil, fmt.Errorf("fetch pull requests page: %w", err)
	}
	conn := data.Repository.PullRequests
	return &ItemPage{
		Nodes:       sanitizeNodes(conn.Nodes, true),
		HasNextPage: conn.PageInfo.HasNextPage,
		EndCursor:   conn.PageInfo.EndCursor,
	}, nil
}

// PRsByUpdatedDescPage fetches one page of pull requests ordered by
// update time descending. The PR connection has no since filter, so
// incremental sync walks newest-first and stops once it passes the
// cutoff.
func (c *Client) PRsByUpdatedDescPage(ctx context.Context, cursor string) (*ItemPage, error) {
	var data prsData
	if err := c.queryGraphQL(ctx, prsByUpdatedDescQuery, c.itemVariables(cursor), &data); err != nil {
		return nil, fmt.Errorf("fetch updated pull requests page: %w", err)
	}
	conn := data.Repository.PullRequests
	return &ItemPage{
		Nodes:       sanitizeNodes(conn.Nodes, true),
		HasNextPage: conn.PageInfo.HasNextPage,
		EndCursor:   conn.PageInfo.EndCursor,
	}, nil
}
