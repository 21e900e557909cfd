// RepoPulse - GitHub CI and Issue Analytics Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/repopulse

package githubapi

import (
	"fmt"
	"strings"
)

// HTTPError is returned for any non-2xx REST response. Body is
// truncated to a bounded size for diagnostics.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("github: unexpected status %d: %s", e.Status, e.Body)
}

// GraphQLError is returned when a GraphQL response carries a non-empty
// errors array, even if the HTTP status was 200. Partial data returned
// alongside errors is never consumed.
type GraphQLError struct {
	Messages []string
}

func (e *GraphQLError) Error() string {
	return "github graphql: " + strings.Join(e.Messages, "; ")
}
