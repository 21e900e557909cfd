// RepoPulse - GitHub CI and Issue Analytics Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/repopulse

// Package metrics provides Prometheus instrumentation for:
//   - Upstream GitHub API requests (REST and GraphQL)
//   - Sync operations (CI aggregation, backfill, item sync)
//   - BadgerDB store operations
//   - API endpoint latency and throughput
//   - Circuit breaker state
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Upstream API Metrics
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "github_requests_total",
			Help: "Total number of upstream GitHub API requests",
		},
		[]string{"kind", "status"}, // kind: "rest", "graphql"
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "github_request_duration_seconds",
			Help:    "Upstream GitHub API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total requests through the circuit breaker by outcome",
		},
		[]string{"name", "outcome"}, // "success", "failure", "rejected"
	)

	// Sync Operation Metrics
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_duration_seconds",
			Help:    "Duration of sync operations in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"kind"}, // "ci", "items", "backfill", "busfactor"
	)

	SyncErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_errors_total",
			Help: "Total number of sync errors",
		},
		[]string{"kind", "error_type"},
	)

	SyncLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sync_last_success_timestamp",
			Help: "Unix timestamp of last successful sync",
		},
		[]string{"kind"},
	)

	BackfillDaysTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "backfill_days_total",
			Help: "Total number of days backfilled",
		},
	)

	ItemsMirrored = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "items_mirrored",
			Help: "Current number of mirrored items by type",
		},
		[]string{"type"}, // "issue", "pr"
	)

	// Store Metrics
	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_operations_total",
			Help: "Total BadgerDB store operations by outcome",
		},
		[]string{"operation", "status"}, // operation: "get", "put", "delete"
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordUpstreamRequest records one upstream request with its outcome.
func RecordUpstreamRequest(kind string, status int, duration time.Duration) {
	UpstreamRequestsTotal.WithLabelValues(kind, strconv.Itoa(status)).Inc()
	UpstreamRequestDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordSyncSuccess marks a successful sync of the given kind.
func RecordSyncSuccess(kind string, duration time.Duration) {
	SyncDuration.WithLabelValues(kind).Observe(duration.Seconds())
	SyncLastSuccess.WithLabelValues(kind).SetToCurrentTime()
}

// RecordAPIRequest records one served API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
