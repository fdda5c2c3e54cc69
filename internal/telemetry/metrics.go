/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telemetry exposes Prometheus collectors and OpenTelemetry tracing
// for the skald process.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Refresh loop metrics.
var (
	RefreshRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skald_refresh_runs_total",
		Help: "Completed smart playlist refresh runs by status.",
	}, []string{"status"})

	RefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "skald_refresh_duration_seconds",
		Help:    "Wall time of one smart playlist refresh run.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	RefreshMembers = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "skald_refresh_members",
		Help:    "Member count written by successful refresh runs.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})
)

// Filter pipeline metrics.
var (
	FilterItemsProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skald_filter_items_processed_total",
		Help: "Candidate items pushed through the filter pipeline.",
	})

	FilterItemErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skald_filter_item_errors_total",
		Help: "Items excluded after per-item evaluation errors, by stage.",
	}, []string{"stage"})

	FilterChunkPanicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skald_filter_chunk_panics_total",
		Help: "Chunks abandoned after an unexpected processing failure.",
	})
)

// Rule compilation cache metrics.
var (
	CompileCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skald_compile_cache_hits_total",
		Help: "Rule set compilations served from the cache.",
	})

	CompileCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skald_compile_cache_misses_total",
		Help: "Rule set compilations that invoked the expression compiler.",
	})

	CompileCacheEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skald_compile_cache_evictions_total",
		Help: "Entries removed by compile cache cleanups.",
	})

	CompileCacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "skald_compile_cache_entries",
		Help: "Current number of cached compiled rule sets.",
	})
)

// HTTP API metrics.
var (
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skald_api_requests_total",
		Help: "HTTP requests by method, route, and status.",
	}, []string{"method", "endpoint", "status"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "skald_api_request_duration_seconds",
		Help:    "HTTP request latency by method, route, and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "skald_api_active_connections",
		Help: "In-flight HTTP requests.",
	})
)

// Database metrics, recorded by gorm callbacks.
var (
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "skald_db_query_duration_seconds",
		Help:    "Database operation latency by operation and table.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"operation", "table"})

	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skald_db_errors_total",
		Help: "Database operation errors by operation and kind.",
	}, []string{"operation", "kind"})

	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "skald_db_connections_active",
		Help: "Open database connections.",
	})
)
