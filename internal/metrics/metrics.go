// embedfix - Embed-Fixing Gateway for Instagram Media
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/embedfix

// Package metrics exposes the Prometheus collectors embedfix's components
// record against, following the teacher's internal/metrics +
// internal/middleware/prometheus.go convention of package-level collectors
// registered against the default registry at init time.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits/CacheMisses count KV-Cache lookups, labeled by cache
	// instance ("post", "shareid").
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedfix_cache_hits_total",
		Help: "KV-cache hits, labeled by cache instance.",
	}, []string{"cache"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedfix_cache_misses_total",
		Help: "KV-cache misses, labeled by cache instance.",
	}, []string{"cache"})

	CacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedfix_cache_evictions_total",
		Help: "KV-cache amortized evictions, labeled by cache instance.",
	}, []string{"cache"})

	// ScrapeDuration records scraper latency by scraper name and outcome.
	ScrapeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "embedfix_scrape_duration_seconds",
		Help:    "Time spent in a single scraper call.",
		Buckets: prometheus.DefBuckets,
	}, []string{"scraper", "outcome"})

	// SingleflightCoalesced counts calls that joined an in-flight call
	// instead of triggering a new fetch.
	SingleflightCoalesced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedfix_singleflight_coalesced_total",
		Help: "Calls that coalesced onto an already in-flight singleflight call.",
	}, []string{"group"})

	SingleflightCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedfix_singleflight_calls_total",
		Help: "Calls that triggered a new singleflight invocation.",
	}, []string{"group"})

	// GridCompositionDuration and GridCacheEvictions track the grid
	// composer (§4.9).
	GridCompositionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "embedfix_grid_composition_duration_seconds",
		Help:    "Time spent composing a justified grid image.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	GridCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "embedfix_grid_cache_evictions_total",
		Help: "Composed grid files evicted from the on-disk LFU cache.",
	})

	// CircuitBreakerState tracks the GraphQLScraper's gobreaker state
	// (0=closed, 1=half-open, 2=open), labeled by breaker name.
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "embedfix_circuit_breaker_state",
		Help: "Circuit breaker state: 0=closed, 1=half-open, 2=open.",
	}, []string{"breaker"})

	// DispatchRedirects counts outbound 307 redirects to the upstream
	// site, labeled by reason (human, absent, error).
	DispatchRedirects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedfix_dispatch_redirects_total",
		Help: "307 redirects issued to the upstream site, labeled by reason.",
	}, []string{"reason"})

	// DispatchRestricted counts 403 responses for Restricted posts.
	DispatchRestricted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "embedfix_dispatch_restricted_total",
		Help: "403 responses issued for Restricted posts.",
	})
)

// ObserveGridComposition records a single grid-composition call's duration
// and success/failure outcome.
func ObserveGridComposition(d time.Duration, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	GridCompositionDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveScrape records a single scraper call's duration and outcome.
func ObserveScrape(scraper string, d time.Duration, outcome string) {
	ScrapeDuration.WithLabelValues(scraper, outcome).Observe(d.Seconds())
}
