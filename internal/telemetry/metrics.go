// Package telemetry exposes Prometheus metrics for the harvest pipeline
// and a small HTTP server to scrape them from.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordsExtracted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvest_records_extracted_total",
		Help: "The total number of product records successfully extracted.",
	})
	unitsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_units_failed_total",
		Help: "The total number of pipeline units that failed terminally, labeled by stage.",
	}, []string{"stage"})
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_cache_lookups_total",
		Help: "Cache lookups by outcome (hit or miss).",
	}, []string{"outcome"})
	rateLimitDelay = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "harvest_rate_limit_delay_seconds",
		Help:    "Delay introduced by the named rate limiters.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"resource"})
	stabilizationRounds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "harvest_stabilization_rounds",
		Help:    "Scroll rounds needed before a listing page plateaued.",
		Buckets: prometheus.LinearBuckets(1, 2, 15),
	})
)

// RecordExtracted counts one persisted-eligible product record.
func RecordExtracted() {
	recordsExtracted.Inc()
}

// UnitFailed counts one terminal unit failure in the named stage.
func UnitFailed(stage string) {
	unitsFailed.WithLabelValues(stage).Inc()
}

// CacheHit counts a fingerprint served from cache.
func CacheHit() {
	cacheLookups.WithLabelValues("hit").Inc()
}

// CacheMiss counts a fingerprint that required computation.
func CacheMiss() {
	cacheLookups.WithLabelValues("miss").Inc()
}

// ObserveRateLimitDelay records the wait a limiter imposed on one acquire.
func ObserveRateLimitDelay(resource string, d time.Duration) {
	rateLimitDelay.WithLabelValues(resource).Observe(d.Seconds())
}

// ObserveStabilizationRounds records how many grow rounds a page took.
func ObserveStabilizationRounds(n int) {
	stabilizationRounds.Observe(float64(n))
}
