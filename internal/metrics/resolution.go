// SPDX-License-Identifier: MIT

// Package metrics provides Prometheus metrics for the mediad resolution subsystem.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResolveAttemptsTotal counts individual candidate probes by tier and outcome.
	ResolveAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediad_resolve_attempts_total",
		Help: "Total candidate probe attempts by tier and outcome",
	}, []string{"tier", "outcome"})

	// ResolveAttemptDuration tracks per-probe latency.
	ResolveAttemptDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mediad_resolve_attempt_duration_seconds",
		Help:    "Latency of individual candidate probes",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 8},
	}, []string{"tier"})

	// ResolutionsTotal counts whole resolutions by result and cache provenance.
	ResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediad_resolutions_total",
		Help: "Total resolutions by result and whether the cache answered",
	}, []string{"result", "from_cache"})

	// ResolutionDuration tracks end-to-end resolution latency.
	ResolutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mediad_resolution_duration_seconds",
		Help:    "End-to-end resolution latency",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	}, []string{"result", "from_cache"})

	// ResolutionWinsTotal counts successful resolutions by winning tier.
	ResolutionWinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediad_resolution_wins_total",
		Help: "Successful resolutions by winning tier",
	}, []string{"tier"})
)

// IncAttempt records one candidate probe.
func IncAttempt(tier, outcome string, duration time.Duration) {
	ResolveAttemptsTotal.WithLabelValues(tier, outcome).Inc()
	ResolveAttemptDuration.WithLabelValues(tier).Observe(duration.Seconds())
}

// ObserveResolution records one completed resolution.
func ObserveResolution(success, fromCache bool, duration time.Duration) {
	result := "failure"
	if success {
		result = "success"
	}
	fc := strconv.FormatBool(fromCache)
	ResolutionsTotal.WithLabelValues(result, fc).Inc()
	ResolutionDuration.WithLabelValues(result, fc).Observe(duration.Seconds())
}

// IncResolutionWin records the winning tier of a successful resolution.
func IncResolutionWin(tier string) {
	ResolutionWinsTotal.WithLabelValues(tier).Inc()
}
