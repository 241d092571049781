// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheEventsTotal counts cache hits, misses, evictions and fallbacks by backend.
	CacheEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediad_cache_events_total",
		Help: "Cache events by backend and event type",
	}, []string{"backend", "event"})

	// CacheEntries gauges the current entry count of the active backend.
	CacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediad_cache_entries",
		Help: "Current number of cached resolution entries",
	})
)

// IncCacheEvent records one cache event ("hit", "miss", "eviction", "fallback").
func IncCacheEvent(backend, event string) {
	CacheEventsTotal.WithLabelValues(backend, event).Inc()
}

// SetCacheEntries updates the cache entry gauge.
func SetCacheEntries(n int) {
	CacheEntries.Set(float64(n))
}
