// SPDX-License-Identifier: MIT

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PromotionsTotal counts promotion outcomes.
	PromotionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediad_promotions_total",
		Help: "Tier promotion attempts by result (completed, failed, dropped, dedup, skipped)",
	}, []string{"result"})

	// PromotionDuration tracks durable-to-fast transfer latency.
	PromotionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mediad_promotion_duration_seconds",
		Help:    "Latency of durable-to-fast tier transfers",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
	})

	// PromotionQueueDepth gauges the pending transfer queue.
	PromotionQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediad_promotion_queue_depth",
		Help: "Number of queued tier promotion tasks",
	})
)

// IncPromotion records a promotion outcome.
func IncPromotion(result string) {
	PromotionsTotal.WithLabelValues(result).Inc()
}

// ObservePromotion records the duration of a completed transfer.
func ObservePromotion(d time.Duration) {
	PromotionDuration.Observe(d.Seconds())
}

// SetPromotionQueueDepth updates the queue depth gauge.
func SetPromotionQueueDepth(n int) {
	PromotionQueueDepth.Set(float64(n))
}
