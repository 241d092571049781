// SPDX-License-Identifier: MIT

package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/evermark/mediad/internal/media"
	"github.com/evermark/mediad/internal/metrics"
)

// Stats is the aggregated view over recorded resolutions and attempts.
type Stats struct {
	TotalLoads         int64              `json:"totalLoads"`
	SuccessRate        float64            `json:"successRate"`
	AvgLoadTimeMs      float64            `json:"avgLoadTimeMs"`
	CacheHitRate       float64            `json:"cacheHitRate"`
	PerTierSuccessRate map[string]float64 `json:"perTierSuccessRate"`
}

// Sink records per-attempt and per-resolution telemetry. Purely additive;
// losing telemetry never affects resolution correctness.
type Sink interface {
	RecordAttempt(rec media.AttemptRecord)
	RecordResolution(success, fromCache bool, tier media.Tier, duration time.Duration)
	Stats() Stats
	Recent() []media.AttemptRecord
}

const recentRingSize = 64

type tierCounters struct {
	attempts  int64
	successes int64
}

// memorySink aggregates counters under a mutex and keeps a bounded ring of
// recent attempt records for debug overlays. Events are mirrored into
// Prometheus and an OTel counter.
type memorySink struct {
	mu sync.Mutex

	totalLoads  int64
	successes   int64
	cacheHits   int64
	sumLoadTime time.Duration
	perTier     map[media.Tier]*tierCounters

	recent []media.AttemptRecord
	next   int
	filled bool

	resolutions metric.Int64Counter
}

// NewMemorySink creates the in-process telemetry sink. The OTel counter is
// bound to the globally registered meter provider at construction time.
func NewMemorySink() Sink {
	meter := otel.GetMeterProvider().Meter("mediad.resolve")
	resolutions, _ := meter.Int64Counter("mediad_resolutions",
		metric.WithDescription("Total media resolutions by result"))
	return &memorySink{
		perTier:     make(map[media.Tier]*tierCounters),
		recent:      make([]media.AttemptRecord, recentRingSize),
		resolutions: resolutions,
	}
}

func (s *memorySink) RecordAttempt(rec media.AttemptRecord) {
	metrics.IncAttempt(rec.Source.Tier.String(), rec.Outcome.String(), rec.Duration())

	s.mu.Lock()
	defer s.mu.Unlock()

	tc := s.perTier[rec.Source.Tier]
	if tc == nil {
		tc = &tierCounters{}
		s.perTier[rec.Source.Tier] = tc
	}
	tc.attempts++
	if rec.Outcome == media.OutcomeSuccess {
		tc.successes++
	}

	s.recent[s.next] = rec
	s.next++
	if s.next == len(s.recent) {
		s.next = 0
		s.filled = true
	}
}

func (s *memorySink) RecordResolution(success, fromCache bool, tier media.Tier, duration time.Duration) {
	metrics.ObserveResolution(success, fromCache, duration)
	if success {
		metrics.IncResolutionWin(tier.String())
	}

	result := "failure"
	if success {
		result = "success"
	}
	if s.resolutions != nil {
		s.resolutions.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("result", result),
			attribute.Bool("from_cache", fromCache),
			attribute.String("tier", tier.String()),
		))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalLoads++
	if success {
		s.successes++
		s.sumLoadTime += duration
	}
	if fromCache {
		s.cacheHits++
	}
}

func (s *memorySink) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		TotalLoads:         s.totalLoads,
		PerTierSuccessRate: make(map[string]float64, len(s.perTier)),
	}
	if s.totalLoads > 0 {
		st.SuccessRate = float64(s.successes) / float64(s.totalLoads)
		st.CacheHitRate = float64(s.cacheHits) / float64(s.totalLoads)
	}
	if s.successes > 0 {
		st.AvgLoadTimeMs = float64(s.sumLoadTime.Milliseconds()) / float64(s.successes)
	}
	for tier, tc := range s.perTier {
		if tc.attempts > 0 {
			st.PerTierSuccessRate[tier.String()] = float64(tc.successes) / float64(tc.attempts)
		}
	}
	return st
}

func (s *memorySink) Recent() []media.AttemptRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.filled {
		out := make([]media.AttemptRecord, s.next)
		copy(out, s.recent[:s.next])
		return out
	}
	out := make([]media.AttemptRecord, 0, len(s.recent))
	out = append(out, s.recent[s.next:]...)
	out = append(out, s.recent[:s.next]...)
	return out
}

// NopSink discards everything; used where telemetry is not wired.
type NopSink struct{}

func (NopSink) RecordAttempt(media.AttemptRecord)                      {}
func (NopSink) RecordResolution(bool, bool, media.Tier, time.Duration) {}
func (NopSink) Stats() Stats                                           { return Stats{} }
func (NopSink) Recent() []media.AttemptRecord                          { return nil }
