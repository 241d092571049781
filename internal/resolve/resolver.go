// SPDX-License-Identifier: MIT

package resolve

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/evermark/mediad/internal/cache"
	xglog "github.com/evermark/mediad/internal/log"
	"github.com/evermark/mediad/internal/media"
	"github.com/evermark/mediad/internal/telemetry"
)

// Resolved is the successful outcome of one resolution.
type Resolved struct {
	URL       string                `json:"url"`
	Tier      media.Tier            `json:"tier"`
	FromCache bool                  `json:"fromCache"`
	LoadTime  time.Duration         `json:"loadTimeMs"`
	Attempts  []media.AttemptRecord `json:"attempts"`
}

// Promoter schedules background durable-to-fast transfers.
type Promoter interface {
	Promote(asset media.Asset)
}

// Key builds the cache/coalescing key for an asset and variant.
func Key(assetID string, variant media.Variant) string {
	return assetID + "|" + string(variant)
}

// KeyPrefix matches every variant key of one asset, for promotion rewrites.
func KeyPrefix(assetID string) string {
	return assetID + "|"
}

// Config tunes resolver internals. Zero values take the package defaults.
type Config struct {
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// Resolver orchestrates candidate building, probing, caching and promotion.
// Concurrent resolutions for the same key are coalesced into one flight.
type Resolver struct {
	builder  *media.Builder
	cache    cache.Store
	runner   *Runner
	sink     telemetry.Sink
	promoter Promoter
	logger   zerolog.Logger
	tracer   trace.Tracer

	backoffBase time.Duration
	backoffCap  time.Duration

	mu      sync.Mutex
	flights map[string]*flight
}

// flight is one in-progress resolution shared by every concurrent caller of
// the same key. The flight context is canceled only when the last waiting
// caller has gone away.
type flight struct {
	cancel   context.CancelFunc
	waiters  int
	finished bool
	done     chan struct{}
	res      *Resolved
	err      error
}

// New wires a Resolver. The promoter may be nil, in which case durable-tier
// wins are simply not promoted.
func New(builder *media.Builder, store cache.Store, runner *Runner, sink telemetry.Sink, promoter Promoter, cfg Config) *Resolver {
	if sink == nil {
		sink = telemetry.NopSink{}
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = DefaultBackoffCap
	}
	return &Resolver{
		builder:     builder,
		cache:       store,
		runner:      runner,
		sink:        sink,
		promoter:    promoter,
		logger:      xglog.WithComponent("resolver"),
		tracer:      telemetry.Tracer("mediad.resolve"),
		backoffBase: cfg.BackoffBase,
		backoffCap:  cfg.BackoffCap,
		flights:     make(map[string]*flight),
	}
}

// Resolve returns one renderable URL for the asset, or a typed resolution
// error (NoSourcesError, ExhaustedError, AbortedError). Cancellation of ctx
// aborts this caller; a shared flight keeps running while other callers wait
// on it.
func (r *Resolver) Resolve(ctx context.Context, asset media.Asset, opts Options) (*Resolved, error) {
	start := time.Now()
	opts = opts.normalized()
	key := Key(asset.ID, opts.Variant)

	ctx, span := r.tracer.Start(ctx, "resolve")
	defer span.End()

	if !asset.HasSources() {
		err := &NoSourcesError{AssetID: asset.ID, Variant: opts.Variant}
		r.sink.RecordResolution(false, false, media.TierNone, time.Since(start))
		r.finishSpan(span, asset, opts, "", "no_sources", false, 0)
		return nil, err
	}

	if entry, ok := r.cache.Get(key); ok {
		res := &Resolved{
			URL:       entry.URL,
			Tier:      entry.Tier,
			FromCache: true,
			LoadTime:  time.Since(start),
		}
		r.sink.RecordResolution(true, true, entry.Tier, res.LoadTime)
		r.finishSpan(span, asset, opts, entry.Tier.String(), "success", true, 0)
		return res, nil
	}

	f := r.join(key, asset, opts)

	select {
	case <-ctx.Done():
		r.leave(key, f)
		r.finishSpan(span, asset, opts, "", "aborted", false, 0)
		return nil, &AbortedError{Cause: ctx.Err()}
	case <-f.done:
		r.leave(key, f)
		if f.err != nil {
			r.finishSpan(span, asset, opts, "", outcomeLabel(f.err), false, attemptCount(f.err))
			return nil, f.err
		}
		res := *f.res
		res.LoadTime = time.Since(start)
		r.finishSpan(span, asset, opts, res.Tier.String(), "success", false, len(res.Attempts))
		return &res, nil
	}
}

// join returns the in-flight resolution for key, starting one when absent,
// and registers the caller as a waiter.
func (r *Resolver) join(key string, asset media.Asset, opts Options) *flight {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.Background())
		f = &flight{cancel: cancel, done: make(chan struct{})}
		r.flights[key] = f
		go r.runFlight(fctx, key, f, asset, opts)
	}
	f.waiters++
	return f
}

// leave deregisters a waiter. The last waiter leaving an unfinished flight
// cancels it; there is no one left to consume the result.
func (r *Resolver) leave(key string, f *flight) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f.waiters--
	if f.waiters <= 0 && !f.finished {
		f.cancel()
	}
}

func (r *Resolver) runFlight(ctx context.Context, key string, f *flight, asset media.Asset, opts Options) {
	res, err := r.resolveOnce(ctx, key, asset, opts)

	r.mu.Lock()
	f.res, f.err = res, err
	f.finished = true
	delete(r.flights, key)
	r.mu.Unlock()

	f.cancel()
	close(f.done)
}

// resolveOnce runs the candidate loop for one flight: strictly sequential in
// priority order, per-candidate retry budget, exponential backoff.
func (r *Resolver) resolveOnce(ctx context.Context, key string, asset media.Asset, opts Options) (*Resolved, error) {
	start := time.Now()

	cands := r.builder.Build(asset, opts.Variant, media.BuildOptions{
		MaxSources:     opts.MaxSources,
		IncludeDurable: opts.IncludeDurable,
	})
	if len(cands) == 0 {
		r.sink.RecordResolution(false, false, media.TierNone, time.Since(start))
		return nil, &NoSourcesError{AssetID: asset.ID, Variant: opts.Variant}
	}

	var attempts []media.AttemptRecord
	for _, cand := range cands {
		timeout := opts.timeoutFor(cand.Tier)
		for try := 0; ; try++ {
			rec := r.runner.Probe(ctx, cand, timeout)
			attempts = append(attempts, rec)

			switch rec.Outcome {
			case media.OutcomeSuccess:
				return r.succeed(key, asset, opts, cand, attempts, start), nil
			case media.OutcomeAborted:
				return nil, &AbortedError{Cause: ctx.Err()}
			}

			if !rec.Outcome.Retryable() || try >= opts.MaxRetries {
				break
			}
			if err := r.backoff(ctx, try); err != nil {
				return nil, &AbortedError{Cause: err}
			}
		}
	}

	r.sink.RecordResolution(false, false, media.TierNone, time.Since(start))
	r.logger.Debug().
		Str(xglog.FieldAssetID, asset.ID).
		Str(xglog.FieldVariant, string(opts.Variant)).
		Int(xglog.FieldAttempt, len(attempts)).
		Msg("all candidate sources exhausted")
	return nil, &ExhaustedError{AssetID: asset.ID, Attempts: attempts}
}

// succeed caches the winner, records telemetry and schedules promotion when
// the durable tier won.
func (r *Resolver) succeed(key string, asset media.Asset, opts Options, cand media.Candidate, attempts []media.AttemptRecord, start time.Time) *Resolved {
	elapsed := time.Since(start)

	r.cache.Put(key, &cache.Entry{
		URL:  cand.URL,
		Tier: cand.Tier,
		TTL:  opts.TTL,
	})
	r.sink.RecordResolution(true, false, cand.Tier, elapsed)

	if cand.Tier == media.TierDurable && r.promoter != nil {
		r.promoter.Promote(asset)
	}

	r.logger.Debug().
		Str(xglog.FieldAssetID, asset.ID).
		Str(xglog.FieldTier, cand.Tier.String()).
		Int(xglog.FieldAttempt, len(attempts)).
		Int64(xglog.FieldDurationMS, elapsed.Milliseconds()).
		Msg("resolved media source")

	return &Resolved{
		URL:      cand.URL,
		Tier:     cand.Tier,
		LoadTime: elapsed,
		Attempts: attempts,
	}
}

// backoff sleeps the exponential retry delay (base doubling per try, capped),
// aborting early when the flight context goes away.
func (r *Resolver) backoff(ctx context.Context, try int) error {
	delay := r.backoffBase << uint(try)
	if delay > r.backoffCap {
		delay = r.backoffCap
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Resolver) finishSpan(span trace.Span, asset media.Asset, opts Options, tier, outcome string, fromCache bool, attempts int) {
	span.SetAttributes(telemetry.ResolutionAttributes(
		asset.ID, string(opts.Variant), tier, outcome, fromCache, attempts,
	)...)
}

func outcomeLabel(err error) string {
	switch err.(type) {
	case *NoSourcesError:
		return "no_sources"
	case *ExhaustedError:
		return "exhausted"
	case *AbortedError:
		return "aborted"
	default:
		return "error"
	}
}

func attemptCount(err error) int {
	if ex, ok := err.(*ExhaustedError); ok {
		return len(ex.Attempts)
	}
	return 0
}
