// SPDX-License-Identifier: MIT

// Package promote moves assets found only in the durable tier into the fast
// tier in the background. Promotion is a best-effort optimization: failures
// are logged and counted, never surfaced to a resolution.
package promote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/evermark/mediad/internal/cache"
	xglog "github.com/evermark/mediad/internal/log"
	"github.com/evermark/mediad/internal/media"
	"github.com/evermark/mediad/internal/metrics"
	"github.com/evermark/mediad/internal/resolve"
)

// State is the lifecycle of one transfer task.
type State int

const (
	StateIdle State = iota
	StateInFlight
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInFlight:
		return "in_flight"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TransferTask tracks one durable-to-fast transfer. Tasks are retained only
// long enough to keep promotion idempotent, then discarded.
type TransferTask struct {
	AssetKey   string    `json:"assetKey"`
	State      State     `json:"state"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}

// Fetcher pulls durable-tier bytes for a content hash.
type Fetcher interface {
	Fetch(ctx context.Context, hash string) ([]byte, string, error)
}

// BlobStore is the fast-tier object store promotions write into.
type BlobStore interface {
	Exists(hash string) (string, bool)
	Put(hash string, r io.Reader, contentType string) (string, error)
}

// Config defines the promoter pool shape.
type Config struct {
	Workers            int
	QueueSize          int
	TransferTimeout    time.Duration
	RatePerSec         float64
	Burst              int
	FailureRetention   time.Duration
	CompletedRetention time.Duration
	// PublicBaseURL is the externally reachable base of the fast-tier
	// fileserver, e.g. "https://media.example.com".
	PublicBaseURL string
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.TransferTimeout <= 0 {
		c.TransferTimeout = 30 * time.Second
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 2
	}
	if c.Burst <= 0 {
		c.Burst = 4
	}
	if c.FailureRetention <= 0 {
		c.FailureRetention = 10 * time.Minute
	}
	if c.CompletedRetention <= 0 {
		c.CompletedRetention = 5 * time.Minute
	}
	return c
}

// Promoter runs the transfer worker pool and the task registry enforcing
// at-most-one in-flight transfer per asset.
type Promoter struct {
	cfg     Config
	fetcher Fetcher
	blobs   BlobStore
	store   cache.Store
	limiter *rate.Limiter
	logger  zerolog.Logger

	jobs   chan media.Asset
	ctx    context.Context
	cancel context.CancelFunc

	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	mu      sync.Mutex
	stopped bool
	tasks   map[string]*TransferTask
}

// New creates a stopped Promoter; call Start before Promote.
func New(fetcher Fetcher, blobs BlobStore, store cache.Store, cfg Config) *Promoter {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Promoter{
		cfg:     cfg,
		fetcher: fetcher,
		blobs:   blobs,
		store:   store,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		logger:  xglog.WithComponent("promoter"),
		jobs:    make(chan media.Asset, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
		tasks:   make(map[string]*TransferTask),
	}
}

// Start launches the workers and the retention cleanup loop.
func (p *Promoter) Start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.cfg.Workers; i++ {
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				for {
					select {
					case <-p.ctx.Done():
						return
					case asset := <-p.jobs:
						p.handle(p.ctx, asset)
						metrics.SetPromotionQueueDepth(len(p.jobs))
					}
				}
			}()
		}
		p.wg.Add(1)
		go p.cleanupLoop()
	})
}

// Stop rejects further Promote calls, cancels in-flight transfers and waits
// for the workers. The jobs channel is never closed: resolver flights outlive
// their callers and may still call Promote after shutdown, which must stay a
// harmless drop.
func (p *Promoter) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
		p.cancel()
		p.wg.Wait()
	})
}

// Promote schedules a durable-to-fast transfer for the asset, fire-and-forget.
// A task already in flight, recently completed or recently failed makes this
// a no-op; a full queue drops the request.
func (p *Promoter) Promote(asset media.Asset) {
	if asset.ContentHash == "" || asset.ID == "" {
		metrics.IncPromotion("skipped")
		return
	}

	now := time.Now()
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		metrics.IncPromotion("dropped")
		return
	}
	if t, ok := p.tasks[asset.ID]; ok {
		switch t.State {
		case StateInFlight:
			p.mu.Unlock()
			metrics.IncPromotion("dedup")
			return
		case StateCompleted:
			if now.Sub(t.FinishedAt) < p.cfg.CompletedRetention {
				p.mu.Unlock()
				metrics.IncPromotion("dedup")
				return
			}
		case StateFailed:
			if now.Sub(t.FinishedAt) < p.cfg.FailureRetention {
				p.mu.Unlock()
				metrics.IncPromotion("skipped")
				return
			}
		}
	}
	p.tasks[asset.ID] = &TransferTask{
		AssetKey:  asset.ID,
		State:     StateInFlight,
		StartedAt: now,
	}
	p.mu.Unlock()

	select {
	case p.jobs <- asset:
		metrics.SetPromotionQueueDepth(len(p.jobs))
	default:
		// queue full -> drop
		p.mu.Lock()
		delete(p.tasks, asset.ID)
		p.mu.Unlock()
		metrics.IncPromotion("dropped")
	}
}

// Status reports the transfer state for an asset key, Idle when unknown.
func (p *Promoter) Status(assetKey string) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.tasks[assetKey]; ok {
		return t.State
	}
	return StateIdle
}

func (p *Promoter) handle(ctx context.Context, asset media.Asset) {
	start := time.Now()

	if err := p.limiter.Wait(ctx); err != nil {
		p.finish(asset.ID, StateFailed)
		return
	}

	tctx, cancel := context.WithTimeout(ctx, p.cfg.TransferTimeout)
	defer cancel()

	url, err := p.transfer(tctx, asset)
	if err != nil {
		p.finish(asset.ID, StateFailed)
		metrics.IncPromotion("failed")
		p.logger.Warn().Err(err).
			Str(xglog.FieldAssetID, asset.ID).
			Msg("tier promotion failed")
		return
	}

	rewritten := p.store.RewriteURL(resolve.KeyPrefix(asset.ID), url, media.TierFast)
	p.finish(asset.ID, StateCompleted)
	metrics.IncPromotion("completed")
	metrics.ObservePromotion(time.Since(start))
	p.logger.Info().
		Str(xglog.FieldAssetID, asset.ID).
		Str(xglog.FieldURL, url).
		Int("rewritten_entries", rewritten).
		Int64(xglog.FieldDurationMS, time.Since(start).Milliseconds()).
		Msg("asset promoted to fast tier")
}

// transfer copies the durable object into the fast-tier store and returns
// its public URL. An object already present is reused without a fetch.
func (p *Promoter) transfer(ctx context.Context, asset media.Asset) (string, error) {
	if rel, ok := p.blobs.Exists(asset.ContentHash); ok {
		return p.publicURL(rel), nil
	}

	data, contentType, err := p.fetcher.Fetch(ctx, asset.ContentHash)
	if err != nil {
		return "", fmt.Errorf("durable fetch: %w", err)
	}
	rel, err := p.blobs.Put(asset.ContentHash, bytes.NewReader(data), contentType)
	if err != nil {
		return "", fmt.Errorf("fast-tier write: %w", err)
	}
	return p.publicURL(rel), nil
}

func (p *Promoter) publicURL(rel string) string {
	return strings.TrimRight(p.cfg.PublicBaseURL, "/") + "/media/" + rel
}

func (p *Promoter) finish(assetKey string, state State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.tasks[assetKey]; ok {
		t.State = state
		t.FinishedAt = time.Now()
	}
}

// cleanupLoop discards finished tasks once their retention lapses.
func (p *Promoter) cleanupLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.prune(time.Now())
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Promoter) prune(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, t := range p.tasks {
		switch t.State {
		case StateCompleted:
			if now.Sub(t.FinishedAt) >= p.cfg.CompletedRetention {
				delete(p.tasks, key)
			}
		case StateFailed:
			if now.Sub(t.FinishedAt) >= p.cfg.FailureRetention {
				delete(p.tasks, key)
			}
		}
	}
}
