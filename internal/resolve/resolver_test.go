// SPDX-License-Identifier: MIT

package resolve

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evermark/mediad/internal/cache"
	"github.com/evermark/mediad/internal/media"
	"github.com/evermark/mediad/internal/telemetry"
)

type fakePromoter struct {
	mu     sync.Mutex
	assets []media.Asset
}

func (p *fakePromoter) Promote(asset media.Asset) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.assets = append(p.assets, asset)
}

func (p *fakePromoter) promoted() []media.Asset {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]media.Asset(nil), p.assets...)
}

// newTestResolver wires a resolver with a fresh memory cache, the loopback
// policy and near-zero backoff.
func newTestResolver(gateways []string, promoter Promoter) (*Resolver, cache.Store) {
	store := cache.NewMemory(cache.MemoryConfig{})
	runner := NewRunner(nil, testPolicy, telemetry.NopSink{})
	r := New(media.NewBuilder(gateways), store, runner, telemetry.NopSink{}, promoter, Config{
		BackoffBase: time.Millisecond,
		BackoffCap:  2 * time.Millisecond,
	})
	return r, store
}

func statusServer(t *testing.T, status int, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestResolveFallsThroughToNextTier(t *testing.T) {
	missing := statusServer(t, http.StatusNotFound, nil)
	serving := statusServer(t, http.StatusOK, nil)

	r, store := newTestResolver(nil, nil)
	defer store.Close() // nolint:errcheck

	asset := media.Asset{
		ID:        "a1",
		FastURL:   missing.URL + "/a1.png",
		LegacyURL: serving.URL + "/a1.png",
	}

	res, err := r.Resolve(context.Background(), asset, Options{})
	require.NoError(t, err)
	assert.Equal(t, asset.LegacyURL, res.URL)
	assert.Equal(t, media.TierLegacy, res.Tier)
	assert.False(t, res.FromCache)
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, media.OutcomeNotFound, res.Attempts[0].Outcome)
	assert.Equal(t, media.OutcomeSuccess, res.Attempts[1].Outcome)

	// The winner is cached under asset|variant.
	entry, ok := store.Get(Key("a1", media.VariantStandard))
	require.True(t, ok)
	assert.Equal(t, asset.LegacyURL, entry.URL)
}

func TestResolveServesFromCacheWithoutProbing(t *testing.T) {
	var hits atomic.Int64
	serving := statusServer(t, http.StatusOK, &hits)

	r, store := newTestResolver(nil, nil)
	defer store.Close() // nolint:errcheck

	asset := media.Asset{ID: "a1", FastURL: serving.URL + "/a1.png"}

	_, err := r.Resolve(context.Background(), asset, Options{})
	require.NoError(t, err)
	probes := hits.Load()

	res, err := r.Resolve(context.Background(), asset, Options{})
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Empty(t, res.Attempts)
	assert.Equal(t, probes, hits.Load(), "cache hit must not probe")
}

func TestResolveVariantsAreCachedSeparately(t *testing.T) {
	var hits atomic.Int64
	serving := statusServer(t, http.StatusOK, &hits)

	r, store := newTestResolver(nil, nil)
	defer store.Close() // nolint:errcheck

	asset := media.Asset{ID: "a1", FastURL: serving.URL + "/a1.png"}

	_, err := r.Resolve(context.Background(), asset, Options{Variant: media.VariantStandard})
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), asset, Options{Variant: media.VariantDetail})
	require.NoError(t, err)

	assert.Equal(t, int64(2), hits.Load())
	assert.Equal(t, 2, store.Len())
}

func TestResolveCoalescesConcurrentCallers(t *testing.T) {
	var hits atomic.Int64
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r, store := newTestResolver(nil, nil)
	defer store.Close() // nolint:errcheck

	asset := media.Asset{ID: "a1", FastURL: srv.URL + "/a1.png"}

	var wg sync.WaitGroup
	results := make([]*Resolved, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.Resolve(context.Background(), asset, Options{})
		}(i)
	}

	// Let both callers join the flight before the probe completes.
	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < 2; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, asset.FastURL, results[i].URL)
	}
	assert.Equal(t, int64(1), hits.Load(), "one flight serves all concurrent callers")
}

func TestResolveExhaustionIsTypedAndUncached(t *testing.T) {
	missing := statusServer(t, http.StatusNotFound, nil)
	broken := statusServer(t, http.StatusInternalServerError, nil)

	r, store := newTestResolver(nil, nil)
	defer store.Close() // nolint:errcheck

	asset := media.Asset{
		ID:        "a1",
		FastURL:   missing.URL + "/a1.png",
		LegacyURL: broken.URL + "/a1.png",
	}

	_, err := r.Resolve(context.Background(), asset, Options{})
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "a1", exhausted.AssetID)
	assert.Len(t, exhausted.Attempts, 2)

	assert.Equal(t, 0, store.Len(), "exhaustion must never be cached")
}

func TestResolveNoSources(t *testing.T) {
	r, store := newTestResolver(nil, nil)
	defer store.Close() // nolint:errcheck

	_, err := r.Resolve(context.Background(), media.Asset{ID: "a1"}, Options{})
	var noSources *NoSourcesError
	require.ErrorAs(t, err, &noSources)
	assert.Equal(t, "a1", noSources.AssetID)
}

func TestResolveEmptyCandidateListIsNoSources(t *testing.T) {
	r, store := newTestResolver(nil, nil)
	defer store.Close() // nolint:errcheck

	// The asset has a location hint, but the durable tier is opted out, so
	// the builder produces nothing.
	asset := media.Asset{ID: "a1", ContentHash: "bafybeihash"}
	_, err := r.Resolve(context.Background(), asset, Options{IncludeDurable: false})
	var noSources *NoSourcesError
	require.ErrorAs(t, err, &noSources)
}

func TestResolveAbortedByCaller(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	r, store := newTestResolver(nil, nil)
	defer store.Close() // nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := r.Resolve(ctx, media.Asset{ID: "a1", FastURL: srv.URL + "/a1.png"}, Options{})
	var aborted *AbortedError
	require.ErrorAs(t, err, &aborted)
	assert.Less(t, time.Since(start), 2*time.Second, "abort must not wait out the probe timeout")
}

func TestResolveRetriesTransientFailures(t *testing.T) {
	var hits atomic.Int64
	broken := statusServer(t, http.StatusInternalServerError, &hits)

	r, store := newTestResolver(nil, nil)
	defer store.Close() // nolint:errcheck

	asset := media.Asset{ID: "a1", FastURL: broken.URL + "/a1.png"}

	_, err := r.Resolve(context.Background(), asset, Options{MaxRetries: 1})
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Len(t, exhausted.Attempts, 2, "one retry means two attempts")
	assert.Equal(t, int64(2), hits.Load())
}

func TestResolveZeroRetriesMeansOneAttempt(t *testing.T) {
	var hits atomic.Int64
	broken := statusServer(t, http.StatusInternalServerError, &hits)

	r, store := newTestResolver(nil, nil)
	defer store.Close() // nolint:errcheck

	asset := media.Asset{ID: "a1", FastURL: broken.URL + "/a1.png"}

	_, err := r.Resolve(context.Background(), asset, Options{MaxRetries: 0})
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Len(t, exhausted.Attempts, 1)
}

func TestResolveNotFoundIsNeverRetried(t *testing.T) {
	var hits atomic.Int64
	missing := statusServer(t, http.StatusNotFound, &hits)

	r, store := newTestResolver(nil, nil)
	defer store.Close() // nolint:errcheck

	asset := media.Asset{ID: "a1", FastURL: missing.URL + "/a1.png"}

	_, err := r.Resolve(context.Background(), asset, Options{MaxRetries: 3})
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, int64(1), hits.Load())
}

func TestResolveDurableWinSchedulesPromotion(t *testing.T) {
	gw := statusServer(t, http.StatusOK, nil)

	promoter := &fakePromoter{}
	r, store := newTestResolver([]string{gw.URL}, promoter)
	defer store.Close() // nolint:errcheck

	asset := media.Asset{ID: "a1", ContentHash: "bafybeihash"}

	res, err := r.Resolve(context.Background(), asset, Options{IncludeDurable: true})
	require.NoError(t, err)
	assert.Equal(t, media.TierDurable, res.Tier)

	promoted := promoter.promoted()
	require.Len(t, promoted, 1)
	assert.Equal(t, "a1", promoted[0].ID)
}

func TestResolveFastWinDoesNotPromote(t *testing.T) {
	serving := statusServer(t, http.StatusOK, nil)

	promoter := &fakePromoter{}
	r, store := newTestResolver(nil, promoter)
	defer store.Close() // nolint:errcheck

	asset := media.Asset{ID: "a1", FastURL: serving.URL + "/a1.png", ContentHash: "bafybeihash"}

	res, err := r.Resolve(context.Background(), asset, Options{IncludeDurable: true})
	require.NoError(t, err)
	assert.Equal(t, media.TierFast, res.Tier)
	assert.Empty(t, promoter.promoted())
}

func TestKeyShape(t *testing.T) {
	assert.Equal(t, "a1|list", Key("a1", media.VariantList))
	assert.Equal(t, "a1|", KeyPrefix("a1"))
}
