// SPDX-License-Identifier: MIT

package promote

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/evermark/mediad/internal/cache"
	"github.com/evermark/mediad/internal/media"
	"github.com/evermark/mediad/internal/resolve"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeFetcher struct {
	calls atomic.Int64
	err   error
}

func (f *fakeFetcher) Fetch(ctx context.Context, hash string) ([]byte, string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, "", f.err
	}
	return []byte("png-bytes"), "image/png", nil
}

type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string]string
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: make(map[string]string)}
}

func (b *fakeBlobs) Exists(hash string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rel, ok := b.objects[hash]
	return rel, ok
}

func (b *fakeBlobs) Put(hash string, r io.Reader, contentType string) (string, error) {
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	rel := hash[:2] + "/" + hash[2:4] + "/" + hash + ".png"
	b.mu.Lock()
	b.objects[hash] = rel
	b.mu.Unlock()
	return rel, nil
}

func newTestPromoter(t *testing.T, fetcher Fetcher, blobs BlobStore, store cache.Store) *Promoter {
	t.Helper()
	p := New(fetcher, blobs, store, Config{
		Workers:       2,
		RatePerSec:    1000,
		Burst:         1000,
		PublicBaseURL: "https://media.example",
	})
	p.Start()
	t.Cleanup(p.Stop)
	return p
}

const testHash = "bafybeigdyrztl5hash"

func TestPromoteTransfersAndRewritesCache(t *testing.T) {
	store := cache.NewMemory(cache.MemoryConfig{})
	defer store.Close() // nolint:errcheck

	store.Put(resolve.Key("a1", media.VariantStandard), &cache.Entry{
		URL:  "https://gw.example/ipfs/" + testHash,
		Tier: media.TierDurable,
		TTL:  time.Hour,
	})

	fetcher := &fakeFetcher{}
	blobs := newFakeBlobs()
	p := newTestPromoter(t, fetcher, blobs, store)

	p.Promote(media.Asset{ID: "a1", ContentHash: testHash})

	require.Eventually(t, func() bool {
		return p.Status("a1") == StateCompleted
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, int64(1), fetcher.calls.Load())

	entry, ok := store.Get(resolve.Key("a1", media.VariantStandard))
	require.True(t, ok)
	assert.Equal(t, media.TierFast, entry.Tier)
	rel, stored := blobs.Exists(testHash)
	require.True(t, stored)
	assert.Equal(t, "https://media.example/media/"+rel, entry.URL)
}

func TestPromoteIsIdempotent(t *testing.T) {
	store := cache.NewMemory(cache.MemoryConfig{})
	defer store.Close() // nolint:errcheck

	fetcher := &fakeFetcher{}
	p := newTestPromoter(t, fetcher, newFakeBlobs(), store)

	asset := media.Asset{ID: "a1", ContentHash: testHash}
	for i := 0; i < 5; i++ {
		p.Promote(asset)
	}

	require.Eventually(t, func() bool {
		return p.Status("a1") == StateCompleted
	}, 2*time.Second, 5*time.Millisecond)

	// A completed task within retention dedups further requests.
	p.Promote(asset)
	assert.Equal(t, int64(1), fetcher.calls.Load())
}

func TestPromoteFailureIsRemembered(t *testing.T) {
	store := cache.NewMemory(cache.MemoryConfig{})
	defer store.Close() // nolint:errcheck

	fetcher := &fakeFetcher{err: errors.New("gateway down")}
	p := newTestPromoter(t, fetcher, newFakeBlobs(), store)

	asset := media.Asset{ID: "a1", ContentHash: testHash}
	p.Promote(asset)

	require.Eventually(t, func() bool {
		return p.Status("a1") == StateFailed
	}, 2*time.Second, 5*time.Millisecond)

	// Within the failure retention window the asset is not retried.
	p.Promote(asset)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(1), fetcher.calls.Load())
}

func TestPromoteSkipsAssetsWithoutHash(t *testing.T) {
	store := cache.NewMemory(cache.MemoryConfig{})
	defer store.Close() // nolint:errcheck

	fetcher := &fakeFetcher{}
	p := newTestPromoter(t, fetcher, newFakeBlobs(), store)

	p.Promote(media.Asset{ID: "a1"})
	p.Promote(media.Asset{ContentHash: testHash})

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateIdle, p.Status("a1"))
	assert.Zero(t, fetcher.calls.Load())
}

func TestPromoteReusesExistingObject(t *testing.T) {
	store := cache.NewMemory(cache.MemoryConfig{})
	defer store.Close() // nolint:errcheck

	fetcher := &fakeFetcher{}
	blobs := newFakeBlobs()
	_, err := blobs.Put(testHash, strings.NewReader("png-bytes"), "image/png")
	require.NoError(t, err)

	p := newTestPromoter(t, fetcher, blobs, store)
	p.Promote(media.Asset{ID: "a1", ContentHash: testHash})

	require.Eventually(t, func() bool {
		return p.Status("a1") == StateCompleted
	}, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, fetcher.calls.Load(), "existing object must not be fetched again")
}

func TestPromoteAfterStopIsDropped(t *testing.T) {
	store := cache.NewMemory(cache.MemoryConfig{})
	defer store.Close() // nolint:errcheck

	fetcher := &fakeFetcher{}
	p := New(fetcher, newFakeBlobs(), store, Config{
		Workers:    2,
		RatePerSec: 1000,
		Burst:      1000,
	})
	p.Start()
	p.Stop()

	// A detached resolver flight can win on the durable tier after the run
	// loop has shut the promoter down; the late Promote must be a no-op.
	assert.NotPanics(t, func() {
		p.Promote(media.Asset{ID: "a1", ContentHash: testHash})
	})
	assert.Equal(t, StateIdle, p.Status("a1"))
	assert.Zero(t, fetcher.calls.Load())
}

func TestPruneDropsExpiredTasks(t *testing.T) {
	p := New(&fakeFetcher{}, newFakeBlobs(), cache.NewMemory(cache.MemoryConfig{}), Config{
		CompletedRetention: time.Millisecond,
		FailureRetention:   time.Millisecond,
	})

	p.tasks["done"] = &TransferTask{AssetKey: "done", State: StateCompleted, FinishedAt: time.Now().Add(-time.Second)}
	p.tasks["bad"] = &TransferTask{AssetKey: "bad", State: StateFailed, FinishedAt: time.Now().Add(-time.Second)}
	p.tasks["busy"] = &TransferTask{AssetKey: "busy", State: StateInFlight}

	p.prune(time.Now())

	assert.Equal(t, StateIdle, p.Status("done"))
	assert.Equal(t, StateIdle, p.Status("bad"))
	assert.Equal(t, StateInFlight, p.Status("busy"))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "in_flight", StateInFlight.String())
	assert.Equal(t, "completed", StateCompleted.String())
	assert.Equal(t, "failed", StateFailed.String())
}
