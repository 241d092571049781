// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evermark/mediad/internal/media"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "catalog.db"), DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	asset := media.Asset{
		ID:              "a1",
		FastURL:         "https://fast.example/a1.png",
		ThumbnailURL:    "https://thumb.example/a1.png",
		ContentHash:     "bafybeihash1",
		PreferThumbnail: true,
	}
	require.NoError(t, s.Upsert(ctx, asset))

	got, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, asset, got)
}

func TestGetMissingAsset(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertReplacesExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, media.Asset{ID: "a1", FastURL: "https://old.example/a1.png"}))
	require.NoError(t, s.Upsert(ctx, media.Asset{ID: "a1", FastURL: "https://new.example/a1.png", ContentHash: "bafybeihash1"}))

	got, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "https://new.example/a1.png", got.FastURL)
	assert.Equal(t, "bafybeihash1", got.ContentHash)
}

func TestUpsertRejectsEmptyID(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.Upsert(context.Background(), media.Asset{FastURL: "https://x.example"}))
}

func TestSetFastURL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, media.Asset{ID: "a1", ContentHash: "bafybeihash1"}))
	require.NoError(t, s.SetFastURL(ctx, "a1", "https://media.example/ba/fy/h.png"))

	got, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "https://media.example/ba/fy/h.png", got.FastURL)

	assert.ErrorIs(t, s.SetFastURL(ctx, "missing", "https://x"), ErrNotFound)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, media.Asset{ID: "a1", FastURL: "https://x.example"}))
	require.NoError(t, s.Delete(ctx, "a1"))

	_, err := s.Get(ctx, "a1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "a1"), ErrNotFound)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	ctx := context.Background()

	s, err := Open(path, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, media.Asset{ID: "a1", FastURL: "https://x.example"}))
	require.NoError(t, s.Close())

	s, err = Open(path, DefaultConfig())
	require.NoError(t, err)
	defer s.Close() // nolint:errcheck

	got, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "https://x.example", got.FastURL)
}
