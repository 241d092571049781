// SPDX-License-Identifier: MIT

// Package catalog persists asset descriptors in SQLite. It is the producer
// side of the resolver's input: the mint/upload pipeline writes descriptors
// here and the API reads them back per resolution.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go driver

	"github.com/evermark/mediad/internal/media"
)

// ErrNotFound indicates the asset ID is not in the catalog.
var ErrNotFound = errors.New("catalog: asset not found")

// Config defines SQLite operational parameters.
type Config struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// DefaultConfig returns the standard pool configuration.
func DefaultConfig() Config {
	return Config{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 25,
	}
}

// Store is the SQLite-backed asset catalog.
type Store struct {
	db *sql.DB
}

// Open initializes the catalog with mandatory PRAGMAs applied to every
// connection in the pool (WAL, busy_timeout, synchronous NORMAL) and
// creates the schema when missing.
func Open(dbPath string, cfg Config) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		dbPath, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: open failed: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog: ping failed: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog: schema init failed: %w", err)
	}

	return &Store{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS assets (
	id               TEXT PRIMARY KEY,
	fast_url         TEXT NOT NULL DEFAULT '',
	thumbnail_url    TEXT NOT NULL DEFAULT '',
	legacy_url       TEXT NOT NULL DEFAULT '',
	content_hash     TEXT NOT NULL DEFAULT '',
	prefer_thumbnail INTEGER NOT NULL DEFAULT 0,
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL
);
`

// Get loads one asset descriptor.
func (s *Store) Get(ctx context.Context, id string) (media.Asset, error) {
	var a media.Asset
	var preferThumbnail int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, fast_url, thumbnail_url, legacy_url, content_hash, prefer_thumbnail
		FROM assets WHERE id = ?`, id).
		Scan(&a.ID, &a.FastURL, &a.ThumbnailURL, &a.LegacyURL, &a.ContentHash, &preferThumbnail)
	if errors.Is(err, sql.ErrNoRows) {
		return media.Asset{}, ErrNotFound
	}
	if err != nil {
		return media.Asset{}, fmt.Errorf("catalog: get %s: %w", id, err)
	}
	a.PreferThumbnail = preferThumbnail != 0
	return a, nil
}

// Upsert inserts or replaces the asset descriptor.
func (s *Store) Upsert(ctx context.Context, a media.Asset) error {
	if a.ID == "" {
		return fmt.Errorf("catalog: asset id is empty")
	}
	now := time.Now().UTC().Format(time.RFC3339)
	preferThumbnail := 0
	if a.PreferThumbnail {
		preferThumbnail = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assets (id, fast_url, thumbnail_url, legacy_url, content_hash, prefer_thumbnail, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			fast_url         = excluded.fast_url,
			thumbnail_url    = excluded.thumbnail_url,
			legacy_url       = excluded.legacy_url,
			content_hash     = excluded.content_hash,
			prefer_thumbnail = excluded.prefer_thumbnail,
			updated_at       = excluded.updated_at`,
		a.ID, a.FastURL, a.ThumbnailURL, a.LegacyURL, a.ContentHash, preferThumbnail, now, now)
	if err != nil {
		return fmt.Errorf("catalog: upsert %s: %w", a.ID, err)
	}
	return nil
}

// SetFastURL updates only the fast-tier URL, used after a promotion so the
// next descriptor read already carries the fast tier.
func (s *Store) SetFastURL(ctx context.Context, id, fastURL string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE assets SET fast_url = ?, updated_at = ? WHERE id = ?`,
		fastURL, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("catalog: set fast url %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the asset descriptor.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM assets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("catalog: delete %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}
