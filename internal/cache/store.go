// SPDX-License-Identifier: MIT

// Package cache stores resolved image URLs with TTL expiry and bounded
// eviction. Backends degrade, never escalate: a failing persistent store is
// a cache miss, not a resolution failure.
package cache

import (
	"time"

	"github.com/evermark/mediad/internal/media"
)

// Entry is one resolved result keyed by asset identity and variant.
type Entry struct {
	Key         string        `json:"key"`
	URL         string        `json:"url"`
	Tier        media.Tier    `json:"tier"`
	CreatedAt   time.Time     `json:"createdAt"`
	LastAccess  time.Time     `json:"lastAccess"`
	AccessCount int64         `json:"accessCount"`
	TTL         time.Duration `json:"ttl"`
}

// Expired reports whether the entry's TTL has elapsed at the given instant.
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.CreatedAt.Add(e.TTL))
}

// approxSize estimates the entry's in-memory footprint for byte-bounded eviction.
func (e *Entry) approxSize() int {
	return len(e.Key) + len(e.URL) + 96
}

// Stats holds cache performance counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Sets      int64 `json:"sets"`
	Evictions int64 `json:"evictions"`
	Expired   int64 `json:"expired"`
	Entries   int   `json:"entries"`
	Bytes     int64 `json:"bytes"`
}

// Store is the resolved-result cache. Implementations are safe for
// concurrent use. Get bumps access bookkeeping on a hit; an expired entry is
// a miss and is purged.
type Store interface {
	Get(key string) (*Entry, bool)
	Put(key string, entry *Entry)
	Has(key string) bool
	Delete(key string)
	// RewriteURL repoints still-valid durable-tier entries whose key starts
	// with keyPrefix at a new URL and tier. It returns the number of entries
	// rewritten. Used by tier promotion so cached results benefit
	// immediately.
	RewriteURL(keyPrefix, url string, tier media.Tier) int
	Len() int
	Stats() Stats
	Close() error
}

// SweepInterval derives the janitor sweep period from a TTL: a quarter of the
// TTL, clamped to [1s, 15m].
func SweepInterval(ttl time.Duration) time.Duration {
	iv := ttl / 4
	if iv < time.Second {
		iv = time.Second
	}
	if iv > 15*time.Minute {
		iv = 15 * time.Minute
	}
	return iv
}
