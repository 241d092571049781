// SPDX-License-Identifier: MIT

package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"

	"github.com/evermark/mediad/internal/media"
	"github.com/evermark/mediad/internal/metrics"
)

// MemoryConfig bounds the in-memory store.
type MemoryConfig struct {
	MaxEntries    int           // entry-count bound (0 = default 1024)
	MaxBytes      int64         // estimated byte bound (0 = default 64 MiB)
	SweepInterval time.Duration // janitor period (0 = no janitor)
}

const (
	defaultMaxEntries = 1024
	defaultMaxBytes   = 64 << 20
)

// memoryStore keeps entries in a map plus an explicit recency list so
// eviction walks least-recently-accessed entries directly instead of
// scanning the whole map.
type memoryStore struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	recency *list.List // front = most recently accessed
	bytes   int64

	maxEntries int
	maxBytes   int64

	stats   Stats
	janitor *janitor
}

// NewMemory creates the in-memory store. It is the canonical backend and the
// fallback for every persistent backend.
func NewMemory(cfg MemoryConfig) Store {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = defaultMaxEntries
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	s := &memoryStore{
		entries:    make(map[string]*list.Element),
		recency:    list.New(),
		maxEntries: cfg.MaxEntries,
		maxBytes:   cfg.MaxBytes,
	}
	if cfg.SweepInterval > 0 {
		s.janitor = &janitor{
			interval: cfg.SweepInterval,
			stop:     make(chan struct{}),
		}
		go s.janitor.run(s)
	}
	return s
}

func (s *memoryStore) Get(key string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.entries[key]
	if !ok {
		s.stats.Misses++
		metrics.IncCacheEvent("memory", "miss")
		return nil, false
	}
	e := el.Value.(*Entry)
	if e.Expired(time.Now()) {
		s.removeLocked(key, el)
		s.stats.Expired++
		s.stats.Misses++
		metrics.IncCacheEvent("memory", "miss")
		return nil, false
	}

	e.AccessCount++
	e.LastAccess = time.Now()
	s.recency.MoveToFront(el)
	s.stats.Hits++
	metrics.IncCacheEvent("memory", "hit")

	cp := *e
	return &cp, true
}

func (s *memoryStore) Put(key string, entry *Entry) {
	cp := *entry
	cp.Key = key
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	if cp.LastAccess.IsZero() {
		cp.LastAccess = cp.CreatedAt
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.entries[key]; ok {
		s.removeLocked(key, el)
	}
	el := s.recency.PushFront(&cp)
	s.entries[key] = el
	s.bytes += int64(cp.approxSize())
	s.stats.Sets++
	s.evictLocked()
	metrics.SetCacheEntries(len(s.entries))
}

func (s *memoryStore) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.entries[key]
	if !ok {
		return false
	}
	return !el.Value.(*Entry).Expired(time.Now())
}

func (s *memoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.entries[key]; ok {
		s.removeLocked(key, el)
	}
}

func (s *memoryStore) RewriteURL(keyPrefix, url string, tier media.Tier) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	count := 0
	for key, el := range s.entries {
		if !strings.HasPrefix(key, keyPrefix) {
			continue
		}
		e := el.Value.(*Entry)
		if e.Tier != media.TierDurable || e.Expired(now) {
			continue
		}
		s.bytes += int64(len(url) - len(e.URL))
		e.URL = url
		e.Tier = tier
		count++
	}
	return count
}

func (s *memoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *memoryStore) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Entries = len(s.entries)
	st.Bytes = s.bytes
	return st
}

func (s *memoryStore) Close() error {
	if s.janitor != nil {
		s.janitor.stopOnce.Do(func() { close(s.janitor.stop) })
	}
	return nil
}

// evictLocked removes least-recently-accessed entries until the store is back
// under both the entry-count and byte bounds.
func (s *memoryStore) evictLocked() {
	for len(s.entries) > s.maxEntries || s.bytes > s.maxBytes {
		el := s.recency.Back()
		if el == nil {
			return
		}
		e := el.Value.(*Entry)
		s.removeLocked(e.Key, el)
		s.stats.Evictions++
		metrics.IncCacheEvent("memory", "eviction")
	}
}

func (s *memoryStore) removeLocked(key string, el *list.Element) {
	s.recency.Remove(el)
	delete(s.entries, key)
	s.bytes -= int64(el.Value.(*Entry).approxSize())
	if s.bytes < 0 {
		s.bytes = 0
	}
}

// sweep purges expired entries eagerly. Returns the number purged.
func (s *memoryStore) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	count := 0
	for key, el := range s.entries {
		if el.Value.(*Entry).Expired(now) {
			s.removeLocked(key, el)
			count++
		}
	}
	s.stats.Expired += int64(count)
	return count
}

// janitor performs the periodic expiry sweep.
type janitor struct {
	interval time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

func (j *janitor) run(s *memoryStore) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-j.stop:
			return
		}
	}
}
