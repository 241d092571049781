// SPDX-License-Identifier: MIT

package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/evermark/mediad/internal/media"
	"github.com/evermark/mediad/internal/metrics"
)

// badgerStore persists entries in an embedded Badger database so resolved
// results survive process restarts. Badger enforces the TTL natively via
// entry expiry; the Entry timestamps are kept for access bookkeeping and
// promotion rewrites.
type badgerStore struct {
	db     *badger.DB
	logger zerolog.Logger
	stats  struct {
		hits   atomic.Int64
		misses atomic.Int64
		sets   atomic.Int64
	}
}

// NewBadger opens (or creates) a Badger-backed store at dir. An empty dir
// opens an in-memory database, which is what the tests use.
func NewBadger(dir string, logger zerolog.Logger) (Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger open failed: %w", err)
	}
	return &badgerStore{db: db, logger: logger}, nil
}

func (s *badgerStore) Get(key string) (*Entry, bool) {
	var entry Entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		s.stats.misses.Add(1)
		metrics.IncCacheEvent("badger", "miss")
		return nil, false
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("badger get failed")
		s.stats.misses.Add(1)
		metrics.IncCacheEvent("badger", "miss")
		return nil, false
	}

	now := time.Now()
	if entry.Expired(now) {
		s.Delete(key)
		s.stats.misses.Add(1)
		metrics.IncCacheEvent("badger", "miss")
		return nil, false
	}

	entry.AccessCount++
	entry.LastAccess = now
	s.write(&entry, now)

	s.stats.hits.Add(1)
	metrics.IncCacheEvent("badger", "hit")
	return &entry, true
}

func (s *badgerStore) Put(key string, entry *Entry) {
	cp := *entry
	cp.Key = key
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	if cp.LastAccess.IsZero() {
		cp.LastAccess = cp.CreatedAt
	}
	s.write(&cp, time.Now())
	s.stats.sets.Add(1)
}

func (s *badgerStore) Has(key string) bool {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	return err == nil
}

func (s *badgerStore) Delete(key string) {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("badger delete failed")
	}
}

func (s *badgerStore) RewriteURL(keyPrefix, url string, tier media.Tier) int {
	count := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(keyPrefix)
		now := time.Now()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var entry Entry
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				continue
			}
			if entry.Tier != media.TierDurable || entry.Expired(now) {
				continue
			}
			entry.URL = url
			entry.Tier = tier
			data, err := json.Marshal(&entry)
			if err != nil {
				continue
			}
			remaining := entry.CreatedAt.Add(entry.TTL).Sub(now)
			if remaining <= 0 {
				continue
			}
			e := badger.NewEntry(item.KeyCopy(nil), data).WithTTL(remaining)
			if err := txn.SetEntry(e); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("badger rewrite failed")
	}
	return count
}

func (s *badgerStore) Len() int {
	count := 0
	_ = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count
}

func (s *badgerStore) Stats() Stats {
	return Stats{
		Hits:    s.stats.hits.Load(),
		Misses:  s.stats.misses.Load(),
		Sets:    s.stats.sets.Load(),
		Entries: s.Len(),
	}
}

func (s *badgerStore) Close() error {
	return s.db.Close()
}

func (s *badgerStore) write(entry *Entry, now time.Time) {
	remaining := entry.CreatedAt.Add(entry.TTL).Sub(now)
	if remaining <= 0 {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", entry.Key).Msg("cache entry marshal failed")
		return
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(entry.Key), data).WithTTL(remaining))
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("key", entry.Key).Msg("badger set failed")
	}
}
