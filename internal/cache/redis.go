// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/evermark/mediad/internal/media"
	"github.com/evermark/mediad/internal/metrics"
)

// redisKeyPrefix namespaces resolution entries within a shared Redis.
const redisKeyPrefix = "mediad:resolve:"

const redisOpTimeout = 2 * time.Second

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string // Redis server address (host:port)
	Password string // Redis password (optional)
	DB       int    // Redis database number
}

// redisStore is a Redis-backed Store. Entries are JSON values with native
// per-key TTLs; every operation failure degrades to a miss.
type redisStore struct {
	client *redis.Client
	logger zerolog.Logger
	stats  struct {
		hits      atomic.Int64
		misses    atomic.Int64
		sets      atomic.Int64
		evictions atomic.Int64
	}
}

// NewRedis creates a Redis-backed store and verifies connectivity.
func NewRedis(cfg RedisConfig, logger zerolog.Logger) (Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Msg("connected to Redis cache")

	return &redisStore{client: client, logger: logger}, nil
}

func (s *redisStore) Get(key string) (*Entry, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	val, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		s.stats.misses.Add(1)
		metrics.IncCacheEvent("redis", "miss")
		return nil, false
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("redis get failed")
		s.stats.misses.Add(1)
		metrics.IncCacheEvent("redis", "miss")
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(val, &entry); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache entry unmarshal failed")
		s.stats.misses.Add(1)
		metrics.IncCacheEvent("redis", "miss")
		return nil, false
	}

	now := time.Now()
	if entry.Expired(now) {
		// Redis would expire it on its own; purge eagerly anyway.
		s.deleteQuiet(key)
		s.stats.misses.Add(1)
		metrics.IncCacheEvent("redis", "miss")
		return nil, false
	}

	entry.AccessCount++
	entry.LastAccess = now
	s.writeBack(&entry, now)

	s.stats.hits.Add(1)
	metrics.IncCacheEvent("redis", "hit")
	return &entry, true
}

func (s *redisStore) Put(key string, entry *Entry) {
	cp := *entry
	cp.Key = key
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	if cp.LastAccess.IsZero() {
		cp.LastAccess = cp.CreatedAt
	}
	s.writeBack(&cp, time.Now())
	s.stats.sets.Add(1)
}

func (s *redisStore) Has(key string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	n, err := s.client.Exists(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("redis exists failed")
		return false
	}
	return n > 0
}

func (s *redisStore) Delete(key string) {
	s.deleteQuiet(key)
}

func (s *redisStore) RewriteURL(keyPrefix, url string, tier media.Tier) int {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	count := 0
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		fullKey := iter.Val()
		val, err := s.client.Get(ctx, fullKey).Bytes()
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(val, &entry); err != nil {
			continue
		}
		if entry.Tier != media.TierDurable || entry.Expired(time.Now()) {
			continue
		}
		entry.URL = url
		entry.Tier = tier
		data, err := json.Marshal(&entry)
		if err != nil {
			continue
		}
		if err := s.client.Set(ctx, fullKey, data, redis.KeepTTL).Err(); err != nil {
			s.logger.Warn().Err(err).Str("key", entry.Key).Msg("redis rewrite failed")
			continue
		}
		count++
	}
	if err := iter.Err(); err != nil {
		s.logger.Warn().Err(err).Msg("redis scan failed during rewrite")
	}
	return count
}

func (s *redisStore) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	count := 0
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	return count
}

func (s *redisStore) Stats() Stats {
	return Stats{
		Hits:      s.stats.hits.Load(),
		Misses:    s.stats.misses.Load(),
		Sets:      s.stats.sets.Load(),
		Evictions: s.stats.evictions.Load(),
		Entries:   s.Len(),
	}
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

// writeBack stores the entry with its remaining TTL; failures are logged and
// swallowed so cache trouble never surfaces to a resolution.
func (s *redisStore) writeBack(entry *Entry, now time.Time) {
	remaining := entry.CreatedAt.Add(entry.TTL).Sub(now)
	if remaining <= 0 {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", entry.Key).Msg("cache entry marshal failed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := s.client.Set(ctx, redisKeyPrefix+entry.Key, data, remaining).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", entry.Key).Msg("redis set failed")
	}
}

func (s *redisStore) deleteQuiet(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("redis del failed")
	}
}
