// SPDX-License-Identifier: MIT

package cache

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/evermark/mediad/internal/metrics"
)

// Options selects and bounds a cache backend.
type Options struct {
	Backend    string // "memory", "redis" or "badger"
	MaxEntries int
	MaxBytes   int64
	DefaultTTL time.Duration // drives the memory janitor sweep interval

	Redis     RedisConfig
	BadgerDir string
}

// New constructs the configured backend. A persistent backend that fails to
// come up degrades to the in-memory store with a warning; resolutions must
// never fail because the cache is unavailable.
func New(opts Options, logger zerolog.Logger) Store {
	memory := func() Store {
		return NewMemory(MemoryConfig{
			MaxEntries:    opts.MaxEntries,
			MaxBytes:      opts.MaxBytes,
			SweepInterval: SweepInterval(opts.DefaultTTL),
		})
	}

	switch opts.Backend {
	case "", "memory":
		return memory()
	case "redis":
		store, err := NewRedis(opts.Redis, logger)
		if err != nil {
			logger.Warn().Err(err).
				Str("backend", "redis").
				Msg("cache backend unavailable, falling back to memory")
			metrics.IncCacheEvent("redis", "fallback")
			return memory()
		}
		return store
	case "badger":
		store, err := NewBadger(opts.BadgerDir, logger)
		if err != nil {
			logger.Warn().Err(err).
				Str("backend", "badger").
				Msg("cache backend unavailable, falling back to memory")
			metrics.IncCacheEvent("badger", "fallback")
			return memory()
		}
		return store
	default:
		logger.Warn().
			Str("backend", opts.Backend).
			Msg("unknown cache backend, using memory")
		return memory()
	}
}
