// SPDX-License-Identifier: MIT

package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evermark/mediad/internal/media"
)

func TestFactoryDefaultsToMemory(t *testing.T) {
	for _, backend := range []string{"", "memory", "no-such-backend"} {
		s := New(Options{Backend: backend, DefaultTTL: time.Hour}, zerolog.Nop())
		_, ok := s.(*memoryStore)
		assert.True(t, ok, "backend %q should yield the memory store", backend)
		_ = s.Close()
	}
}

func TestFactoryRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)

	s := New(Options{Backend: "redis", Redis: RedisConfig{Addr: mr.Addr()}}, zerolog.Nop())
	defer s.Close() // nolint:errcheck

	_, ok := s.(*redisStore)
	require.True(t, ok)

	s.Put("a|v", &Entry{URL: "u", Tier: media.TierFast, TTL: time.Minute})
	assert.True(t, s.Has("a|v"))
}

func TestFactoryFallsBackWhenRedisUnavailable(t *testing.T) {
	s := New(Options{Backend: "redis", Redis: RedisConfig{Addr: "127.0.0.1:1"}}, zerolog.Nop())
	defer s.Close() // nolint:errcheck

	_, ok := s.(*memoryStore)
	assert.True(t, ok, "unreachable redis must degrade to memory")
}

func TestFactoryBadgerBackend(t *testing.T) {
	s := New(Options{Backend: "badger", BadgerDir: t.TempDir()}, zerolog.Nop())
	defer s.Close() // nolint:errcheck

	_, ok := s.(*badgerStore)
	require.True(t, ok)
}
