// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestReloadSwapsConfiguration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "listen: \":9090\"\n")

	loader := NewLoader(path, "test")
	initial, err := loader.Load()
	require.NoError(t, err)

	h := NewHolder(initial, loader, path)
	assert.Equal(t, ":9090", h.Get().Listen)

	writeConfig(t, path, "listen: \":7070\"\n")
	require.NoError(t, h.Reload(context.Background()))
	assert.Equal(t, ":7070", h.Get().Listen)
}

func TestReloadKeepsOldConfigOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "listen: \":9090\"\n")

	loader := NewLoader(path, "test")
	initial, err := loader.Load()
	require.NoError(t, err)

	h := NewHolder(initial, loader, path)

	// An invalid file must not disturb the running configuration.
	writeConfig(t, path, "resolution:\n  maxSources: 99\n")
	require.Error(t, h.Reload(context.Background()))
	assert.Equal(t, ":9090", h.Get().Listen)
	assert.Equal(t, 3, h.Get().Resolution.MaxSources)
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "listen: \":9090\"\n")

	loader := NewLoader(path, "test")
	initial, err := loader.Load()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHolder(initial, loader, path)
	require.NoError(t, h.StartWatcher(ctx))

	writeConfig(t, path, "listen: \":7070\"\n")

	require.Eventually(t, func() bool {
		return h.Get().Listen == ":7070"
	}, 5*time.Second, 50*time.Millisecond, "watcher must pick up the file change")
}

func TestWatcherDisabledWithoutPath(t *testing.T) {
	h := NewHolder(Default(), NewLoader("", "test"), "")
	require.NoError(t, h.StartWatcher(context.Background()))
	h.Stop()
}
