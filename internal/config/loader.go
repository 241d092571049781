// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader loads configuration with precedence ENV > YAML file > defaults.
type Loader struct {
	path    string
	version string
}

// NewLoader creates a Loader. An empty path skips the file layer.
func NewLoader(path, version string) *Loader {
	return &Loader{path: path, version: version}
}

// Load produces a validated configuration.
func (l *Loader) Load() (Config, error) {
	cfg := Default()

	if l.path != "" {
		data, err := os.ReadFile(l.path) // #nosec G304 -- operator-supplied config path
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	mergeEnv(&cfg)
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// mergeEnv overlays MEDIAD_* environment variables onto the configuration.
func mergeEnv(cfg *Config) {
	cfg.Listen = ParseString("MEDIAD_LISTEN", cfg.Listen)
	cfg.DataDir = ParseString("MEDIAD_DATA", cfg.DataDir)
	cfg.PublicBaseURL = ParseString("MEDIAD_PUBLIC_URL", cfg.PublicBaseURL)
	cfg.LogLevel = ParseString("MEDIAD_LOG_LEVEL", cfg.LogLevel)
	cfg.Gateways = ParseStringSlice("MEDIAD_GATEWAYS", cfg.Gateways)

	cfg.Resolution.MaxSources = ParseInt("MEDIAD_RESOLVE_MAX_SOURCES", cfg.Resolution.MaxSources)
	cfg.Resolution.PerSourceTimeout = ParseDuration("MEDIAD_RESOLVE_TIMEOUT", cfg.Resolution.PerSourceTimeout)
	cfg.Resolution.MaxRetries = ParseInt("MEDIAD_RESOLVE_RETRIES", cfg.Resolution.MaxRetries)
	cfg.Resolution.IncludeDurable = ParseBool("MEDIAD_RESOLVE_INCLUDE_DURABLE", cfg.Resolution.IncludeDurable)
	cfg.Resolution.TTL = ParseDuration("MEDIAD_RESOLVE_TTL", cfg.Resolution.TTL)

	cfg.Cache.Backend = ParseString("MEDIAD_CACHE_BACKEND", cfg.Cache.Backend)
	cfg.Cache.MaxEntries = ParseInt("MEDIAD_CACHE_MAX_ENTRIES", cfg.Cache.MaxEntries)
	cfg.Cache.MaxBytes = ParseInt64("MEDIAD_CACHE_MAX_BYTES", cfg.Cache.MaxBytes)
	cfg.Cache.RedisAddr = ParseString("MEDIAD_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = ParseString("MEDIAD_REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = ParseInt("MEDIAD_REDIS_DB", cfg.Cache.RedisDB)
	cfg.Cache.BadgerDir = ParseString("MEDIAD_BADGER_DIR", cfg.Cache.BadgerDir)

	cfg.Promoter.Workers = ParseInt("MEDIAD_PROMOTE_WORKERS", cfg.Promoter.Workers)
	cfg.Promoter.QueueSize = ParseInt("MEDIAD_PROMOTE_QUEUE", cfg.Promoter.QueueSize)
	cfg.Promoter.TransferTimeout = ParseDuration("MEDIAD_PROMOTE_TIMEOUT", cfg.Promoter.TransferTimeout)
	cfg.Promoter.RatePerSec = ParseFloat("MEDIAD_PROMOTE_RATE", cfg.Promoter.RatePerSec)
	cfg.Promoter.MaxObjectBytes = ParseInt64("MEDIAD_PROMOTE_MAX_OBJECT_BYTES", cfg.Promoter.MaxObjectBytes)

	cfg.Tracing.Enabled = ParseBool("MEDIAD_OTEL_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Exporter = ParseString("MEDIAD_OTEL_EXPORTER", cfg.Tracing.Exporter)
	cfg.Tracing.Endpoint = ParseString("MEDIAD_OTEL_ENDPOINT", cfg.Tracing.Endpoint)
	cfg.Tracing.SamplingRate = ParseFloat("MEDIAD_OTEL_SAMPLING", cfg.Tracing.SamplingRate)
	cfg.Tracing.Environment = ParseString("MEDIAD_OTEL_ENVIRONMENT", cfg.Tracing.Environment)
}
