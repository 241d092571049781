// SPDX-License-Identifier: MIT

// Package config loads and validates the mediad configuration with
// precedence ENV > YAML file > defaults, and supports hot reload of the
// resolution policy from the config file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config is the full daemon configuration.
type Config struct {
	Listen        string   `yaml:"listen"`
	DataDir       string   `yaml:"dataDir"`
	PublicBaseURL string   `yaml:"publicBaseUrl"`
	LogLevel      string   `yaml:"logLevel"`
	Gateways      []string `yaml:"gateways"`

	Resolution ResolutionConfig `yaml:"resolution"`
	Cache      CacheConfig      `yaml:"cache"`
	Promoter   PromoterConfig   `yaml:"promoter"`
	Tracing    TracingConfig    `yaml:"tracing"`

	// Version is stamped by the loader, not read from file.
	Version string `yaml:"-"`
}

// ResolutionConfig carries the default resolution policy. Per-request
// options override these.
type ResolutionConfig struct {
	MaxSources       int           `yaml:"maxSources"`
	PerSourceTimeout time.Duration `yaml:"perSourceTimeout"`
	MaxRetries       int           `yaml:"maxRetries"`
	IncludeDurable   bool          `yaml:"includeDurable"`
	TTL              time.Duration `yaml:"ttl"`
}

// CacheConfig selects and bounds the cache backend.
type CacheConfig struct {
	Backend       string `yaml:"backend"` // memory | redis | badger
	MaxEntries    int    `yaml:"maxEntries"`
	MaxBytes      int64  `yaml:"maxBytes"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDb"`
	BadgerDir     string `yaml:"badgerDir"`
}

// PromoterConfig shapes the tier promotion pool.
type PromoterConfig struct {
	Workers            int           `yaml:"workers"`
	QueueSize          int           `yaml:"queueSize"`
	TransferTimeout    time.Duration `yaml:"transferTimeout"`
	RatePerSec         float64       `yaml:"ratePerSec"`
	Burst              int           `yaml:"burst"`
	MaxObjectBytes     int64         `yaml:"maxObjectBytes"`
	FailureRetention   time.Duration `yaml:"failureRetention"`
	CompletedRetention time.Duration `yaml:"completedRetention"`
}

// TracingConfig configures the OTel tracer provider.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"` // grpc | http
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
	Environment  string  `yaml:"environment"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:        ":8080",
		DataDir:       "/var/lib/mediad",
		PublicBaseURL: "http://localhost:8080",
		LogLevel:      "info",
		Gateways:      []string{"https://ipfs.io", "https://cloudflare-ipfs.com"},
		Resolution: ResolutionConfig{
			MaxSources:       3,
			PerSourceTimeout: 8 * time.Second,
			MaxRetries:       1,
			IncludeDurable:   true,
			TTL:              24 * time.Hour,
		},
		Cache: CacheConfig{
			Backend:    "memory",
			MaxEntries: 1024,
			MaxBytes:   64 << 20,
		},
		Promoter: PromoterConfig{
			Workers:            4,
			QueueSize:          256,
			TransferTimeout:    30 * time.Second,
			RatePerSec:         2,
			Burst:              4,
			MaxObjectBytes:     32 << 20,
			FailureRetention:   10 * time.Minute,
			CompletedRetention: 5 * time.Minute,
		},
		Tracing: TracingConfig{
			Exporter:     "grpc",
			SamplingRate: 0.1,
			Environment:  "development",
		},
	}
}

// Validate checks the configuration, collecting every problem instead of
// stopping at the first.
func Validate(cfg Config) error {
	var errs []error

	if cfg.Listen == "" {
		errs = append(errs, errors.New("listen address is empty"))
	}
	if cfg.DataDir == "" {
		errs = append(errs, errors.New("data dir is empty"))
	}
	if cfg.Resolution.MaxSources < 1 || cfg.Resolution.MaxSources > 8 {
		errs = append(errs, fmt.Errorf("resolution.maxSources %d out of range [1,8]", cfg.Resolution.MaxSources))
	}
	if cfg.Resolution.MaxRetries < 0 || cfg.Resolution.MaxRetries > 5 {
		errs = append(errs, fmt.Errorf("resolution.maxRetries %d out of range [0,5]", cfg.Resolution.MaxRetries))
	}
	if cfg.Resolution.PerSourceTimeout <= 0 {
		errs = append(errs, errors.New("resolution.perSourceTimeout must be positive"))
	}
	if cfg.Resolution.TTL <= 0 {
		errs = append(errs, errors.New("resolution.ttl must be positive"))
	}
	switch cfg.Cache.Backend {
	case "memory", "redis", "badger":
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q not one of memory, redis, badger", cfg.Cache.Backend))
	}
	if cfg.Cache.Backend == "redis" && cfg.Cache.RedisAddr == "" {
		errs = append(errs, errors.New("cache.redisAddr is required for the redis backend"))
	}
	if len(cfg.Gateways) == 0 {
		errs = append(errs, errors.New("at least one durable-tier gateway is required"))
	}
	for _, gw := range cfg.Gateways {
		u, err := url.Parse(gw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("gateway %q is not a valid http(s) URL", gw))
		}
	}
	if cfg.Tracing.SamplingRate < 0 || cfg.Tracing.SamplingRate > 1 {
		errs = append(errs, fmt.Errorf("tracing.samplingRate %v out of range [0,1]", cfg.Tracing.SamplingRate))
	}
	if cfg.Tracing.Enabled {
		switch cfg.Tracing.Exporter {
		case "grpc", "http":
		default:
			errs = append(errs, fmt.Errorf("tracing.exporter %q not one of grpc, http", cfg.Tracing.Exporter))
		}
		if cfg.Tracing.Endpoint == "" {
			errs = append(errs, errors.New("tracing.endpoint is required when tracing is enabled"))
		}
	}

	return errors.Join(errs...)
}
