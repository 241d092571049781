// SPDX-License-Identifier: MIT

// Command mediad runs the media-source resolution daemon: it resolves asset
// descriptors to renderable URLs, caches winners, promotes durable-only
// assets into the fast tier and serves the fast-tier objects.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/evermark/mediad/internal/api"
	"github.com/evermark/mediad/internal/cache"
	"github.com/evermark/mediad/internal/catalog"
	"github.com/evermark/mediad/internal/config"
	"github.com/evermark/mediad/internal/gateway"
	xglog "github.com/evermark/mediad/internal/log"
	"github.com/evermark/mediad/internal/media"
	"github.com/evermark/mediad/internal/mediastore"
	"github.com/evermark/mediad/internal/netpolicy"
	"github.com/evermark/mediad/internal/promote"
	"github.com/evermark/mediad/internal/resolve"
	"github.com/evermark/mediad/internal/telemetry"
	"github.com/evermark/mediad/internal/version"
)

const shutdownTimeout = 10 * time.Second

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("mediad %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		base := xglog.Base()
		base.Error().Err(err).Msg("daemon exited with error")
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(configPath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Service: "mediad",
		Version: version.Version,
	})
	logger := xglog.WithComponent("daemon")
	logger.Info().
		Str("listen", cfg.Listen).
		Str("data_dir", cfg.DataDir).
		Str("cache_backend", cfg.Cache.Backend).
		Msg("starting mediad")

	holder := config.NewHolder(cfg, loader, configPath)
	if err := holder.StartWatcher(ctx); err != nil {
		return fmt.Errorf("start config watcher: %w", err)
	}
	defer holder.Stop()

	tracing, err := telemetry.NewProvider(ctx, telemetry.TracingConfig{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    "mediad",
		ServiceVersion: version.Version,
		Environment:    cfg.Tracing.Environment,
		ExporterType:   cfg.Tracing.Exporter,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := tracing.Shutdown(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	store := cache.New(cache.Options{
		Backend:    cfg.Cache.Backend,
		MaxEntries: cfg.Cache.MaxEntries,
		MaxBytes:   cfg.Cache.MaxBytes,
		DefaultTTL: cfg.Resolution.TTL,
		Redis: cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		},
		BadgerDir: cfg.Cache.BadgerDir,
	}, logger)
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("cache close failed")
		}
	}()

	cat, err := catalog.Open(filepath.Join(cfg.DataDir, "catalog.db"), catalog.DefaultConfig())
	if err != nil {
		return err
	}
	defer cat.Close() // nolint:errcheck

	blobs, err := mediastore.New(filepath.Join(cfg.DataDir, "media"))
	if err != nil {
		return fmt.Errorf("init media store: %w", err)
	}

	policy := netpolicy.Default()
	httpClient := &http.Client{}

	sink := telemetry.NewMemorySink()
	fetcher := gateway.New(cfg.Gateways, httpClient, policy, cfg.Promoter.MaxObjectBytes)

	promoter := promote.New(fetcher, blobs, store, promote.Config{
		Workers:            cfg.Promoter.Workers,
		QueueSize:          cfg.Promoter.QueueSize,
		TransferTimeout:    cfg.Promoter.TransferTimeout,
		RatePerSec:         cfg.Promoter.RatePerSec,
		Burst:              cfg.Promoter.Burst,
		FailureRetention:   cfg.Promoter.FailureRetention,
		CompletedRetention: cfg.Promoter.CompletedRetention,
		PublicBaseURL:      cfg.PublicBaseURL,
	})
	promoter.Start()
	defer promoter.Stop()

	resolver := resolve.New(
		media.NewBuilder(cfg.Gateways),
		store,
		resolve.NewRunner(httpClient, policy, sink),
		sink,
		promoter,
		resolve.Config{},
	)

	apiServer := api.New(api.Deps{
		Holder:    holder,
		Resolver:  resolver,
		Catalog:   cat,
		Cache:     store,
		Sink:      sink,
		Promoter:  promoter,
		MediaRoot: blobs.Root(),
	})

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           otelhttp.NewHandler(apiServer.Handler(), "mediad.http"),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("listen", cfg.Listen).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
