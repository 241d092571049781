// SPDX-License-Identifier: MIT

// Package api provides the HTTP surface of mediad: resolution, asset CRUD,
// promotion introspection, stats and the fast-tier media fileserver.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	cachepkg "github.com/evermark/mediad/internal/cache"
	"github.com/evermark/mediad/internal/catalog"
	"github.com/evermark/mediad/internal/config"
	xglog "github.com/evermark/mediad/internal/log"
	"github.com/evermark/mediad/internal/media"
	"github.com/evermark/mediad/internal/promote"
	"github.com/evermark/mediad/internal/resolve"
	"github.com/evermark/mediad/internal/telemetry"
)

// Resolver is the resolution entry point the server calls.
type Resolver interface {
	Resolve(ctx context.Context, asset media.Asset, opts resolve.Options) (*resolve.Resolved, error)
}

// PromotionStatus exposes transfer task states for introspection.
type PromotionStatus interface {
	Status(assetKey string) promote.State
}

// Deps carries everything the server needs; constructed once by the host
// application. No component here is reached through package globals.
type Deps struct {
	Holder    *config.Holder
	Resolver  Resolver
	Catalog   *catalog.Store
	Cache     cachepkg.Store
	Sink      telemetry.Sink
	Promoter  PromotionStatus
	MediaRoot string
}

// Server is the mediad HTTP API server.
type Server struct {
	holder    *config.Holder
	resolver  Resolver
	catalog   *catalog.Store
	cache     cachepkg.Store
	sink      telemetry.Sink
	promoter  PromotionStatus
	mediaRoot string
	logger    zerolog.Logger
	startTime time.Time
}

// New creates the server.
func New(deps Deps) *Server {
	return &Server{
		holder:    deps.Holder,
		resolver:  deps.Resolver,
		catalog:   deps.Catalog,
		cache:     deps.Cache,
		sink:      deps.Sink,
		promoter:  deps.Promoter,
		mediaRoot: deps.MediaRoot,
		logger:    xglog.WithComponent("api"),
		startTime: time.Now(),
	}
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apiRateLimit())

		r.Post("/resolve", s.handleResolveDescriptor)
		r.Get("/stats", s.handleStats)
		r.Get("/promotions/{assetID}", s.handlePromotionStatus)

		r.Route("/assets/{assetID}", func(r chi.Router) {
			r.Get("/", s.handleGetAsset)
			r.Put("/", s.handlePutAsset)
			r.Delete("/", s.handleDeleteAsset)
			r.Get("/resolve", s.handleResolveAsset)
		})
	})

	r.Handle("/media/*", http.StripPrefix("/media/", s.mediaFileServer()))

	return r
}
