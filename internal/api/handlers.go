// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/evermark/mediad/internal/cache"
	"github.com/evermark/mediad/internal/catalog"
	"github.com/evermark/mediad/internal/media"
	"github.com/evermark/mediad/internal/resolve"
	"github.com/evermark/mediad/internal/telemetry"
)

// resolvedDTO is the wire form of a successful resolution.
type resolvedDTO struct {
	URL        string       `json:"url"`
	Tier       string       `json:"tier"`
	FromCache  bool         `json:"fromCache"`
	LoadTimeMs int64        `json:"loadTimeMs"`
	Attempts   []attemptDTO `json:"attempts"`
}

func resolvedToDTO(res *resolve.Resolved) resolvedDTO {
	return resolvedDTO{
		URL:        res.URL,
		Tier:       res.Tier.String(),
		FromCache:  res.FromCache,
		LoadTimeMs: res.LoadTime.Milliseconds(),
		Attempts:   attemptDTOs(res.Attempts),
	}
}

// optionsDTO is the wire form of per-request resolution options. Absent
// fields keep the configured defaults.
type optionsDTO struct {
	Variant            string `json:"variant,omitempty"`
	MaxSources         int    `json:"maxSources,omitempty"`
	PerSourceTimeoutMs int    `json:"perSourceTimeoutMs,omitempty"`
	MaxRetries         *int   `json:"maxRetries,omitempty"`
	IncludeDurableTier *bool  `json:"includeDurableTier,omitempty"`
	TTLMs              int64  `json:"ttlMs,omitempty"`
	MobileOptimized    bool   `json:"mobileOptimized,omitempty"`
}

// defaultOptions derives the baseline options from the current (hot-reloadable)
// configuration.
func (s *Server) defaultOptions() resolve.Options {
	res := s.holder.Get().Resolution
	return resolve.Options{
		Variant:          media.VariantStandard,
		MaxSources:       res.MaxSources,
		PerSourceTimeout: res.PerSourceTimeout,
		MaxRetries:       res.MaxRetries,
		IncludeDurable:   res.IncludeDurable,
		TTL:              res.TTL,
	}
}

func (s *Server) applyOptionsDTO(opts resolve.Options, dto *optionsDTO) (resolve.Options, error) {
	if dto == nil {
		return opts, nil
	}
	if dto.Variant != "" {
		v := media.Variant(dto.Variant)
		if !v.Valid() {
			return opts, errors.New("unknown variant " + dto.Variant)
		}
		opts.Variant = v
	}
	if dto.MaxSources > 0 {
		opts.MaxSources = dto.MaxSources
	}
	if dto.PerSourceTimeoutMs > 0 {
		opts.PerSourceTimeout = time.Duration(dto.PerSourceTimeoutMs) * time.Millisecond
	}
	if dto.MaxRetries != nil && *dto.MaxRetries >= 0 {
		opts.MaxRetries = *dto.MaxRetries
	}
	if dto.IncludeDurableTier != nil {
		opts.IncludeDurable = *dto.IncludeDurableTier
	}
	if dto.TTLMs > 0 {
		opts.TTL = time.Duration(dto.TTLMs) * time.Millisecond
	}
	opts.MobileOptimized = dto.MobileOptimized
	return opts, nil
}

// handleResolveAsset resolves a catalogued asset:
// GET /api/v1/assets/{assetID}/resolve?variant=&mobile=
func (s *Server) handleResolveAsset(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "assetID")

	asset, err := s.catalog.Get(r.Context(), assetID)
	if errors.Is(err, catalog.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "unknown_asset", "asset "+assetID+" not found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("catalog read failed")
		writeProblem(w, http.StatusInternalServerError, "internal_error", "catalog unavailable")
		return
	}

	opts := s.defaultOptions()
	if v := r.URL.Query().Get("variant"); v != "" {
		variant := media.Variant(v)
		if !variant.Valid() {
			writeProblem(w, http.StatusBadRequest, "invalid_variant", "unknown variant "+v)
			return
		}
		opts.Variant = variant
	}
	if r.URL.Query().Get("mobile") == "true" {
		opts.MobileOptimized = true
		opts.PerSourceTimeout = resolve.MobilePerSourceTimeout
	}

	res, err := s.resolver.Resolve(r.Context(), asset, opts)
	if err != nil {
		s.writeResolutionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resolvedToDTO(res))
}

// handleResolveDescriptor resolves an explicit descriptor:
// POST /api/v1/resolve {"asset": {...}, "options": {...}}
func (s *Server) handleResolveDescriptor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Asset   media.Asset `json:"asset"`
		Options *optionsDTO `json:"options"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid_body", "malformed request body")
		return
	}
	if req.Asset.ID == "" {
		writeProblem(w, http.StatusUnprocessableEntity, "no_sources", "asset id is required")
		return
	}

	opts, err := s.applyOptionsDTO(s.defaultOptions(), req.Options)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid_options", err.Error())
		return
	}

	res, err := s.resolver.Resolve(r.Context(), req.Asset, opts)
	if err != nil {
		s.writeResolutionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resolvedToDTO(res))
}

// handleGetAsset returns the catalogued descriptor.
func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "assetID")
	asset, err := s.catalog.Get(r.Context(), assetID)
	if errors.Is(err, catalog.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "unknown_asset", "asset "+assetID+" not found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("catalog read failed")
		writeProblem(w, http.StatusInternalServerError, "internal_error", "catalog unavailable")
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

// handlePutAsset upserts a descriptor. The path ID wins over any body ID.
func (s *Server) handlePutAsset(w http.ResponseWriter, r *http.Request) {
	var asset media.Asset
	if err := json.NewDecoder(r.Body).Decode(&asset); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid_body", "malformed asset descriptor")
		return
	}
	asset.ID = chi.URLParam(r, "assetID")
	if !asset.HasSources() {
		writeProblem(w, http.StatusUnprocessableEntity, "no_sources", "asset descriptor carries no location hints")
		return
	}
	if err := s.catalog.Upsert(r.Context(), asset); err != nil {
		s.logger.Error().Err(err).Msg("catalog upsert failed")
		writeProblem(w, http.StatusInternalServerError, "internal_error", "catalog unavailable")
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

// handleDeleteAsset removes a descriptor.
func (s *Server) handleDeleteAsset(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "assetID")
	err := s.catalog.Delete(r.Context(), assetID)
	if errors.Is(err, catalog.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "unknown_asset", "asset "+assetID+" not found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("catalog delete failed")
		writeProblem(w, http.StatusInternalServerError, "internal_error", "catalog unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStats returns resolver telemetry plus cache counters.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Resolver telemetry.Stats `json:"resolver"`
		Cache    cache.Stats     `json:"cache"`
	}{
		Resolver: s.sink.Stats(),
		Cache:    s.cache.Stats(),
	})
}

// handlePromotionStatus reports the transfer task state for an asset.
func (s *Server) handlePromotionStatus(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "assetID")
	writeJSON(w, http.StatusOK, struct {
		AssetKey string `json:"assetKey"`
		State    string `json:"state"`
	}{
		AssetKey: assetID,
		State:    s.promoter.Status(assetID).String(),
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
		Uptime string `json:"uptime"`
	}{
		Status: "ok",
		Uptime: time.Since(s.startTime).Truncate(time.Second).String(),
	})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	// Readiness is catalog reachability: a daemon that cannot read
	// descriptors cannot serve resolutions.
	if _, err := s.catalog.Get(r.Context(), "readiness-probe"); err != nil && !errors.Is(err, catalog.ErrNotFound) {
		writeJSON(w, http.StatusServiceUnavailable, struct {
			Status string `json:"status"`
		}{Status: "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
	}{Status: "ready"})
}
