// SPDX-License-Identifier: MIT

// Package media holds the data model for media-source resolution: assets,
// display variants, candidate sources and attempt records. It is pure
// bookkeeping and performs no I/O.
package media

// Tier identifies one of the storage locations an asset image may live in.
type Tier int

// TierNone marks the absence of a winning tier, e.g. in telemetry for a
// resolution that produced no URL. It never appears on a candidate.
const TierNone Tier = -1

const (
	// TierFast is the primary low-latency object storage serving images directly.
	TierFast Tier = iota
	// TierThumbnail is a pre-scaled small rendition for list contexts.
	TierThumbnail
	// TierLegacy is an older URL field kept for previously processed assets.
	TierLegacy
	// TierDurable is the content-addressed network reached via a gateway.
	TierDurable
)

func (t Tier) String() string {
	switch t {
	case TierFast:
		return "fast"
	case TierThumbnail:
		return "thumbnail"
	case TierLegacy:
		return "legacy"
	case TierDurable:
		return "durable"
	case TierNone:
		return "none"
	default:
		return "unknown"
	}
}

// Asset describes where the image for one evermark may be found. All location
// hints are optional individually, but at least one must be set for a
// resolution to start.
type Asset struct {
	ID              string `json:"id"`
	FastURL         string `json:"fastUrl,omitempty"`
	ThumbnailURL    string `json:"thumbnailUrl,omitempty"`
	LegacyURL       string `json:"legacyUrl,omitempty"`
	ContentHash     string `json:"contentHash,omitempty"`
	PreferThumbnail bool   `json:"preferThumbnail,omitempty"`
}

// HasSources reports whether the asset carries at least one location hint.
func (a Asset) HasSources() bool {
	return a.FastURL != "" || a.ThumbnailURL != "" || a.LegacyURL != "" || a.ContentHash != ""
}

// Variant is the display context a resolution serves.
type Variant string

const (
	VariantStandard Variant = "standard"
	VariantList     Variant = "list"
	VariantDetail   Variant = "detail"
)

// PrefersThumbnail reports whether the variant implies a small rendering.
func (v Variant) PrefersThumbnail() bool {
	return v == VariantList
}

// Valid reports whether v is a known display variant.
func (v Variant) Valid() bool {
	switch v {
	case VariantStandard, VariantList, VariantDetail:
		return true
	}
	return false
}

// Candidate is one URL/tier combination the resolver may attempt.
// Lower priority is tried first.
type Candidate struct {
	URL      string `json:"url"`
	Tier     Tier   `json:"tier"`
	Priority int    `json:"priority"`
}
