// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Frozen attribute keys for resolution spans. Only these may be attached.
const (
	AttrAssetID   = "mediad.resolve.asset_id"
	AttrVariant   = "mediad.resolve.variant"
	AttrTier      = "mediad.resolve.tier"
	AttrFromCache = "mediad.resolve.from_cache"
	AttrAttempts  = "mediad.resolve.attempts"
	AttrOutcome   = "mediad.resolve.outcome"
)

var allowedAttributes = map[string]bool{
	AttrAssetID:   true,
	AttrVariant:   true,
	AttrTier:      true,
	AttrFromCache: true,
	AttrAttempts:  true,
	AttrOutcome:   true,
}

// ResolutionAttributes builds the whitelisted span attributes for one resolution.
func ResolutionAttributes(assetID, variant, tier, outcome string, fromCache bool, attempts int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrAssetID, assetID),
		attribute.String(AttrVariant, variant),
		attribute.String(AttrTier, tier),
		attribute.String(AttrOutcome, outcome),
		attribute.Bool(AttrFromCache, fromCache),
		attribute.Int(AttrAttempts, attempts),
	}
	return FilterAttributes(attrs)
}

// FilterAttributes drops any attribute not on the whitelist.
func FilterAttributes(attrs []attribute.KeyValue) []attribute.KeyValue {
	out := attrs[:0]
	for _, kv := range attrs {
		if allowedAttributes[string(kv.Key)] {
			out = append(out, kv)
		}
	}
	return out
}
