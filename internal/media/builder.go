// SPDX-License-Identifier: MIT

package media

import (
	"sort"
	"strings"
)

// Candidate priorities. The thumbnail slot moves to the front only when the
// asset or variant asks for a small rendering; the durable tier is always
// last because gateway fetches are the slowest path.
const (
	priorityThumbnail = 0
	priorityFast      = 1
	priorityLegacy    = 2
	priorityDurable   = 3
)

// DefaultGateways are the durable-tier HTTP gateways used when none are configured.
var DefaultGateways = []string{
	"https://ipfs.io",
	"https://cloudflare-ipfs.com",
}

// BuildOptions controls candidate list construction.
type BuildOptions struct {
	// MaxSources truncates the candidate list. Zero means the default of 3.
	MaxSources int
	// IncludeDurable admits the durable tier as a last-resort candidate.
	IncludeDurable bool
}

// DefaultMaxSources is the candidate list length used when MaxSources is zero.
const DefaultMaxSources = 3

// Builder turns an asset descriptor into a priority-ordered candidate list.
// It is pure: no I/O, no side effects.
type Builder struct {
	gateways []string
}

// NewBuilder returns a Builder using the given durable-tier gateway base URLs,
// falling back to DefaultGateways when none are supplied.
func NewBuilder(gateways []string) *Builder {
	if len(gateways) == 0 {
		gateways = DefaultGateways
	}
	return &Builder{gateways: gateways}
}

// Gateways returns the configured durable-tier gateway base URLs.
func (b *Builder) Gateways() []string {
	return b.gateways
}

// DurableURL derives the gateway URL for a content hash from the first
// configured gateway.
func (b *Builder) DurableURL(hash string) string {
	return GatewayURL(b.gateways[0], hash)
}

// GatewayURL joins a gateway base URL and a content hash into a fetch URL.
func GatewayURL(gateway, hash string) string {
	return strings.TrimRight(gateway, "/") + "/ipfs/" + hash
}

// Build produces the deduplicated, priority-sorted candidate list for one
// asset and display variant, truncated to MaxSources.
//
// Ordering rules:
//   - thumbnail gets priority 0 iff the asset prefers it or the variant
//     implies a small rendering; otherwise it is excluded entirely
//   - the fast tier gets priority 1, or 0 when no thumbnail preference exists
//   - the legacy URL gets priority 2, and only when it differs from the fast
//     URL (a second probe of the same URL is wasted work)
//   - the durable tier gets priority 3, only when IncludeDurable is set
func (b *Builder) Build(asset Asset, variant Variant, opts BuildOptions) []Candidate {
	maxSources := opts.MaxSources
	if maxSources <= 0 {
		maxSources = DefaultMaxSources
	}

	wantThumbnail := asset.PreferThumbnail || variant.PrefersThumbnail()

	var out []Candidate
	if wantThumbnail && asset.ThumbnailURL != "" {
		out = append(out, Candidate{URL: asset.ThumbnailURL, Tier: TierThumbnail, Priority: priorityThumbnail})
	}
	if asset.FastURL != "" {
		prio := priorityFast
		if !wantThumbnail {
			prio = priorityThumbnail
		}
		out = append(out, Candidate{URL: asset.FastURL, Tier: TierFast, Priority: prio})
	}
	if asset.LegacyURL != "" && asset.LegacyURL != asset.FastURL {
		out = append(out, Candidate{URL: asset.LegacyURL, Tier: TierLegacy, Priority: priorityLegacy})
	}
	if opts.IncludeDurable && asset.ContentHash != "" {
		out = append(out, Candidate{URL: b.DurableURL(asset.ContentHash), Tier: TierDurable, Priority: priorityDurable})
	}

	out = dedupe(out)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	if len(out) > maxSources {
		out = out[:maxSources]
	}
	return out
}

// dedupe removes candidates sharing a URL, keeping the lowest priority.
func dedupe(cands []Candidate) []Candidate {
	best := make(map[string]int, len(cands))
	for i, c := range cands {
		if j, ok := best[c.URL]; !ok || c.Priority < cands[j].Priority {
			best[c.URL] = i
		}
	}
	if len(best) == len(cands) {
		return cands
	}
	out := cands[:0]
	for i, c := range cands {
		if best[c.URL] == i {
			out = append(out, c)
		}
	}
	return out
}
