// SPDX-License-Identifier: MIT

package resolve

import (
	"time"

	"github.com/evermark/mediad/internal/media"
)

// Resolution defaults. Chosen once here; the divergent per-caller values the
// old frontends carried are gone on purpose.
const (
	DefaultPerSourceTimeout = 8 * time.Second
	MobilePerSourceTimeout  = 5 * time.Second
	MobileDurableTimeout    = 3 * time.Second
	DefaultMaxRetries       = 1
	DefaultTTL              = 24 * time.Hour
	DefaultBackoffBase      = 200 * time.Millisecond
	DefaultBackoffCap       = 2 * time.Second
)

// Options tunes one resolution call.
type Options struct {
	Variant          media.Variant
	MaxSources       int
	PerSourceTimeout time.Duration
	MaxRetries       int
	IncludeDurable   bool
	TTL              time.Duration
	MobileOptimized  bool
}

// DefaultOptions returns the canonical resolution policy.
func DefaultOptions() Options {
	return Options{
		Variant:          media.VariantStandard,
		MaxSources:       media.DefaultMaxSources,
		PerSourceTimeout: DefaultPerSourceTimeout,
		MaxRetries:       DefaultMaxRetries,
		IncludeDurable:   true,
		TTL:              DefaultTTL,
	}
}

// normalized fills zero-valued fields with defaults. IncludeDurable is left
// as given: callers opting out of the durable tier stay opted out.
func (o Options) normalized() Options {
	if o.Variant == "" {
		o.Variant = media.VariantStandard
	}
	if o.MaxSources <= 0 {
		o.MaxSources = media.DefaultMaxSources
	}
	if o.PerSourceTimeout <= 0 {
		o.PerSourceTimeout = DefaultPerSourceTimeout
		if o.MobileOptimized {
			o.PerSourceTimeout = MobilePerSourceTimeout
		}
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	return o
}

// timeoutFor returns the per-attempt deadline for a tier. Under mobile
// optimization the durable tier gets the shortest budget because gateway
// negotiation is the slowest path.
func (o Options) timeoutFor(tier media.Tier) time.Duration {
	timeout := o.PerSourceTimeout
	if o.MobileOptimized && tier == media.TierDurable && timeout > MobileDurableTimeout {
		timeout = MobileDurableTimeout
	}
	return timeout
}
