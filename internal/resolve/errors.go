// SPDX-License-Identifier: MIT

// Package resolve turns a media asset descriptor into one renderable image
// URL: it orders candidate sources, probes them under time and retry
// budgets, caches the winner and hands durable-tier wins to the promoter.
package resolve

import (
	"fmt"

	"github.com/evermark/mediad/internal/media"
)

// NoSourcesError reports an asset descriptor carrying no usable location
// hint for the requested variant. Not retryable without fixing the asset.
type NoSourcesError struct {
	AssetID string
	Variant media.Variant
}

func (e *NoSourcesError) Error() string {
	return fmt.Sprintf("asset %q has no candidate sources for variant %q", e.AssetID, e.Variant)
}

// ExhaustedError reports that every candidate failed. Terminal for this
// resolution; the caller may resolve again later, nothing is cached.
type ExhaustedError struct {
	AssetID  string
	Attempts []media.AttemptRecord
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d source attempts exhausted for asset %q", len(e.Attempts), e.AssetID)
}

// AbortedError reports a caller-initiated cancellation. Not an error
// condition; the cache is left untouched.
type AbortedError struct {
	Cause error
}

func (e *AbortedError) Error() string {
	if e.Cause != nil {
		return "resolution aborted: " + e.Cause.Error()
	}
	return "resolution aborted"
}

func (e *AbortedError) Unwrap() error {
	return e.Cause
}
