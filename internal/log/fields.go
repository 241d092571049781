// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID     = "request_id"
	FieldCorrelationID = "correlation_id"
	FieldAssetID       = "asset_id"
	FieldKey           = "key"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Resolution fields
	FieldTier    = "tier"
	FieldVariant = "variant"
	FieldOutcome = "outcome"
	FieldAttempt = "attempt"
	FieldURL     = "url"

	// Cache fields
	FieldBackend = "backend"

	// Timing fields
	FieldDurationMS = "duration_ms"
)
