// SPDX-License-Identifier: MIT

package media

import "time"

// Outcome classifies the result of probing one candidate source.
type Outcome int

const (
	// OutcomeSuccess means the resource was confirmed loadable.
	OutcomeSuccess Outcome = iota
	// OutcomeNotFound means the source signalled the resource is not present.
	// Terminal for that candidate; never retried.
	OutcomeNotFound
	// OutcomeTimeout means the per-attempt deadline was exceeded.
	OutcomeTimeout
	// OutcomeNetworkError means a transient transport failure.
	OutcomeNetworkError
	// OutcomeAborted means the caller cancelled the resolution.
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeNetworkError:
		return "network_error"
	case OutcomeAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Retryable reports whether the outcome may be retried on the same candidate.
func (o Outcome) Retryable() bool {
	return o == OutcomeTimeout || o == OutcomeNetworkError
}

// AttemptRecord captures one probe of one candidate source.
type AttemptRecord struct {
	Source    Candidate `json:"source"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
	Outcome   Outcome   `json:"outcome"`
	Status    int       `json:"status,omitempty"` // HTTP status when one was received
}

// Duration returns the wall time the attempt took.
func (r AttemptRecord) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}
