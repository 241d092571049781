// SPDX-License-Identifier: MIT

package resolve

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/evermark/mediad/internal/media"
	"github.com/evermark/mediad/internal/netpolicy"
	"github.com/evermark/mediad/internal/telemetry"
)

// Runner probes one candidate source under a deadline and classifies the
// outcome. Every probe produces exactly one attempt record, which is handed
// to the telemetry sink.
type Runner struct {
	client *http.Client
	policy netpolicy.Policy
	sink   telemetry.Sink
}

// NewRunner creates a Runner. A nil client uses a dedicated probe client
// without its own timeout (deadlines come from the per-attempt context).
func NewRunner(client *http.Client, policy netpolicy.Policy, sink telemetry.Sink) *Runner {
	if client == nil {
		client = &http.Client{}
	}
	if sink == nil {
		sink = telemetry.NopSink{}
	}
	return &Runner{client: client, policy: policy, sink: sink}
}

// Probe attempts to confirm that the candidate URL serves a resource, racing
// a HEAD request (with a one-byte ranged GET fallback) against the timeout.
func (r *Runner) Probe(ctx context.Context, cand media.Candidate, timeout time.Duration) media.AttemptRecord {
	rec := media.AttemptRecord{
		Source:    cand,
		StartedAt: time.Now(),
	}

	target, err := r.policy.Validate(cand.URL)
	if err != nil {
		// A policy-blocked URL can never be probed; treat it like a
		// permanently absent resource so it is skipped without retries.
		rec.Outcome = media.OutcomeNotFound
		rec.EndedAt = time.Now()
		r.sink.RecordAttempt(rec)
		return rec
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	status, err := r.probeOnce(attemptCtx, http.MethodHead, target)
	if err == nil && (status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented) {
		status, err = r.probeOnce(attemptCtx, http.MethodGet, target)
	}

	rec.EndedAt = time.Now()
	rec.Status = status
	rec.Outcome = classify(ctx, status, err)
	r.sink.RecordAttempt(rec)
	return rec
}

// probeOnce issues a single request and returns the status code. GET probes
// request a single byte so a success never pulls the whole object.
func (r *Runner) probeOnce(ctx context.Context, method, target string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return 0, err
	}
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-0")
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close() // nolint:errcheck

	return resp.StatusCode, nil
}

// classify maps a transport result onto the attempt outcome taxonomy. Only
// these five outcomes leave the runner; callers never see raw transport errors.
func classify(parent context.Context, status int, err error) media.Outcome {
	if err != nil {
		switch {
		case parent.Err() != nil:
			// The caller is gone, whether it canceled or its own deadline
			// lapsed. Timeout is reserved for the per-attempt budget.
			return media.OutcomeAborted
		case errors.Is(err, context.DeadlineExceeded):
			return media.OutcomeTimeout
		case errors.Is(err, context.Canceled):
			return media.OutcomeAborted
		default:
			return media.OutcomeNetworkError
		}
	}

	switch {
	case status >= 200 && status < 300:
		return media.OutcomeSuccess
	case status == http.StatusNotFound || status == http.StatusGone:
		return media.OutcomeNotFound
	default:
		return media.OutcomeNetworkError
	}
}
