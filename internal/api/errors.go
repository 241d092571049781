// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	xglog "github.com/evermark/mediad/internal/log"
	"github.com/evermark/mediad/internal/media"
	"github.com/evermark/mediad/internal/resolve"
)

// statusClientClosedRequest mirrors the nginx convention for aborted requests.
const statusClientClosedRequest = 499

// problem is the error payload shape for every API error response.
type problem struct {
	Code     string       `json:"code"`
	Error    string       `json:"error"`
	Attempts []attemptDTO `json:"attempts,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, problem{Code: code, Error: msg})
}

// writeResolutionError maps the resolution error taxonomy onto HTTP statuses.
// Only these typed errors ever reach this point; the resolver owns the
// classification of transport failures.
func (s *Server) writeResolutionError(w http.ResponseWriter, r *http.Request, err error) {
	var noSources *resolve.NoSourcesError
	var exhausted *resolve.ExhaustedError
	var aborted *resolve.AbortedError

	switch {
	case errors.As(err, &noSources):
		writeProblem(w, http.StatusUnprocessableEntity, "no_sources", err.Error())
	case errors.As(err, &exhausted):
		writeJSON(w, http.StatusBadGateway, problem{
			Code:     "all_sources_exhausted",
			Error:    err.Error(),
			Attempts: attemptDTOs(exhausted.Attempts),
		})
	case errors.As(err, &aborted):
		// The client went away; nothing useful can be written.
		logger := xglog.WithContext(r.Context(), s.logger)
		logger.Debug().Str("path", r.URL.Path).Msg("resolution aborted by client")
		w.WriteHeader(statusClientClosedRequest)
	default:
		s.logger.Error().Err(err).Msg("unexpected resolution error")
		writeProblem(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

// attemptDTO is the wire form of one attempt record.
type attemptDTO struct {
	URL        string `json:"url"`
	Tier       string `json:"tier"`
	Outcome    string `json:"outcome"`
	Status     int    `json:"status,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

func attemptDTOs(recs []media.AttemptRecord) []attemptDTO {
	out := make([]attemptDTO, len(recs))
	for i, rec := range recs {
		out[i] = attemptDTO{
			URL:        rec.Source.URL,
			Tier:       rec.Source.Tier.String(),
			Outcome:    rec.Outcome.String(),
			Status:     rec.Status,
			DurationMs: rec.Duration().Milliseconds(),
		}
	}
	return out
}
