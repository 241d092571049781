// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers/legacy"
	"github.com/stretchr/testify/require"

	"github.com/evermark/mediad/internal/media"
	"github.com/evermark/mediad/internal/resolve"
)

var (
	openapiOnce sync.Once
	openapiDoc  *openapi3.T
	openapiErr  error
)

func loadOpenAPIDoc(t *testing.T) *openapi3.T {
	t.Helper()
	openapiOnce.Do(func() {
		loader := openapi3.NewLoader()
		doc, err := loader.LoadFromFile("openapi.yaml")
		if err != nil {
			openapiErr = err
			return
		}
		if err := doc.Validate(context.Background()); err != nil {
			openapiErr = err
			return
		}
		openapiDoc = doc
	})
	if openapiErr != nil {
		t.Fatalf("openapi load failed: %v", openapiErr)
	}
	return openapiDoc
}

func validateOpenAPIResponse(t *testing.T, doc *openapi3.T, req *http.Request, rr *httptest.ResponseRecorder) {
	t.Helper()
	router, err := legacy.NewRouter(doc)
	require.NoError(t, err, "openapi router init")

	route, pathParams, err := router.FindRoute(req)
	require.NoError(t, err, "openapi route lookup for %s %s", req.Method, req.URL.Path)

	input := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: &openapi3filter.RequestValidationInput{
			Request:    req,
			PathParams: pathParams,
			Route:      route,
		},
		Status: rr.Code,
		Header: rr.Header(),
	}
	input.SetBodyBytes(rr.Body.Bytes())

	require.NoError(t, openapi3filter.ValidateResponse(context.Background(), input),
		"openapi response validation for %s %s", req.Method, req.URL.Path)
}

// TestContractResponses replays representative requests through the router
// and validates every response against the published OpenAPI document.
func TestContractResponses(t *testing.T) {
	doc := loadOpenAPIDoc(t)
	h := newHarness(t)
	handler := h.api.Handler()

	seedAsset(t, h, media.Asset{ID: "a1", FastURL: "https://fast.example/a1.png"})
	h.resolver.res = &resolve.Resolved{
		URL:      "https://fast.example/a1.png",
		Tier:     media.TierFast,
		LoadTime: 10 * time.Millisecond,
		Attempts: []media.AttemptRecord{
			{
				Source:    media.Candidate{URL: "https://fast.example/a1.png", Tier: media.TierFast},
				StartedAt: time.Now(),
				EndedAt:   time.Now().Add(10 * time.Millisecond),
				Outcome:   media.OutcomeSuccess,
				Status:    http.StatusOK,
			},
		},
	}

	resolveBody, err := json.Marshal(map[string]any{
		"asset": media.Asset{ID: "a2", FastURL: "https://fast.example/a2.png"},
	})
	require.NoError(t, err)

	tests := []struct {
		name       string
		method     string
		path       string
		body       []byte
		wantStatus int
	}{
		{"healthz", http.MethodGet, "/healthz", nil, http.StatusOK},
		{"readyz", http.MethodGet, "/readyz", nil, http.StatusOK},
		{"resolve asset", http.MethodGet, "/api/v1/assets/a1/resolve", nil, http.StatusOK},
		{"resolve asset with variant", http.MethodGet, "/api/v1/assets/a1/resolve?variant=list", nil, http.StatusOK},
		{"resolve unknown asset", http.MethodGet, "/api/v1/assets/ghost/resolve", nil, http.StatusNotFound},
		{"resolve descriptor", http.MethodPost, "/api/v1/resolve", resolveBody, http.StatusOK},
		{"get asset", http.MethodGet, "/api/v1/assets/a1", nil, http.StatusOK},
		{"get unknown asset", http.MethodGet, "/api/v1/assets/ghost", nil, http.StatusNotFound},
		{"stats", http.MethodGet, "/api/v1/stats", nil, http.StatusOK},
		{"promotion status", http.MethodGet, "/api/v1/promotions/a1", nil, http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var body *bytes.Reader
			if tc.body != nil {
				body = bytes.NewReader(tc.body)
			} else {
				body = bytes.NewReader(nil)
			}
			req := httptest.NewRequest(tc.method, tc.path, body)
			if tc.body != nil {
				req.Header.Set("Content-Type", "application/json")
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			require.Equal(t, tc.wantStatus, rr.Code, "body: %s", rr.Body.String())
			validateOpenAPIResponse(t, doc, req, rr)
		})
	}
}
