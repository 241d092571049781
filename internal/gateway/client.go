// SPDX-License-Identifier: MIT

// Package gateway fetches durable-tier objects through configured
// content-addressed HTTP gateways, with per-gateway fallback and a size cap.
package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	xglog "github.com/evermark/mediad/internal/log"
	"github.com/evermark/mediad/internal/media"
	"github.com/evermark/mediad/internal/netpolicy"
)

// DefaultMaxObjectBytes caps a single durable-tier fetch.
const DefaultMaxObjectBytes = 32 << 20

// Client fetches content-hash-addressed objects.
type Client struct {
	gateways []string
	client   *http.Client
	policy   netpolicy.Policy
	maxBytes int64
	logger   zerolog.Logger
}

// New creates a Client. Empty gateways fall back to the builder defaults; a
// nil http client uses a plain one (deadlines come from the caller context).
func New(gateways []string, client *http.Client, policy netpolicy.Policy, maxBytes int64) *Client {
	if len(gateways) == 0 {
		gateways = media.DefaultGateways
	}
	if client == nil {
		client = &http.Client{}
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxObjectBytes
	}
	return &Client{
		gateways: gateways,
		client:   client,
		policy:   policy,
		maxBytes: maxBytes,
		logger:   xglog.WithComponent("gateway"),
	}
}

// ValidCID performs a shape check on a content hash before it is ever
// interpolated into a gateway URL.
func ValidCID(hash string) bool {
	if len(hash) < 40 || len(hash) > 128 {
		return false
	}
	for _, c := range hash {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}

// Fetch retrieves the object bytes and content type for a hash, trying each
// gateway in order until one serves it.
func (c *Client) Fetch(ctx context.Context, hash string) ([]byte, string, error) {
	if !ValidCID(hash) {
		return nil, "", fmt.Errorf("gateway: invalid content hash %q", hash)
	}

	var lastErr error
	for _, gw := range c.gateways {
		data, contentType, err := c.fetchFrom(ctx, gw, hash)
		if err == nil {
			return data, contentType, nil
		}
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		c.logger.Debug().Err(err).
			Str("gateway", gw).
			Msg("gateway fetch failed, trying next")
		lastErr = err
	}
	return nil, "", fmt.Errorf("gateway: all gateways failed for %s: %w", hash, lastErr)
}

func (c *Client) fetchFrom(ctx context.Context, gw, hash string) ([]byte, string, error) {
	target, err := c.policy.Validate(media.GatewayURL(gw, hash))
	if err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("gateway: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > c.maxBytes {
		return nil, "", fmt.Errorf("gateway: object exceeds %d byte cap", c.maxBytes)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
