// SPDX-License-Identifier: MIT

// Package netpolicy validates outbound probe and fetch targets before any
// request is issued. Candidate URLs come from persisted entity fields and
// from gateway configuration, so they are treated as untrusted input.
package netpolicy

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// ErrBlocked indicates the URL is rejected by the outbound policy.
var ErrBlocked = errors.New("outbound url blocked by policy")

// Policy defines which outbound URLs may be probed or fetched.
type Policy struct {
	// AllowPrivate admits loopback, private and link-local IP literals.
	// Intended for tests and single-host deployments.
	AllowPrivate bool
	// AllowHTTP admits plain http in addition to https.
	AllowHTTP bool
}

// Default is the production policy: https or http, public addresses only.
func Default() Policy {
	return Policy{AllowHTTP: true}
}

// NormalizeHost validates a bare host and returns its canonical form
// (lowercased, IDNA ASCII, trailing dot stripped).
func NormalizeHost(raw string) (string, error) {
	host := strings.TrimSpace(raw)
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	}
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return "", fmt.Errorf("host is empty")
	}
	if strings.Contains(host, "%") {
		return "", fmt.Errorf("host must not include zone: %s", raw)
	}
	if ip := net.ParseIP(host); ip != nil {
		return strings.ToLower(ip.String()), nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("invalid host %q: %w", raw, err)
	}
	return strings.ToLower(ascii), nil
}

// Validate checks a URL against the policy and returns its normalized form.
// A failure wraps ErrBlocked.
func (p Policy) Validate(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty url", ErrBlocked)
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBlocked, err)
	}
	switch u.Scheme {
	case "https":
	case "http":
		if !p.AllowHTTP {
			return "", fmt.Errorf("%w: scheme http not allowed", ErrBlocked)
		}
	default:
		return "", fmt.Errorf("%w: scheme %q not allowed", ErrBlocked, u.Scheme)
	}
	if u.User != nil {
		return "", fmt.Errorf("%w: userinfo not allowed", ErrBlocked)
	}
	if u.Fragment != "" {
		u.Fragment = ""
	}
	host, err := NormalizeHost(u.Hostname())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBlocked, err)
	}
	if ip := net.ParseIP(host); ip != nil && !p.AllowPrivate && isRestrictedIP(ip) {
		return "", fmt.Errorf("%w: address %s is not public", ErrBlocked, host)
	}
	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else {
		u.Host = host
	}
	return u.String(), nil
}

// isRestrictedIP reports whether the IP must never be probed from this service.
func isRestrictedIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified() ||
		ip.IsMulticast()
}
