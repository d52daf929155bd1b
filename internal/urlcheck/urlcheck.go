// Package urlcheck validates caller-supplied URLs before they are
// classified or fetched.
package urlcheck

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validation errors, all terminal and user-facing.
var (
	ErrInvalidURL         = errors.New("invalid URL")
	ErrProtocolNotAllowed = errors.New("URL scheme must be http or https")
	ErrSSRFBlocked        = errors.New("URL targets a private or loopback address")
)

// Private IPv4 ranges rejected for literal hostnames: RFC1918 plus link-local.
var privateNets = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}

// Validate parses rawURL and enforces the SSRF policy. It must run before
// any classification or network use of the URL.
//
// The policy covers literal hostnames only: a public DNS name that resolves
// to a private address passes validation. Hostnames are deliberately not
// resolved here, so that check stays a residual gap of the current rule set.
func Validate(rawURL string) (*url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("%w, got %q", ErrProtocolNotAllowed, parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	if isLoopback(host) {
		return nil, fmt.Errorf("%w: %s", ErrSSRFBlocked, host)
	}

	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			for _, n := range privateNets {
				if n.Contains(v4) {
					return nil, fmt.Errorf("%w: %s", ErrSSRFBlocked, host)
				}
			}
		}
	}

	return parsed, nil
}

func isLoopback(host string) bool {
	switch strings.ToLower(host) {
	case "localhost", "127.0.0.1", "0.0.0.0", "::1", "[::1]":
		return true
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return true
	}
	return false
}
