// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package net

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

var (
	// ErrSchemeNotAllowed indicates the candidate scheme is outside the policy.
	ErrSchemeNotAllowed = errors.New("scheme not allowed")
	// ErrCrossOrigin indicates the candidate does not share the base origin.
	ErrCrossOrigin = errors.New("cross-origin request not allowed")
)

// OriginPolicy decides which locations a media session may move to.
type OriginPolicy struct {
	AllowCrossOrigin bool
	Schemes          []string
	// Hosts lists extra hosts accepted regardless of origin.
	Hosts []string
}

// Origin is the normalized scheme/host/port triple of a URL.
type Origin struct {
	Scheme string
	Host   string
	Port   int
}

// NormalizeHost validates and normalizes a host for comparison.
func NormalizeHost(raw string) (string, error) {
	host := strings.TrimSpace(raw)
	if host == "" {
		return "", fmt.Errorf("host is empty")
	}
	if strings.Contains(host, "://") {
		return "", fmt.Errorf("host must not include scheme: %s", raw)
	}
	if strings.Contains(host, "/") {
		return "", fmt.Errorf("host must not include path: %s", raw)
	}
	if strings.Contains(host, "@") {
		return "", fmt.Errorf("host must not include userinfo: %s", raw)
	}
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	}
	if strings.Contains(host, ":") && net.ParseIP(host) == nil {
		return "", fmt.Errorf("host must not include port: %s", raw)
	}
	if strings.Contains(host, "%") {
		return "", fmt.Errorf("host must not include zone: %s", raw)
	}
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return "", fmt.Errorf("host is empty")
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

// OriginOf computes the origin of u. File URLs have an empty host.
func OriginOf(u *url.URL) (Origin, error) {
	scheme := strings.ToLower(u.Scheme)
	if scheme == "file" {
		return Origin{Scheme: scheme}, nil
	}
	host, err := NormalizeHost(u.Hostname())
	if err != nil {
		return Origin{}, err
	}
	port, err := urlPort(u, scheme)
	if err != nil {
		return Origin{}, err
	}
	return Origin{Scheme: scheme, Host: host, Port: port}, nil
}

// Resolve resolves raw against base. Relative candidates inherit the base
// location, absolute ones are returned as parsed.
func Resolve(base *url.URL, raw string) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid location: %w", err)
	}
	if base == nil || ref.IsAbs() {
		if !ref.IsAbs() {
			return nil, fmt.Errorf("relative location %q without base", raw)
		}
		return ref, nil
	}
	return base.ResolveReference(ref), nil
}

// CanRequest checks whether a session currently at base may load candidate.
func (p OriginPolicy) CanRequest(base, candidate *url.URL) error {
	scheme := strings.ToLower(candidate.Scheme)
	if len(p.Schemes) > 0 && !schemeAllowed(p.Schemes, scheme) {
		return fmt.Errorf("%w: %q", ErrSchemeNotAllowed, scheme)
	}
	if p.AllowCrossOrigin || base == nil {
		return nil
	}

	to, err := OriginOf(candidate)
	if err != nil {
		return err
	}
	for _, h := range p.Hosts {
		if normalized, err := NormalizeHost(h); err == nil && normalized == to.Host {
			return nil
		}
	}
	from, err := OriginOf(base)
	if err != nil {
		return err
	}
	if from != to {
		return fmt.Errorf("%w: %s://%s:%d", ErrCrossOrigin, to.Scheme, to.Host, to.Port)
	}
	return nil
}

func schemeAllowed(allowed []string, scheme string) bool {
	for _, s := range allowed {
		if strings.EqualFold(strings.TrimSpace(s), scheme) {
			return true
		}
	}
	return false
}

func urlPort(u *url.URL, scheme string) (int, error) {
	if u.Port() == "" {
		switch scheme {
		case "http":
			return 80, nil
		case "https":
			return 443, nil
		default:
			return 0, nil
		}
	}
	portStr := u.Port()
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return port, nil
}
