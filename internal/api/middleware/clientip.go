// SPDX-License-Identifier: MIT

package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// TrustedProxies lists the networks whose forwarding headers are honoured.
type TrustedProxies []*net.IPNet

// ParseTrustedProxies parses CIDRs or bare IPs.
func ParseTrustedProxies(entries []string) (TrustedProxies, error) {
	var out TrustedProxies
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.Contains(e, "/") {
			if ip := net.ParseIP(e); ip != nil && ip.To4() != nil {
				e += "/32"
			} else {
				e += "/128"
			}
		}
		_, ipnet, err := net.ParseCIDR(e)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", e, err)
		}
		out = append(out, ipnet)
	}
	return out, nil
}

func (t TrustedProxies) trusts(remote string) bool {
	if len(t) == 0 {
		return false
	}
	ip := net.ParseIP(hostOnly(remote))
	if ip == nil {
		return false
	}
	for _, n := range t {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP returns the originating address. X-Forwarded-For and X-Real-IP
// are only consulted when the direct peer is trusted.
func (t TrustedProxies) ClientIP(r *http.Request) string {
	if t.trusts(r.RemoteAddr) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
				return ip
			}
		}
		if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); xr != "" {
			return xr
		}
	}
	return hostOnly(r.RemoteAddr)
}

// KeyFunc adapts ClientIP to httprate.
func (t TrustedProxies) KeyFunc(r *http.Request) (string, error) {
	return t.ClientIP(r), nil
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err == nil && host != "" {
		return host
	}
	return addr
}
