package http

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// IPConfig holds configuration for client IP extraction
type IPConfig struct {
	TrustedProxies []string // CIDR ranges of trusted proxies
}

// ExtractClientIP extracts the real client IP address from the request.
// X-Forwarded-For and X-Real-IP are only honored when the request arrives
// from a trusted proxy, to prevent spoofing via header manipulation.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remoteIP := remoteAddr(r)

	if config == nil || !fromTrustedProxy(remoteIP, config.TrustedProxies) {
		return remoteIP
	}

	// X-Forwarded-For may carry a chain; the first parseable entry is the
	// original client
	for _, candidate := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
		candidate = strings.TrimSpace(candidate)
		if _, err := netip.ParseAddr(candidate); err == nil {
			return candidate
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if _, err := netip.ParseAddr(xri); err == nil {
			return xri
		}
	}

	return remoteIP
}

func remoteAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func fromTrustedProxy(ip string, trustedProxies []string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}

	for _, cidr := range trustedProxies {
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			continue // skip invalid CIDR ranges
		}
		if prefix.Contains(addr) {
			return true
		}
	}

	return false
}
