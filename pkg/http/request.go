package http

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/BradenHooton/rampart/internal/matcher"
)

// IPConfig holds configuration for IP extraction and validation
type IPConfig struct {
	// TrustedProxies lists peers whose forwarding headers are honored.
	// Entries may be exact addresses, CIDR ranges or trailing wildcards.
	TrustedProxies *matcher.RuleSet
}

// NewIPConfig parses trusted proxy rules, one per entry
func NewIPConfig(trustedProxies []string) *IPConfig {
	return &IPConfig{TrustedProxies: matcher.NewRuleSet(trustedProxies)}
}

// ExtractClientIP extracts the real client IP address from the request.
// Forwarding headers are only read when the direct peer is a trusted proxy,
// so a client cannot choose its own address by sending them.
//
// Flow:
// 1. CF-Connecting-IP, set by Cloudflare itself
// 2. X-Forwarded-For walked right to left, skipping trusted proxies and
//    private hops; the first other address is the client
// 3. X-Real-IP
// 4. Fall back to RemoteAddr
//
// Only the right-most entries of X-Forwarded-For were appended by our own
// proxies. Everything left of the first untrusted hop is client-supplied.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remoteIP := getRemoteAddr(r)

	if config == nil || !config.TrustedProxies.Contains(remoteIP) {
		return remoteIP
	}

	if ip, ok := publicAddr(r.Header.Get("CF-Connecting-IP")); ok {
		return ip
	}
	if ip, ok := forwardedClient(r.Header.Get("X-Forwarded-For"), config); ok {
		return ip
	}
	if ip, ok := publicAddr(r.Header.Get("X-Real-IP")); ok {
		return ip
	}

	return remoteIP
}

// forwardedClient walks the hop list from the nearest proxy outwards.
// An unparsable hop ends the walk.
func forwardedClient(header string, config *IPConfig) (string, bool) {
	hops := strings.Split(header, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		addr, err := netip.ParseAddr(hop)
		if err != nil {
			return "", false
		}
		addr = addr.Unmap()
		if config.TrustedProxies.Contains(addr.String()) || isPrivate(addr) {
			continue
		}
		return addr.String(), true
	}
	return "", false
}

func publicAddr(val string) (string, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(val))
	if err != nil {
		return "", false
	}
	addr = addr.Unmap()
	if isPrivate(addr) {
		return "", false
	}
	return addr.String(), true
}

// getRemoteAddr extracts the IP address from RemoteAddr (removing port if present)
func getRemoteAddr(r *http.Request) string {
	if r.RemoteAddr != "" {
		// RemoteAddr may include port: "ip:port"
		if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return ip
		}
		// If no port, just use it directly
		return r.RemoteAddr
	}
	return "0.0.0.0"
}

// isPrivate reports loopback, link-local, unspecified and RFC 1918/4193 ranges
func isPrivate(addr netip.Addr) bool {
	return addr.IsPrivate() ||
		addr.IsLoopback() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsUnspecified()
}
