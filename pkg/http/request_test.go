package http_test

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	pkghttp "github.com/BradenHooton/rampart/pkg/http"
)

func TestExtractClientIP_DirectConnection_IgnoresHeaders(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.10:54321"

	// Attacker tries to spoof their IP
	req.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")
	req.Header.Set("X-Real-IP", "198.51.100.1")
	req.Header.Set("CF-Connecting-IP", "198.51.100.2")

	config := pkghttp.NewIPConfig([]string{"10.0.0.0/8", "127.0.0.1"})

	assert.Equal(t, "203.0.113.10", pkghttp.ExtractClientIP(req, config))
}

func TestExtractClientIP_TrustedProxy_UsesXForwardedFor(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:54321"
	req.Header.Set("X-Forwarded-For", "203.0.113.42, 10.0.0.5")

	config := pkghttp.NewIPConfig([]string{"10.0.0.0/8"})

	assert.Equal(t, "203.0.113.42", pkghttp.ExtractClientIP(req, config))
}

func TestExtractClientIP_CloudflareHeaderWins(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:54321"
	req.Header.Set("CF-Connecting-IP", "198.51.100.7")
	req.Header.Set("X-Forwarded-For", "203.0.113.42")

	config := pkghttp.NewIPConfig([]string{"10.0.0.0/8"})

	assert.Equal(t, "198.51.100.7", pkghttp.ExtractClientIP(req, config))
}

func TestExtractClientIP_SkipsPrivateHops(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:54321"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 192.168.1.20, 127.0.0.1")

	config := pkghttp.NewIPConfig([]string{"10.0.0.0/8"})

	assert.Equal(t, "203.0.113.9", pkghttp.ExtractClientIP(req, config))
}

func TestExtractClientIP_IgnoresClientSuppliedLeftEntries(t *testing.T) {
	config := pkghttp.NewIPConfig([]string{"10.0.0.0/8"})

	for _, spoofed := range []string{"198.51.100.1", "198.51.100.2", "8.8.8.8"} {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "10.0.0.2:54321"
		req.Header.Set("X-Forwarded-For", spoofed+", 203.0.113.9")

		assert.Equal(t, "203.0.113.9", pkghttp.ExtractClientIP(req, config))
	}
}

func TestExtractClientIP_SkipsChainedTrustedProxies(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.2:54321"
	req.Header.Set("X-Forwarded-For", "198.51.100.1, 203.0.113.9, 192.0.2.10")

	config := pkghttp.NewIPConfig([]string{"10.0.0.0/8", "192.0.2.10"})

	assert.Equal(t, "203.0.113.9", pkghttp.ExtractClientIP(req, config))
}

func TestExtractClientIP_UnparsableHopStopsWalk(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:54321"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, not-an-ip")

	config := pkghttp.NewIPConfig([]string{"10.0.0.0/8"})

	assert.Equal(t, "10.0.0.5", pkghttp.ExtractClientIP(req, config))
}

func TestExtractClientIP_FallsBackToXRealIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:54321"
	req.Header.Set("X-Forwarded-For", "192.168.0.1")
	req.Header.Set("X-Real-IP", "2001:db8::1")

	config := pkghttp.NewIPConfig([]string{"10.0.0.0/8"})

	assert.Equal(t, "2001:db8::1", pkghttp.ExtractClientIP(req, config))
}

func TestExtractClientIP_OnlyPrivateCandidates_UsesPeer(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:54321"
	req.Header.Set("X-Forwarded-For", "10.1.1.1, 172.16.0.4")

	config := pkghttp.NewIPConfig([]string{"10.0.0.0/8"})

	assert.Equal(t, "10.0.0.5", pkghttp.ExtractClientIP(req, config))
}

func TestExtractClientIP_IPv6_TrustedProxy(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "[fd00::5]:443"
	req.Header.Set("X-Forwarded-For", "2001:db8::42")

	config := pkghttp.NewIPConfig([]string{"fd00::/8"})

	assert.Equal(t, "2001:db8::42", pkghttp.ExtractClientIP(req, config))
}

func TestExtractClientIP_WildcardProxyRule(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.20.30.40:1234"
	req.Header.Set("X-Real-IP", "203.0.113.5")

	config := pkghttp.NewIPConfig([]string{"10.20.*"})

	assert.Equal(t, "203.0.113.5", pkghttp.ExtractClientIP(req, config))
}

func TestExtractClientIP_NoConfig_DefaultsSecurely(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.10:54321"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")

	assert.Equal(t, "203.0.113.10", pkghttp.ExtractClientIP(req, nil))
	assert.Equal(t, "203.0.113.10", pkghttp.ExtractClientIP(req, &pkghttp.IPConfig{}))
}

func TestExtractClientIP_RemoteAddrWithoutPort(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.10"

	assert.Equal(t, "203.0.113.10", pkghttp.ExtractClientIP(req, nil))
}

func TestExtractClientIP_EmptyRemoteAddr(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = ""

	assert.Equal(t, "0.0.0.0", pkghttp.ExtractClientIP(req, nil))
}
