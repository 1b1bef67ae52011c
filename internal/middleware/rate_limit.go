package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	pkghttp "github.com/BradenHooton/rampart/pkg/http"
)

// FloodLimitConfig holds the coarse per-client request ceiling
type FloodLimitConfig struct {
	RequestsPerMinute int
}

// DefaultFloodLimit returns the ceiling applied to authentication endpoints
func DefaultFloodLimit() FloodLimitConfig {
	return FloodLimitConfig{
		RequestsPerMinute: 60,
	}
}

// FloodLimit caps requests per client address in process memory. It sits in
// front of the counting policies and keys on the address resolved by Client.
func FloodLimit(config FloodLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return ClientIP(r), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "too many requests")
		}),
	)
}
