package middleware

import (
	"context"
	"net/http"

	pkghttp "github.com/BradenHooton/rampart/pkg/http"
)

type clientKey struct{}

type clientInfo struct {
	ip         string
	privileged bool
}

// Client resolves the client address once per request and records whether
// the caller is privileged. privileged may be nil.
func Client(ipConfig *pkghttp.IPConfig, privileged func(r *http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := clientInfo{ip: pkghttp.ExtractClientIP(r, ipConfig)}
			if privileged != nil {
				info.privileged = privileged(r)
			}
			ctx := context.WithValue(r.Context(), clientKey{}, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIP returns the address resolved by Client, or the peer address when
// Client did not run
func ClientIP(r *http.Request) string {
	if info, ok := r.Context().Value(clientKey{}).(clientInfo); ok {
		return info.ip
	}
	return pkghttp.ExtractClientIP(r, nil)
}

// IsPrivileged reports whether Client marked the request as privileged
func IsPrivileged(r *http.Request) bool {
	info, ok := r.Context().Value(clientKey{}).(clientInfo)
	return ok && info.privileged
}
