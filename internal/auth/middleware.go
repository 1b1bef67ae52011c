package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/BradenHooton/rampart/internal/models"
	pkghttp "github.com/BradenHooton/rampart/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// UserContextKey is the key for storing user claims in context
	UserContextKey contextKey = "user"
)

// RoleAdmin marks principals whose requests bypass request-defense policies
const RoleAdmin = "admin"

// bearerClaims validates the Authorization header as an access token
func bearerClaims(tm *TokenManager, r *http.Request) (*models.TokenClaims, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, false
	}
	claims, err := tm.ValidateToken(parts[1], models.TokenTypeAccess)
	if err != nil {
		return nil, false
	}
	return claims, true
}

// AuthMiddleware validates access tokens and injects user claims into context
func AuthMiddleware(tm *TokenManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				pkghttp.WriteUnauthorized(w, "missing authorization header")
				return
			}

			claims, ok := bearerClaims(tm, r)
			if !ok {
				pkghttp.WriteUnauthorized(w, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrivilegedFunc returns a check reporting whether a request carries a valid
// access token for an administrator
func PrivilegedFunc(tm *TokenManager) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		claims, ok := bearerClaims(tm, r)
		if !ok {
			return false
		}
		for _, role := range claims.Roles {
			if role == RoleAdmin {
				return true
			}
		}
		return false
	}
}

// GetUserFromContext extracts user claims from request context
func GetUserFromContext(r *http.Request) *models.TokenClaims {
	claims, ok := r.Context().Value(UserContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}
