package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	pkghttp "github.com/BradenHooton/rampart/pkg/http"
)

func TestFloodLimit_KeysOnResolvedClient(t *testing.T) {
	limited := FloodLimit(FloodLimitConfig{RequestsPerMinute: 2})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	h := Client(pkghttp.NewIPConfig([]string{"10.0.0.1"}), nil)(limited)

	send := func(forwarded string) int {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("203.0.113.9"))
	assert.Equal(t, http.StatusOK, send("203.0.113.9"))
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.9"))

	// same proxy, different client
	assert.Equal(t, http.StatusOK, send("198.51.100.7"))
}

func TestDefaultFloodLimit(t *testing.T) {
	assert.Equal(t, 60, DefaultFloodLimit().RequestsPerMinute)
}
