package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/rampart/internal/models"
)

func TestRecorder_Decisions(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.ObserveDecision("bruteforce", models.Allow(1))
	r.ObserveDecision("bruteforce", models.Allow(2))
	r.ObserveDecision("bruteforce", models.Deny(http.StatusForbidden, models.ReasonLocked))
	r.ObserveDecision("rate", models.RateLimit(41))

	assert.Equal(t, 2.0, testutil.ToFloat64(r.decisions.WithLabelValues("bruteforce", "allow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.decisions.WithLabelValues("bruteforce", "deny")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.decisions.WithLabelValues("rate", "rate_limited")))
}

func TestRecorder_Events(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)
	ctx := context.Background()

	r.EmitEvent(ctx, models.EventStoreError, map[string]any{"op": "increment"})
	r.EmitEvent(ctx, models.EventLockout, map[string]any{"policy": "notfound"})
	r.EmitEvent(ctx, models.EventLockout, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.events.WithLabelValues(models.EventStoreError)))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.events.WithLabelValues(models.EventLockout)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.lockouts.WithLabelValues("notfound")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.lockouts.WithLabelValues("")))
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)
	r.ObserveDecision("waf", models.Deny(http.StatusForbidden, models.ReasonBlocked))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `rampart_decisions_total{action="deny",policy="waf"} 1`)
}
