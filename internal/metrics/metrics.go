package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BradenHooton/rampart/internal/models"
)

// Recorder exposes Prometheus metrics for policy decisions and audit events.
// It is both a policy.DecisionObserver and a policy.EventSink.
type Recorder struct {
	decisions *prometheus.CounterVec
	events    *prometheus.CounterVec
	lockouts  *prometheus.CounterVec
}

// NewRecorder registers metrics with the provided registry
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rampart_decisions_total",
			Help: "Policy decisions grouped by policy and action",
		}, []string{"policy", "action"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rampart_events_total",
			Help: "Audit events grouped by type",
		}, []string{"type"}),
		lockouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rampart_lockouts_total",
			Help: "Lockouts grouped by policy",
		}, []string{"policy"}),
	}

	reg.MustRegister(r.decisions, r.events, r.lockouts)
	return r
}

// Handler returns the scrape endpoint for reg
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// ObserveDecision counts one decision
func (r *Recorder) ObserveDecision(policy string, d models.Decision) {
	r.decisions.WithLabelValues(policy, string(d.Action)).Inc()
}

// EmitEvent counts one audit event
func (r *Recorder) EmitEvent(_ context.Context, eventType string, fields map[string]any) {
	r.events.WithLabelValues(eventType).Inc()
	if eventType == models.EventLockout {
		policy, _ := fields["policy"].(string)
		r.lockouts.WithLabelValues(policy).Inc()
	}
}
