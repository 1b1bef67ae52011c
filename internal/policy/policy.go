// Package policy turns matcher, counter, lockout and inspector primitives into
// named request-defense policies and evaluates them for the host.
package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/rampart/internal/clock"
	"github.com/BradenHooton/rampart/internal/lockout"
	"github.com/BradenHooton/rampart/internal/models"
	"github.com/BradenHooton/rampart/internal/store"
)

// Policy names
const (
	NameBruteForce = "bruteforce"
	NameNotFound   = "notfound"
	NameRate       = "rate"
	NameWAF        = "waf"
	NameAntispam   = "antispam"
)

// EventSink receives audit events. It is the core's only integration point
// with logging and persistence.
type EventSink interface {
	EmitEvent(ctx context.Context, eventType string, fields map[string]any)
}

// SinkFunc adapts a function to EventSink
type SinkFunc func(ctx context.Context, eventType string, fields map[string]any)

func (f SinkFunc) EmitEvent(ctx context.Context, eventType string, fields map[string]any) {
	f(ctx, eventType, fields)
}

// MultiSink fans an event out to every sink in order
type MultiSink []EventSink

func (m MultiSink) EmitEvent(ctx context.Context, eventType string, fields map[string]any) {
	for _, s := range m {
		if s != nil {
			s.EmitEvent(ctx, eventType, fields)
		}
	}
}

// NopSink drops every event
type NopSink struct{}

func (NopSink) EmitEvent(context.Context, string, map[string]any) {}

// Policy evaluates one request
type Policy interface {
	Name() string
	Evaluate(ctx context.Context, rc models.RequestContext) models.Decision
}

// SuccessRecorder is implemented by policies that reset state after a
// successful action
type SuccessRecorder interface {
	RecordSuccess(ctx context.Context, subject string) error
}

// DecisionObserver is notified of every decision the Engine returns
type DecisionObserver interface {
	ObserveDecision(policy string, d models.Decision)
}

// Deps are the shared collaborators handed to every policy
type Deps struct {
	Counters store.CounterStore
	Locks    *lockout.Manager
	Sink     EventSink
	Clock    clock.Clock
	// Timeout bounds each store call; zero uses store.DefaultTimeout
	Timeout time.Duration
}

func (d Deps) withDefaults() Deps {
	if d.Sink == nil {
		d.Sink = NopSink{}
	}
	if d.Clock == nil {
		d.Clock = clock.System{}
	}
	return d
}

// Registry holds the configured policies. It is filled once at startup and
// read concurrently afterwards.
type Registry struct {
	policies map[string]Policy
	order    []string
}

// NewRegistry creates a registry holding policies
func NewRegistry(policies ...Policy) (*Registry, error) {
	r := &Registry{policies: make(map[string]Policy)}
	for _, p := range policies {
		if err := r.register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) register(p Policy) error {
	name := p.Name()
	if _, dup := r.policies[name]; dup {
		return fmt.Errorf("policy %q: %w", name, models.ErrConflict)
	}
	r.policies[name] = p
	r.order = append(r.order, name)
	return nil
}

// Get returns the named policy
func (r *Registry) Get(name string) (Policy, bool) {
	if r == nil {
		return nil, false
	}
	p, ok := r.policies[name]
	return p, ok
}

// Names returns policy names in registration order
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.order...)
}

// Engine is the host-facing entry point
type Engine struct {
	registry *Registry
	observer DecisionObserver
}

// NewEngine creates an Engine. observer may be nil.
func NewEngine(registry *Registry, observer DecisionObserver) *Engine {
	return &Engine{registry: registry, observer: observer}
}

// Enabled reports whether the named policy is registered
func (e *Engine) Enabled(name string) bool {
	_, ok := e.registry.Get(name)
	return ok
}

// Evaluate runs the named policy. Policies that are not registered allow
// every request.
func (e *Engine) Evaluate(ctx context.Context, name string, rc models.RequestContext) models.Decision {
	p, ok := e.registry.Get(name)
	if !ok {
		return models.Allow(0)
	}

	d := p.Evaluate(ctx, rc)
	if e.observer != nil {
		e.observer.ObserveDecision(name, d)
	}
	return d
}

// RecordSuccess notifies the named policy of a successful action for subject
func (e *Engine) RecordSuccess(ctx context.Context, name, subject string) error {
	p, ok := e.registry.Get(name)
	if !ok {
		return nil
	}
	if sr, ok := p.(SuccessRecorder); ok {
		return sr.RecordSuccess(ctx, subject)
	}
	return nil
}
