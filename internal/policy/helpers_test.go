package policy_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BradenHooton/rampart/internal/clock"
	"github.com/BradenHooton/rampart/internal/lockout"
	"github.com/BradenHooton/rampart/internal/models"
	"github.com/BradenHooton/rampart/internal/policy"
	"github.com/BradenHooton/rampart/internal/store"
)

// epoch is aligned to a 900s window boundary
var epoch = time.Unix((1_700_000_100/900)*900, 0)

var errStoreDown = errors.New("store down")

type recorded struct {
	Type   string
	Fields map[string]any
}

// recordingSink keeps every emitted event
type recordingSink struct {
	mu     sync.Mutex
	events []recorded
}

func (s *recordingSink) EmitEvent(_ context.Context, eventType string, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, recorded{Type: eventType, Fields: fields})
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

func (s *recordingSink) count(eventType string) int {
	n := 0
	for _, t := range s.types() {
		if t == eventType {
			n++
		}
	}
	return n
}

func (s *recordingSink) last(eventType string) (recorded, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Type == eventType {
			return s.events[i], true
		}
	}
	return recorded{}, false
}

// flakyStore wraps a MemoryStore and fails selected operations
type flakyStore struct {
	*store.MemoryStore
	failIncrement bool
	failIsLocked  bool
	failLock      bool
	// afterLockCheck runs once the lock check has completed
	afterLockCheck func()
}

func (f *flakyStore) Increment(ctx context.Context, subject, policyKey string, window time.Duration, delta int) (int, error) {
	if f.failIncrement {
		return 0, errStoreDown
	}
	return f.MemoryStore.Increment(ctx, subject, policyKey, window, delta)
}

func (f *flakyStore) IsLocked(ctx context.Context, subject, policyKey string) (bool, error) {
	if f.failIsLocked {
		return false, errStoreDown
	}
	locked, err := f.MemoryStore.IsLocked(ctx, subject, policyKey)
	if f.afterLockCheck != nil {
		f.afterLockCheck()
	}
	return locked, err
}

func (f *flakyStore) Lock(ctx context.Context, subject, policyKey string, ttl time.Duration) error {
	if f.failLock {
		return errStoreDown
	}
	return f.MemoryStore.Lock(ctx, subject, policyKey, ttl)
}

type fixture struct {
	clock *clock.Fake
	store *flakyStore
	sink  *recordingSink
	deps  policy.Deps
}

func newFixture() *fixture {
	clk := clock.NewFake(epoch)
	s := &flakyStore{MemoryStore: store.NewMemoryStore(clk)}
	sink := &recordingSink{}
	return &fixture{
		clock: clk,
		store: s,
		sink:  sink,
		deps: policy.Deps{
			Counters: s,
			Locks:    lockout.NewManager(s, 0),
			Sink:     sink,
			Clock:    clk,
		},
	}
}

// observer counts decisions per policy
type observer struct {
	mu    sync.Mutex
	calls map[string][]models.Decision
}

func (o *observer) ObserveDecision(name string, d models.Decision) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.calls == nil {
		o.calls = make(map[string][]models.Decision)
	}
	o.calls[name] = append(o.calls[name], d)
}
