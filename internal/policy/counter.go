package policy

import (
	"context"
	"time"

	"github.com/BradenHooton/rampart/internal/models"
	"github.com/BradenHooton/rampart/internal/store"
)

// Limits is the counting configuration shared by counting policies
type Limits struct {
	Threshold    int
	Window       time.Duration
	LockDuration time.Duration
}

// counter is the lock-check, increment, threshold pipeline used by every
// counting policy. key namespaces the policy's counters and locks.
type counter struct {
	key    string
	limits Limits
	deps   Deps
}

func newCounter(key string, limits Limits, deps Deps) *counter {
	return &counter{key: key, limits: limits, deps: deps.withDefaults()}
}

func (c *counter) emit(ctx context.Context, eventType string, fields map[string]any) {
	c.deps.Sink.EmitEvent(ctx, eventType, fields)
}

// checkLock rejects locked subjects before anything is counted. A lock store
// error rejects with retry-later rather than letting the subject through.
func (c *counter) checkLock(ctx context.Context, subject string, fields map[string]any, onLocked models.Decision) (models.Decision, bool) {
	locked, err := c.deps.Locks.IsLocked(ctx, subject, c.key)
	if err != nil {
		c.emit(ctx, models.EventStoreError, with(fields, "policy", c.key, "op", "is_locked", "error", err))
		return models.RetryLater(), false
	}
	if locked {
		c.emit(ctx, models.EventBlockedRequest, with(fields, "policy", c.key, "reason", models.ReasonLocked))
		return onLocked, false
	}
	return models.Decision{}, true
}

// increment adds delta to the subject's counter. The increment commits even
// if ctx is canceled.
func (c *counter) increment(ctx context.Context, subject string, delta int) (int, error) {
	ctx, cancel := store.WithTimeout(context.WithoutCancel(ctx), c.deps.Timeout)
	defer cancel()
	return c.deps.Counters.Increment(ctx, subject, c.key, c.limits.Window, delta)
}

// add is increment for policies whose only event on a store failure is
// store_error. ok is false when the store failed; callers fail open.
func (c *counter) add(ctx context.Context, subject string, delta int, fields map[string]any) (int, bool) {
	count, err := c.increment(ctx, subject, delta)
	if err != nil {
		c.emit(ctx, models.EventStoreError, with(fields, "policy", c.key, "op", "increment", "error", err))
		return 0, false
	}
	return count, true
}

// enforce locks subject once count is past the threshold and emits
// eventType as the decision's only event. A failed lock write is reported
// in that event's lock_error field. It reports whether the request must be
// denied.
func (c *counter) enforce(ctx context.Context, subject string, count int, eventType string, fields map[string]any) bool {
	if count <= c.limits.Threshold {
		return false
	}

	out := with(fields,
		"policy", c.key,
		"count", count,
		"threshold", c.limits.Threshold,
		"lock_seconds", int64(c.limits.LockDuration/time.Second),
	)
	if err := c.deps.Locks.Lock(ctx, subject, c.key, c.limits.LockDuration); err != nil {
		out["lock_error"] = err.Error()
	}
	c.emit(ctx, eventType, out)
	return true
}

// reset clears the subject's counter for the current window
func (c *counter) reset(ctx context.Context, subject string) error {
	ctx, cancel := store.WithTimeout(context.WithoutCancel(ctx), c.deps.Timeout)
	defer cancel()
	return c.deps.Counters.Reset(ctx, subject, c.key, c.limits.Window)
}

// with returns a copy of base extended with key/value pairs
func with(base map[string]any, kv ...any) map[string]any {
	out := make(map[string]any, len(base)+len(kv)/2)
	for k, v := range base {
		out[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			out[k] = kv[i+1]
		}
	}
	return out
}

// crossed reports whether moving from count-delta to count passed a multiple of every
func crossed(count, delta, every int) bool {
	if every <= 1 {
		return true
	}
	return (count-delta)/every != count/every
}

func denied(d models.Decision, count int) models.Decision {
	d.Count = count
	return d
}
