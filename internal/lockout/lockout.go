// Package lockout tracks whether a subject is locked out of a policy.
//
// A subject moves Clear -> Locked when a policy's threshold is exceeded and
// back to Clear when the lock expires or is removed by an operator.
package lockout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/rampart/internal/store"
)

// State of a (subject, policyKey) pair
type State int

const (
	Clear State = iota
	Locked
)

func (s State) String() string {
	if s == Locked {
		return "locked"
	}
	return "clear"
}

var ErrInvalidDuration = errors.New("lock duration must be positive")

// Manager applies lock transitions through a LockStore
type Manager struct {
	locks   store.LockStore
	timeout time.Duration
}

// NewManager creates a Manager. timeout bounds each store call; zero uses store.DefaultTimeout.
func NewManager(locks store.LockStore, timeout time.Duration) *Manager {
	return &Manager{locks: locks, timeout: timeout}
}

// IsLocked reports whether subject is currently locked for policyKey
func (m *Manager) IsLocked(ctx context.Context, subject, policyKey string) (bool, error) {
	ctx, cancel := store.WithTimeout(ctx, m.timeout)
	defer cancel()

	locked, err := m.locks.IsLocked(ctx, subject, policyKey)
	if err != nil {
		return false, fmt.Errorf("lock check: %w", err)
	}
	return locked, nil
}

// State returns the current state of the pair
func (m *Manager) State(ctx context.Context, subject, policyKey string) (State, error) {
	locked, err := m.IsLocked(ctx, subject, policyKey)
	if err != nil {
		return Clear, err
	}
	if locked {
		return Locked, nil
	}
	return Clear, nil
}

// Lock moves the pair to Locked for ttl. Locking an already locked pair
// restarts its expiry. The write is not abandoned if ctx is canceled.
func (m *Manager) Lock(ctx context.Context, subject, policyKey string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidDuration
	}
	ctx, cancel := store.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()

	if err := m.locks.Lock(ctx, subject, policyKey, ttl); err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	return nil
}

// Unlock moves the pair to Clear immediately
func (m *Manager) Unlock(ctx context.Context, subject, policyKey string) error {
	ctx, cancel := store.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.locks.Unlock(ctx, subject, policyKey); err != nil {
		return fmt.Errorf("unlock: %w", err)
	}
	return nil
}
