// Package store holds the fixed-window counters and lock records shared by
// every policy. Keys are namespaced by policy so one store serves them all.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// DefaultTimeout bounds a single store operation
const DefaultTimeout = 250 * time.Millisecond

// CounterStore is a fixed-window counter keyed by (subject, policyKey, bucket)
type CounterStore interface {
	// Increment adds delta to the current bucket and refreshes its expiry to window.
	// It returns the count after the increment.
	Increment(ctx context.Context, subject, policyKey string, window time.Duration, delta int) (int, error)
	// Count returns the current bucket's value, 0 when absent
	Count(ctx context.Context, subject, policyKey string, window time.Duration) (int, error)
	// Reset deletes the current bucket
	Reset(ctx context.Context, subject, policyKey string, window time.Duration) error
}

// LockStore holds lock records keyed by (subject, policyKey)
type LockStore interface {
	Lock(ctx context.Context, subject, policyKey string, ttl time.Duration) error
	IsLocked(ctx context.Context, subject, policyKey string) (bool, error)
	Unlock(ctx context.Context, subject, policyKey string) error
}

// Store is a backend providing both counters and locks
type Store interface {
	CounterStore
	LockStore
	Ping(ctx context.Context) error
	Close() error
}

// BucketIndex returns floor(now / window) in whole seconds
func BucketIndex(now time.Time, window time.Duration) int64 {
	return now.Unix() / windowSeconds(window)
}

func windowSeconds(window time.Duration) int64 {
	secs := int64(window / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// HashSubject returns a fixed-length key fragment for subject.
// Subjects may be client supplied so they never appear raw in keys.
func HashSubject(subject string) string {
	sum := sha256.Sum256([]byte(subject))
	return hex.EncodeToString(sum[:16])
}

// CounterKey builds the key of the live bucket
func CounterKey(prefix, subject, policyKey string, bucket int64) string {
	return fmt.Sprintf("%s:cnt:%s:%s:%d", prefix, policyKey, HashSubject(subject), bucket)
}

// LockKey builds the key of a lock record
func LockKey(prefix, subject, policyKey string) string {
	return fmt.Sprintf("%s:lock:%s:%s", prefix, policyKey, HashSubject(subject))
}

// WithTimeout bounds ctx by the store timeout, or DefaultTimeout when d is zero
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultTimeout
	}
	return context.WithTimeout(ctx, d)
}
