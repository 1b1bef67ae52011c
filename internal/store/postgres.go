package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BradenHooton/rampart/internal/clock"
)

// PostgresStore keeps counters and locks in the rate_counters and lockouts tables.
// Expired rows are ignored on read and removed by DeleteExpired.
type PostgresStore struct {
	pool  *pgxpool.Pool
	clock clock.Clock
}

// NewPostgresStore creates a store over an existing pool
func NewPostgresStore(pool *pgxpool.Pool, clk clock.Clock) *PostgresStore {
	if clk == nil {
		clk = clock.System{}
	}
	return &PostgresStore{pool: pool, clock: clk}
}

func (s *PostgresStore) Increment(ctx context.Context, subject, policyKey string, window time.Duration, delta int) (int, error) {
	now := s.clock.Now()
	key := CounterKey(memoryPrefix, subject, policyKey, BucketIndex(now, window))

	query := `
		INSERT INTO rate_counters (key, count, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			count = CASE
				WHEN rate_counters.expires_at <= $4 THEN EXCLUDED.count
				ELSE rate_counters.count + EXCLUDED.count
			END,
			expires_at = EXCLUDED.expires_at
		RETURNING count
	`

	var count int
	if err := s.pool.QueryRow(ctx, query, key, delta, now.Add(window), now).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres increment: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) Count(ctx context.Context, subject, policyKey string, window time.Duration) (int, error) {
	now := s.clock.Now()
	key := CounterKey(memoryPrefix, subject, policyKey, BucketIndex(now, window))

	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count FROM rate_counters WHERE key = $1 AND expires_at > $2`,
		key, now,
	).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres count: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) Reset(ctx context.Context, subject, policyKey string, window time.Duration) error {
	key := CounterKey(memoryPrefix, subject, policyKey, BucketIndex(s.clock.Now(), window))
	if _, err := s.pool.Exec(ctx, `DELETE FROM rate_counters WHERE key = $1`, key); err != nil {
		return fmt.Errorf("postgres reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) Lock(ctx context.Context, subject, policyKey string, ttl time.Duration) error {
	query := `
		INSERT INTO lockouts (key, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET expires_at = EXCLUDED.expires_at
	`
	if _, err := s.pool.Exec(ctx, query, LockKey(memoryPrefix, subject, policyKey), s.clock.Now().Add(ttl)); err != nil {
		return fmt.Errorf("postgres lock: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsLocked(ctx context.Context, subject, policyKey string) (bool, error) {
	var locked bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM lockouts WHERE key = $1 AND expires_at > $2)`,
		LockKey(memoryPrefix, subject, policyKey), s.clock.Now(),
	).Scan(&locked)
	if err != nil {
		return false, fmt.Errorf("postgres is locked: %w", err)
	}
	return locked, nil
}

func (s *PostgresStore) Unlock(ctx context.Context, subject, policyKey string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM lockouts WHERE key = $1`, LockKey(memoryPrefix, subject, policyKey)); err != nil {
		return fmt.Errorf("postgres unlock: %w", err)
	}
	return nil
}

// DeleteExpired removes counter and lock rows past their expiry
func (s *PostgresStore) DeleteExpired(ctx context.Context) (int64, error) {
	now := s.clock.Now()

	counters, err := s.pool.Exec(ctx, `DELETE FROM rate_counters WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("postgres sweep counters: %w", err)
	}
	locks, err := s.pool.Exec(ctx, `DELETE FROM lockouts WHERE expires_at <= $1`, now)
	if err != nil {
		return counters.RowsAffected(), fmt.Errorf("postgres sweep locks: %w", err)
	}
	return counters.RowsAffected() + locks.RowsAffected(), nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close is a no-op; the pool is owned by the database package
func (s *PostgresStore) Close() error {
	return nil
}
