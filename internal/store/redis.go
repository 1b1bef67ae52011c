package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BradenHooton/rampart/internal/clock"
)

// RedisStore keeps counters and locks in Redis so several processes share them.
// Expiry is enforced by Redis key TTLs.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	clock  clock.Clock
}

// RedisOptions configures NewRedisStore
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, opts RedisOptions, clk clock.Clock) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	s := NewRedisStoreFromClient(client, opts.KeyPrefix, clk)
	if err := s.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(client redis.UniversalClient, prefix string, clk clock.Clock) *RedisStore {
	if prefix == "" {
		prefix = memoryPrefix
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &RedisStore{client: client, prefix: prefix, clock: clk}
}

func (s *RedisStore) Increment(ctx context.Context, subject, policyKey string, window time.Duration, delta int) (int, error) {
	key := CounterKey(s.prefix, subject, policyKey, BucketIndex(s.clock.Now(), window))

	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.IncrBy(ctx, key, int64(delta))
		pipe.Expire(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis increment: %w", err)
	}
	return int(incr.Val()), nil
}

func (s *RedisStore) Count(ctx context.Context, subject, policyKey string, window time.Duration) (int, error) {
	key := CounterKey(s.prefix, subject, policyKey, BucketIndex(s.clock.Now(), window))

	n, err := s.client.Get(ctx, key).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get: %w", err)
	}
	return n, nil
}

func (s *RedisStore) Reset(ctx context.Context, subject, policyKey string, window time.Duration) error {
	key := CounterKey(s.prefix, subject, policyKey, BucketIndex(s.clock.Now(), window))
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) Lock(ctx context.Context, subject, policyKey string, ttl time.Duration) error {
	if err := s.client.Set(ctx, LockKey(s.prefix, subject, policyKey), 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis lock: %w", err)
	}
	return nil
}

func (s *RedisStore) IsLocked(ctx context.Context, subject, policyKey string) (bool, error) {
	n, err := s.client.Exists(ctx, LockKey(s.prefix, subject, policyKey)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Unlock(ctx context.Context, subject, policyKey string) error {
	if err := s.client.Del(ctx, LockKey(s.prefix, subject, policyKey)).Err(); err != nil {
		return fmt.Errorf("redis unlock: %w", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
