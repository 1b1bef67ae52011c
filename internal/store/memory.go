package store

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/BradenHooton/rampart/internal/clock"
)

const (
	memoryPrefix = "rampart"
	shardCount   = 64
)

type memoryEntry struct {
	count     int
	expiresAt time.Time
}

// MemoryStore keeps counters and locks in process.
// Expiry is judged against the injected clock; the cache TTL only reclaims memory.
type MemoryStore struct {
	cache  *gocache.Cache
	clock  clock.Clock
	shards [shardCount]sync.Mutex
}

// NewMemoryStore creates an in-process store
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.System{}
	}
	return &MemoryStore{
		cache: gocache.New(gocache.NoExpiration, 5*time.Minute),
		clock: clk,
	}
}

func (s *MemoryStore) shard(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.shards[h.Sum32()%shardCount]
}

func (s *MemoryStore) live(key string, now time.Time) (memoryEntry, bool) {
	v, ok := s.cache.Get(key)
	if !ok {
		return memoryEntry{}, false
	}
	e := v.(memoryEntry)
	if !now.Before(e.expiresAt) {
		s.cache.Delete(key)
		return memoryEntry{}, false
	}
	return e, true
}

func (s *MemoryStore) Increment(ctx context.Context, subject, policyKey string, window time.Duration, delta int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	now := s.clock.Now()
	key := CounterKey(memoryPrefix, subject, policyKey, BucketIndex(now, window))

	mu := s.shard(key)
	mu.Lock()
	defer mu.Unlock()

	e, _ := s.live(key, now)
	e.count += delta
	e.expiresAt = now.Add(window)
	s.cache.Set(key, e, window+time.Minute)
	return e.count, nil
}

func (s *MemoryStore) Count(ctx context.Context, subject, policyKey string, window time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	now := s.clock.Now()
	key := CounterKey(memoryPrefix, subject, policyKey, BucketIndex(now, window))

	mu := s.shard(key)
	mu.Lock()
	defer mu.Unlock()

	e, _ := s.live(key, now)
	return e.count, nil
}

func (s *MemoryStore) Reset(ctx context.Context, subject, policyKey string, window time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := CounterKey(memoryPrefix, subject, policyKey, BucketIndex(s.clock.Now(), window))

	mu := s.shard(key)
	mu.Lock()
	s.cache.Delete(key)
	mu.Unlock()
	return nil
}

func (s *MemoryStore) Lock(ctx context.Context, subject, policyKey string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := s.clock.Now()
	key := LockKey(memoryPrefix, subject, policyKey)

	mu := s.shard(key)
	mu.Lock()
	s.cache.Set(key, memoryEntry{expiresAt: now.Add(ttl)}, ttl+time.Minute)
	mu.Unlock()
	return nil
}

func (s *MemoryStore) IsLocked(ctx context.Context, subject, policyKey string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	key := LockKey(memoryPrefix, subject, policyKey)

	mu := s.shard(key)
	mu.Lock()
	defer mu.Unlock()

	_, ok := s.live(key, s.clock.Now())
	return ok, nil
}

func (s *MemoryStore) Unlock(ctx context.Context, subject, policyKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := LockKey(memoryPrefix, subject, policyKey)

	mu := s.shard(key)
	mu.Lock()
	s.cache.Delete(key)
	mu.Unlock()
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close drops all entries
func (s *MemoryStore) Close() error {
	s.cache.Flush()
	return nil
}
