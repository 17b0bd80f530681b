// Package dedupe remembers which lifecycle events were already applied so
// redeliveries can be acknowledged without touching the user store.
//
// Markers are an optimization. The store's external-id uniqueness remains the
// authority on idempotence, so a lost or expired marker is harmless.
package dedupe

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a marker is kept.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "userprofile:processed-event:"

// RedisStore keeps markers in Redis with a TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis constructs a Redis-backed marker store.
func NewRedis(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Seen reports whether eventID was marked.
func (s *RedisStore) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, keyPrefix+eventID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Mark records eventID as applied.
func (s *RedisStore) Mark(ctx context.Context, eventID string) error {
	return s.client.Set(ctx, keyPrefix+eventID, "1", s.ttl).Err()
}

// maxPruneInterval caps how often Mark sweeps the marker map.
const maxPruneInterval = time.Minute

// MemoryStore keeps markers in process memory. Expired markers are pruned
// lazily on Mark, at most once per prune interval.
type MemoryStore struct {
	mu            sync.Mutex
	ttl           time.Duration
	pruneInterval time.Duration
	lastPrune     time.Time
	expires       map[string]time.Time
	now           func() time.Time
}

// NewMemory constructs an in-process marker store.
func NewMemory(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		ttl:           ttl,
		pruneInterval: min(ttl, maxPruneInterval),
		expires:       make(map[string]time.Time),
		now:           time.Now,
	}
}

func (s *MemoryStore) Seen(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.expires[eventID]
	return ok && s.now().Before(exp), nil
}

func (s *MemoryStore) Mark(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if now.Sub(s.lastPrune) >= s.pruneInterval {
		for id, exp := range s.expires {
			if !now.Before(exp) {
				delete(s.expires, id)
			}
		}
		s.lastPrune = now
	}
	s.expires[eventID] = now.Add(s.ttl)
	return nil
}
