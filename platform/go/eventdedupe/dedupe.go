// Package eventdedupe remembers processed billing event ids so redelivered events are skipped.
package eventdedupe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long an event id is remembered.
const DefaultTTL = 72 * time.Hour

const defaultKeyPrefix = "hubmetrix:event:processed:"

// Store records event ids. MarkProcessed reports true the first time an id is seen.
// Release forgets an id so a failed event can be redelivered.
type Store interface {
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// RedisStore uses SET NX so concurrent deliveries of one event agree on a single winner.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client redis.UniversalClient, keyPrefix string) *RedisStore {
	if client == nil {
		panic("redis client is required")
	}
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStore) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ok, err := s.client.SetNX(ctx, s.keyPrefix+eventID, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark event %s processed: %w", eventID, err)
	}
	return ok, nil
}

func (s *RedisStore) Release(ctx context.Context, eventID string) error {
	if err := s.client.Del(ctx, s.keyPrefix+eventID).Err(); err != nil {
		return fmt.Errorf("release event %s: %w", eventID, err)
	}
	return nil
}

// MemoryStore is the in-process variant.
type MemoryStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[string]time.Time), now: time.Now}
}

func (s *MemoryStore) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if expires, ok := s.seen[eventID]; ok && now.Before(expires) {
		return false, nil
	}
	s.seen[eventID] = now.Add(ttl)
	return true, nil
}

func (s *MemoryStore) Release(ctx context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.seen, eventID)
	return nil
}

var (
	_ Store = (*RedisStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
