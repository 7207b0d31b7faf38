package memory

import (
	"context"
	"sync"
	"time"
)

const pruneThreshold = 1024

// IdempotencyStore is the in-process fallback used when Redis is not
// configured. Keys expire after ttl.
type IdempotencyStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	keys map[string]time.Time
	now  func() time.Time
}

func NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{ttl: ttl, keys: make(map[string]time.Time), now: time.Now}
}

func (s *IdempotencyStore) SetIdempotency(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if exp, ok := s.keys[key]; ok && now.Before(exp) {
		return false, nil
	}
	if len(s.keys) >= pruneThreshold {
		for k, exp := range s.keys {
			if !now.Before(exp) {
				delete(s.keys, k)
			}
		}
	}
	s.keys[key] = now.Add(s.ttl)
	return true, nil
}

func (s *IdempotencyStore) ClearIdempotency(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}
