// Package cache holds the delivery idempotency stores used by the webhook
// consumer: Redis when configured, a process-local map otherwise.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/unihub/backend/internal/domain/shared"
)

// sweepEvery is how many marks pass between sweeps of expired keys.
const sweepEvery = 1024

// MemoryStore dedupes deliveries within one hub process. Expired keys are
// swept lazily from MarkProcessed, so no goroutine is involved.
type MemoryStore struct {
	mu      sync.Mutex
	expires map[string]time.Time
	marks   int
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{expires: make(map[string]time.Time), now: time.Now}
}

func (s *MemoryStore) MarkProcessed(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.marks++
	if s.marks%sweepEvery == 0 {
		s.sweep(now)
	}

	if exp, ok := s.expires[key]; ok && now.Before(exp) {
		return false, nil
	}
	s.expires[key] = now.Add(ttl)
	return true, nil
}

func (s *MemoryStore) Forget(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.expires, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// Len counts keys, expired or not, that have not been swept yet.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expires)
}

func (s *MemoryStore) sweep(now time.Time) {
	for key, exp := range s.expires {
		if !now.Before(exp) {
			delete(s.expires, key)
		}
	}
}

var _ shared.IdempotencyStore = (*MemoryStore)(nil)
