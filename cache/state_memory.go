package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"go.aldar.dev/ariagate/domain"
	"go.aldar.dev/ariagate/errors"
)

// MemoryStateStore keeps pending login states in process memory with a
// bounded TTL. Suitable for single-instance deployments and tests; any
// multi-instance deployment needs the Redis-backed store so the callback
// can land on a different instance than the redirect.
type MemoryStateStore struct {
	mu      sync.Mutex
	entries *ttlcache.Cache[string, domain.LoginState]
}

func NewMemoryStateStore(ttl time.Duration) *MemoryStateStore {
	entries := ttlcache.New(
		ttlcache.WithTTL[string, domain.LoginState](ttl),
		ttlcache.WithDisableTouchOnHit[string, domain.LoginState](),
	)
	go entries.Start()
	return &MemoryStateStore{entries: entries}
}

func (s *MemoryStateStore) Close() {
	s.entries.Stop()
}

func (s *MemoryStateStore) Put(_ context.Context, state string, ls domain.LoginState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries.Set(state, ls, ttlcache.DefaultTTL)
	return nil
}

// Consume returns and deletes the state under one lock so a replayed
// callback with the same state value fails.
func (s *MemoryStateStore) Consume(_ context.Context, state string) (*domain.LoginState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.entries.Get(state)
	if item == nil {
		return nil, errors.NewInvalidState()
	}
	s.entries.Delete(state)
	ls := item.Value()
	return &ls, nil
}
