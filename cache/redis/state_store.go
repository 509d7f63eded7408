// Package redis provides the Redis-backed login state store, letting the
// OAuth callback land on a different instance than the one that issued
// the redirect.
package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"go.aldar.dev/ariagate/domain"
	"go.aldar.dev/ariagate/errors"
)

const stateKeyPrefix = "ariagate:login_state:"

// StateStore persists pending login states in Redis with a server-side
// TTL. Consume uses GETDEL so each state value can be redeemed exactly
// once across all instances.
type StateStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStateStore(client *redis.Client, ttl time.Duration) *StateStore {
	return &StateStore{client: client, ttl: ttl}
}

func (s *StateStore) Put(ctx context.Context, state string, ls domain.LoginState) error {
	data, err := json.Marshal(ls)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, stateKeyPrefix+state, data, s.ttl).Err()
}

func (s *StateStore) Consume(ctx context.Context, state string) (*domain.LoginState, error) {
	data, err := s.client.GetDel(ctx, stateKeyPrefix+state).Bytes()
	if err == redis.Nil {
		return nil, errors.NewInvalidState()
	}
	if err != nil {
		return nil, err
	}

	var ls domain.LoginState
	if err := json.Unmarshal(data, &ls); err != nil {
		return nil, err
	}
	return &ls, nil
}
