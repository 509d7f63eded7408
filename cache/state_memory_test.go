package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.aldar.dev/ariagate/domain"
	"go.aldar.dev/ariagate/errors"
)

func TestMemoryStateStoreConsumeIsSingleUse(t *testing.T) {
	s := NewMemoryStateStore(10 * time.Minute)
	defer s.Close()

	ls := domain.LoginState{RedirectURI: "https://app.example.com/done", CreatedAt: time.Now().Unix()}
	require.NoError(t, s.Put(context.Background(), "state-1", ls))

	got, err := s.Consume(context.Background(), "state-1")
	require.NoError(t, err)
	assert.Equal(t, ls.RedirectURI, got.RedirectURI)

	_, err = s.Consume(context.Background(), "state-1")
	require.Error(t, err, "a state value must not be redeemable twice")
	assert.True(t, errors.IsKind(err, errors.KindInvalidState))
}

func TestMemoryStateStoreUnknownState(t *testing.T) {
	s := NewMemoryStateStore(10 * time.Minute)
	defer s.Close()

	_, err := s.Consume(context.Background(), "never-stored")
	require.Error(t, err)
	// The taxonomy matters here: no token grant happened, so this must
	// not surface as a token exchange failure.
	assert.True(t, errors.IsKind(err, errors.KindInvalidState))
}

func TestMemoryStateStoreExpiry(t *testing.T) {
	s := NewMemoryStateStore(20 * time.Millisecond)
	defer s.Close()

	require.NoError(t, s.Put(context.Background(), "state-1", domain.LoginState{}))
	assert.Eventually(t, func() bool {
		_, err := s.Consume(context.Background(), "state-1")
		return err != nil
	}, time.Second, 10*time.Millisecond)
}
