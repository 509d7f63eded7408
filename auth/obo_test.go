package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.aldar.dev/ariagate/errors"
)

func TestOBOExchangeHappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "api://xyz/All", r.PostForm.Get("scope"))
		assert.Equal(t, "on_behalf_of", r.PostForm.Get("requested_token_use"))
		w.Write([]byte(`{"access_token":"T","expires_in":1800}`))
	}))
	defer srv.Close()

	provider := NewProviderClient(srv.URL, "abc", "secret", testLoginScopes, 5*time.Second)
	exchanger := NewOBOExchanger(provider, "abc", "xyz", "api://xyz/All")

	principal := makeToken(t, map[string]any{"aud": "abc", "ver": "2.0"})
	token, expiresIn, err := exchanger.Exchange(context.Background(), principal)
	require.NoError(t, err)
	assert.Equal(t, "T", token)
	assert.Equal(t, 1800, expiresIn)
}

func TestOBOExchangeAcceptsAPIPrefixedAudience(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"T","expires_in":1800}`))
	}))
	defer srv.Close()

	provider := NewProviderClient(srv.URL, "abc", "secret", testLoginScopes, 5*time.Second)
	exchanger := NewOBOExchanger(provider, "abc", "xyz", "api://xyz/All")

	principal := makeToken(t, map[string]any{"aud": "api://abc"})
	token, _, err := exchanger.Exchange(context.Background(), principal)
	require.NoError(t, err)
	assert.Equal(t, "T", token)
}

func TestOBOExchangeAudienceMismatchSkipsNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"access_token":"T"}`))
	}))
	defer srv.Close()

	provider := NewProviderClient(srv.URL, "abc", "secret", testLoginScopes, 5*time.Second)
	exchanger := NewOBOExchanger(provider, "abc", "xyz", "api://xyz/All")

	// Token issued for the downstream resource, not for us.
	principal := makeToken(t, map[string]any{"aud": "api://xyz"})
	_, _, err := exchanger.Exchange(context.Background(), principal)

	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindAudienceMismatch))
	assert.Zero(t, calls.Load(), "provider must not be contacted on audience mismatch")
}

func TestOBOExchangeMalformedTokenFailsClosed(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	provider := NewProviderClient(srv.URL, "abc", "secret", testLoginScopes, 5*time.Second)
	exchanger := NewOBOExchanger(provider, "abc", "xyz", "api://xyz/All")

	_, _, err := exchanger.Exchange(context.Background(), "not-a-jwt")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindAudienceMismatch))
	assert.Zero(t, calls.Load())
}

func TestOBOExchangeMissingTarget(t *testing.T) {
	provider := NewProviderClient("https://login.example.com", "abc", "secret", testLoginScopes, time.Second)
	exchanger := NewOBOExchanger(provider, "abc", "", "")

	_, _, err := exchanger.Exchange(context.Background(), makeToken(t, map[string]any{"aud": "abc"}))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfig))
}

func TestOBOExchangeProviderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"consent required"}`))
	}))
	defer srv.Close()

	provider := NewProviderClient(srv.URL, "abc", "secret", testLoginScopes, 5*time.Second)
	exchanger := NewOBOExchanger(provider, "abc", "xyz", "api://xyz/All")

	_, _, err := exchanger.Exchange(context.Background(), makeToken(t, map[string]any{"aud": "abc"}))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindOBOExchangeFailed))
}
