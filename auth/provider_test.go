package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.aldar.dev/ariagate/errors"
)

var testLoginScopes = []string{"openid", "profile", "offline_access", "abc/.default"}

func newTestProvider(t *testing.T, handler http.HandlerFunc) *ProviderClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewProviderClient(srv.URL, "abc", "secret", testLoginScopes, 5*time.Second)
}

func TestAuthorizationURL(t *testing.T) {
	p := NewProviderClient("https://login.example.com/tenant", "abc", "secret", testLoginScopes, time.Second)

	raw := p.AuthorizationURL("https://app.example.com/callback", "state-1")
	u, err := url.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "/tenant/oauth2/v2.0/authorize", u.Path)
	q := u.Query()
	assert.Equal(t, "abc", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "query", q.Get("response_mode"))
	assert.Equal(t, "https://app.example.com/callback", q.Get("redirect_uri"))
	assert.Equal(t, "openid profile offline_access abc/.default", q.Get("scope"))
	assert.Equal(t, "state-1", q.Get("state"))
}

func TestExchangeCode(t *testing.T) {
	var form url.Values
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"AT","refresh_token":"RT","id_token":"IT","expires_in":3600}`))
	})

	tr, err := p.ExchangeCode(context.Background(), "code-1", "https://app.example.com/callback", "")
	require.NoError(t, err)

	assert.Equal(t, "authorization_code", form.Get("grant_type"))
	assert.Equal(t, "code-1", form.Get("code"))
	assert.Equal(t, "abc", form.Get("client_id"))
	assert.Equal(t, "secret", form.Get("client_secret"))
	assert.Equal(t, "openid profile offline_access abc/.default", form.Get("scope"))
	assert.Empty(t, form.Get("code_verifier"))

	assert.Equal(t, "AT", tr.AccessToken)
	assert.Equal(t, "RT", tr.RefreshToken)
	assert.Equal(t, 3600, tr.ExpiresIn)
}

func TestExchangeCodeProviderRejection(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"AADSTS70008: expired"}`))
	})

	_, err := p.ExchangeCode(context.Background(), "stale", "https://app.example.com/callback", "")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindTokenExchangeFailed))
}

func TestRefreshUsesLoginScopes(t *testing.T) {
	var form url.Values
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Write([]byte(`{"access_token":"AT2","refresh_token":"RT2","expires_in":3600}`))
	})

	tr, err := p.Refresh(context.Background(), "RT1")
	require.NoError(t, err)

	assert.Equal(t, "refresh_token", form.Get("grant_type"))
	assert.Equal(t, "RT1", form.Get("refresh_token"))
	assert.Equal(t, "openid profile offline_access abc/.default", form.Get("scope"))
	assert.Equal(t, "AT2", tr.AccessToken)
	assert.Equal(t, "RT2", tr.RefreshToken)
}

func TestExchangeOnBehalfOfWireFormat(t *testing.T) {
	var form url.Values
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		w.Write([]byte(`{"access_token":"T","expires_in":3600}`))
	})

	tr, err := p.ExchangeOnBehalfOf(context.Background(), "principal-token", "api://xyz/All")
	require.NoError(t, err)

	assert.Equal(t, "urn:ietf:params:oauth:grant-type:jwt-bearer", form.Get("grant_type"))
	assert.Equal(t, "principal-token", form.Get("assertion"))
	assert.Equal(t, "on_behalf_of", form.Get("requested_token_use"))
	assert.Equal(t, "api://xyz/All", form.Get("scope"))
	assert.Equal(t, "abc", form.Get("client_id"))
	assert.Equal(t, "T", tr.AccessToken)
}

func TestExchangeOnBehalfOfPreservesProviderError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"AADSTS50013: assertion invalid","correlation_id":"corr-1"}`))
	})

	_, err := p.ExchangeOnBehalfOf(context.Background(), "bad", "api://xyz/All")
	require.Error(t, err)

	var ge *errors.GatewayError
	require.True(t, errors.AsGatewayError(err, &ge))
	assert.Equal(t, errors.KindOBOExchangeFailed, ge.Kind)
	assert.Equal(t, "AADSTS50013: assertion invalid", ge.Description)
	assert.Contains(t, ge.Detail, "invalid_grant")
	assert.Contains(t, ge.Detail, "corr-1")
}
