package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"go.aldar.dev/ariagate/errors"
	xlog "go.aldar.dev/ariagate/log"
)

const (
	authorizePath = "/oauth2/v2.0/authorize"
	tokenPath     = "/oauth2/v2.0/token"

	grantAuthorizationCode = "authorization_code"
	grantRefreshToken      = "refresh_token"
	grantJWTBearer         = "urn:ietf:params:oauth:grant-type:jwt-bearer"
)

// TokenResponse is the identity provider's token endpoint reply, success
// and error fields combined; the token endpoint answers 400 with the
// error triple populated.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	Scope        string `json:"scope,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`

	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
	CorrelationID    string `json:"correlation_id,omitempty"`
}

// ProviderClient talks to the identity provider's v2.0 endpoints with
// plain form posts. The token helpers of OAuth SDKs are bypassed on
// purpose: they restrict combining OIDC scopes with a resource scope, and
// the exact scope string decides whether the issued token is usable for
// the on-behalf-of grant later.
type ProviderClient struct {
	authority    string
	clientID     string
	clientSecret string
	loginScopes  []string
	httpClient   *http.Client
}

// NewProviderClient builds a client for the given authority. timeout is
// the per-hop deadline for every token endpoint call.
func NewProviderClient(authority, clientID, clientSecret string, loginScopes []string, timeout time.Duration) *ProviderClient {
	return &ProviderClient{
		authority:    strings.TrimSuffix(authority, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		loginScopes:  loginScopes,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// AuthorizationURL builds the provider's /authorize URL for the code
// flow. Pure function: no network call, no side effects. The scope string
// combines the OIDC scopes with this application's own resource scope so
// the resulting access token has our client id as its audience.
func (p *ProviderClient) AuthorizationURL(redirectURI, state string) string {
	params := url.Values{}
	params.Set("client_id", p.clientID)
	params.Set("response_type", "code")
	params.Set("redirect_uri", redirectURI)
	params.Set("response_mode", "query")
	params.Set("scope", strings.Join(p.loginScopes, " "))
	params.Set("state", state)
	return p.authority + authorizePath + "?" + params.Encode()
}

// ExchangeCode redeems an authorization code for the principal token
// bundle. The audience of the returned access token is checked only to
// log a warning; enforcement happens at the on-behalf-of step.
func (p *ProviderClient) ExchangeCode(ctx context.Context, code, redirectURI, codeVerifier string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("client_id", p.clientID)
	form.Set("client_secret", p.clientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	form.Set("grant_type", grantAuthorizationCode)
	form.Set("scope", strings.Join(p.loginScopes, " "))
	if codeVerifier != "" {
		form.Set("code_verifier", codeVerifier)
	}

	status, body, err := p.postTokenForm(ctx, form)
	if err != nil {
		return nil, errors.NewTokenExchangeFailed(0, err.Error())
	}
	if status != http.StatusOK {
		log.Ctx(ctx).Error().Int("status", status).Str("body", string(body)).Msg("Authorization code exchange failed")
		return nil, errors.NewTokenExchangeFailed(status, string(body))
	}

	var tr TokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, errors.NewTokenExchangeFailed(status, "unparseable token response: "+err.Error())
	}
	if tr.AccessToken == "" {
		return nil, errors.NewTokenExchangeFailed(status, tr.ErrorDescription)
	}

	claims := DecodeClaims(tr.AccessToken)
	expected := []string{p.clientID, "api://" + p.clientID}
	if !claims.Audience.Contains(p.clientID) && !claims.Audience.Contains("api://"+p.clientID) {
		log.Ctx(ctx).Warn().
			Str("aud", claims.Audience.First()).
			Strs("expected", expected).
			Msg("Issued token has unexpected audience; on-behalf-of exchange will be rejected")
	}
	log.Ctx(ctx).Info().
		Str("token", xlog.TokenPreview(tr.AccessToken)).
		Str("scope", tr.Scope).
		Msg("Authorization code exchanged")

	return &tr, nil
}

// Refresh redeems a refresh token with the same scope set used at login,
// so the rotated access token keeps the audience needed for OBO.
func (p *ProviderClient) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("client_id", p.clientID)
	form.Set("client_secret", p.clientSecret)
	form.Set("refresh_token", refreshToken)
	form.Set("grant_type", grantRefreshToken)
	form.Set("scope", strings.Join(p.loginScopes, " "))

	status, body, err := p.postTokenForm(ctx, form)
	if err != nil {
		return nil, errors.NewTokenExchangeFailed(0, err.Error())
	}
	if status != http.StatusOK {
		return nil, errors.NewTokenExchangeFailed(status, string(body))
	}

	var tr TokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, errors.NewTokenExchangeFailed(status, "unparseable token response: "+err.Error())
	}
	if tr.AccessToken == "" {
		return nil, errors.NewTokenExchangeFailed(status, tr.ErrorDescription)
	}
	return &tr, nil
}

// ExchangeOnBehalfOf performs the OBO grant: the principal token becomes
// the assertion, and the requested scope names the downstream resource.
func (p *ProviderClient) ExchangeOnBehalfOf(ctx context.Context, principalToken, targetScope string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("client_id", p.clientID)
	form.Set("client_secret", p.clientSecret)
	form.Set("grant_type", grantJWTBearer)
	form.Set("assertion", principalToken)
	form.Set("requested_token_use", "on_behalf_of")
	form.Set("scope", targetScope)

	status, body, err := p.postTokenForm(ctx, form)
	if err != nil {
		return nil, errors.NewOBOExchangeFailed("request_failed", err.Error(), "")
	}

	var tr TokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, errors.NewOBOExchangeFailed("unparseable_response", string(body), "")
	}
	if status != http.StatusOK || tr.AccessToken == "" {
		log.Ctx(ctx).Error().
			Int("status", status).
			Str("error", tr.Error).
			Str("description", tr.ErrorDescription).
			Str("correlation_id", tr.CorrelationID).
			Msg("On-behalf-of exchange rejected by provider")
		return nil, errors.NewOBOExchangeFailed(tr.Error, tr.ErrorDescription, tr.CorrelationID)
	}
	return &tr, nil
}

func (p *ProviderClient) postTokenForm(ctx context.Context, form url.Values) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.authority+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}
