// Package api exposes the HTTP surface: login and callback, session
// refresh, health, metrics and the delegated proxy routes.
package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"go.aldar.dev/ariagate/auth"
	"go.aldar.dev/ariagate/config"
	"go.aldar.dev/ariagate/domain"
	"go.aldar.dev/ariagate/errors"
	"go.aldar.dev/ariagate/internal/crypto"
	"go.aldar.dev/ariagate/middleware"
	"go.aldar.dev/ariagate/services"
)

// headerExplicitToken lets a client supply the principal token directly,
// bypassing the stored refresh token.
const headerExplicitToken = "X-User-Access-Token"

// UserStore is the persistence the API layer needs beyond the delegation
// pipeline: creating the user record at login time.
type UserStore interface {
	domain.UserRepository
	UpsertUser(ctx context.Context, user *domain.User) error
}

// API holds the HTTP handlers and their dependencies.
type API struct {
	cfg        *config.Config
	provider   *auth.ProviderClient
	rotator    *auth.RefreshTokenRotator
	users      UserStore
	states     domain.StateStore
	sessions   *auth.SessionTokens
	sealer     *crypto.Sealer
	delegation *services.DelegationService
}

func New(
	cfg *config.Config,
	provider *auth.ProviderClient,
	rotator *auth.RefreshTokenRotator,
	users UserStore,
	states domain.StateStore,
	sessions *auth.SessionTokens,
	sealer *crypto.Sealer,
	delegation *services.DelegationService,
) *API {
	return &API{
		cfg:        cfg,
		provider:   provider,
		rotator:    rotator,
		users:      users,
		states:     states,
		sessions:   sessions,
		sealer:     sealer,
		delegation: delegation,
	}
}

// RegisterRoutes mounts all handlers. The /api group requires a valid
// session token; everything else is public.
func (a *API) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", a.HealthHandler)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.GET("/auth/login", a.LoginHandler)
	e.GET("/auth/callback", a.CallbackHandler)
	e.POST("/auth/refresh", a.RefreshHandler)

	g := e.Group("/api", middleware.SessionAuth(a.sessions))
	g.Any("/agents", a.ProxyHandler)
	g.Any("/agents/*", a.ProxyHandler)
	g.Any("/conversations", a.ProxyHandler)
	g.Any("/conversations/*", a.ProxyHandler)
}

func (a *API) HealthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// LoginHandler starts the authorization code flow: it stores an
// anti-forgery state value and redirects to the provider. The optional
// redirect_uri query parameter is where the client wants to land after
// the callback, not the provider redirect, which is fixed by config.
// The callback redirects there with a fresh session token in the URL
// fragment, so the target must be on the configured allowlist; an
// unvetted destination would hand the token to an arbitrary origin.
func (a *API) LoginHandler(c echo.Context) error {
	ctx := c.Request().Context()

	redirectURI := c.QueryParam("redirect_uri")
	if !a.allowedClientRedirect(redirectURI) {
		log.Ctx(ctx).Warn().Str("redirect_uri", redirectURI).Msg("Rejected login with disallowed redirect target")
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "invalid_request",
			"message": "redirect_uri is not an allowed destination.",
		})
	}

	state := uuid.NewString()
	ls := domain.LoginState{
		RedirectURI: redirectURI,
		CreatedAt:   time.Now().Unix(),
	}
	if err := a.states.Put(ctx, state, ls); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to store login state")
		return writeError(c, err)
	}

	return c.Redirect(http.StatusFound, a.provider.AuthorizationURL(a.cfg.RedirectURI, state))
}

type callbackResponse struct {
	SessionToken string `json:"session_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// CallbackHandler completes the login: it consumes the state (single
// use), redeems the code, persists the user and the encrypted refresh
// token, and answers with the gateway's own session JWT. Provider tokens
// never leave this handler.
func (a *API) CallbackHandler(c echo.Context) error {
	ctx := c.Request().Context()

	if provErr := c.QueryParam("error"); provErr != "" {
		log.Ctx(ctx).Error().
			Str("error", provErr).
			Str("description", c.QueryParam("error_description")).
			Msg("Provider returned an error on callback")
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   provErr,
			"message": "Sign-in was not completed. Please try again.",
		})
	}

	code := c.QueryParam("code")
	state := c.QueryParam("state")
	if code == "" || state == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "invalid_request",
			"message": "Missing code or state parameter.",
		})
	}

	ls, err := a.states.Consume(ctx, state)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("Login state rejected")
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "invalid_state",
			"message": "The sign-in attempt is invalid or has expired. Please start again.",
		})
	}

	tr, err := a.provider.ExchangeCode(ctx, code, a.cfg.RedirectURI, "")
	if err != nil {
		return writeError(c, err)
	}

	claims := auth.DecodeClaims(firstNonEmpty(tr.IDToken, tr.AccessToken))
	userID := claims.SubjectID()
	if userID == "" {
		return writeError(c, errors.NewTokenExchangeFailed(0, "issued token carries no subject"))
	}

	user := &domain.User{
		ID:          userID,
		Email:       firstNonEmpty(claims.Email, claims.UPN),
		DisplayName: claims.UPN,
	}
	if err := a.users.UpsertUser(ctx, user); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("user_id", userID).Msg("Failed to persist user at login")
		return writeError(c, err)
	}

	if tr.RefreshToken != "" {
		ciphertext, err := a.sealer.Seal(tr.RefreshToken)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("user_id", userID).Msg("Failed to encrypt refresh token at login")
		} else if err := a.users.SetRefreshToken(ctx, userID, ciphertext); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("user_id", userID).Msg("Failed to store refresh token at login")
		}
	}

	session, err := a.sessions.Issue(userID, user.Email)
	if err != nil {
		return writeError(c, err)
	}

	log.Ctx(ctx).Info().Str("user_id", userID).Msg("Login completed")

	if ls.RedirectURI != "" {
		return c.Redirect(http.StatusFound, ls.RedirectURI+"#session_token="+session)
	}
	return c.JSON(http.StatusOK, callbackResponse{
		SessionToken: session,
		TokenType:    "Bearer",
		ExpiresIn:    int(a.cfg.SessionTTL().Seconds()),
	})
}

type refreshRequest struct {
	UserID string `json:"user_id"`
}

// RefreshHandler proves the stored refresh token can still be redeemed,
// without returning any token material.
func (a *API) RefreshHandler(c echo.Context) error {
	ctx := c.Request().Context()

	var req refreshRequest
	if err := c.Bind(&req); err != nil || req.UserID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "invalid_request",
			"message": "user_id is required",
		})
	}

	user, err := a.users.GetUserByID(ctx, req.UserID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error":   "unknown_user",
			"message": "No such user.",
		})
	}

	refreshed := a.rotator.PrincipalToken(ctx, user, "") != ""
	if !refreshed {
		return c.JSON(http.StatusUnauthorized, map[string]any{
			"refreshed": false,
			"message":   "Your session has expired. Please log in again to continue.",
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"refreshed": true})
}

// allowedClientRedirect accepts an empty value, a relative path, or an
// absolute http(s) URL whose origin is on the configured allowlist.
// Scheme-relative values ("//host/...") count as absolute.
func (a *API) allowedClientRedirect(redirectURI string) bool {
	if redirectURI == "" {
		return true
	}
	if strings.HasPrefix(redirectURI, "/") && !strings.HasPrefix(redirectURI, "//") {
		return true
	}

	u, err := url.Parse(redirectURI)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return false
	}
	origin := u.Scheme + "://" + u.Host
	for _, allowed := range a.cfg.RedirectOrigins() {
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
