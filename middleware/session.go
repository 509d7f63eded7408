// Package middleware holds the echo middleware for the gateway's own
// session authentication.
package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"go.aldar.dev/ariagate/auth"
)

const (
	// ContextKeyUserID is where the session middleware stores the
	// authenticated user's id on the echo context.
	ContextKeyUserID = "user_id"
	// ContextKeyEmail mirrors the session token's email claim.
	ContextKeyEmail = "email"
)

// sessionExpiredMessage matches the copy the error translator produces
// for a downstream 401, so clients handle both identically.
const sessionExpiredMessage = "Your session has expired. Please log in again to continue."

// SessionAuth validates the gateway's session JWT from the Authorization
// header and stores the subject on the request context. It authenticates
// the caller to this service only; the provider tokens used downstream
// are resolved separately per request.
func SessionAuth(sessions *auth.SessionTokens) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error":   "unauthorized",
					"message": sessionExpiredMessage,
				})
			}

			claims, err := sessions.Verify(token)
			if err != nil {
				log.Ctx(c.Request().Context()).Warn().Err(err).Msg("Session token rejected")
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error":   "unauthorized",
					"message": sessionExpiredMessage,
				})
			}

			c.Set(ContextKeyUserID, claims.Subject)
			c.Set(ContextKeyEmail, claims.Email)
			return next(c)
		}
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
