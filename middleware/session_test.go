package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.aldar.dev/ariagate/auth"
)

func sessionTestHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"user_id": c.Get(ContextKeyUserID),
		"email":   c.Get(ContextKeyEmail),
	})
}

func TestSessionAuthAcceptsValidToken(t *testing.T) {
	sessions := auth.NewSessionTokens([]byte("key"), time.Hour)
	token, err := sessions.Issue("u1", "user@example.com")
	require.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/agents", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err = SessionAuth(sessions)(sessionTestHandler)(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user_id":"u1"`)
	assert.Contains(t, rec.Body.String(), `"email":"user@example.com"`)
}

func TestSessionAuthRejections(t *testing.T) {
	sessions := auth.NewSessionTokens([]byte("key"), time.Hour)
	expired, err := auth.NewSessionTokens([]byte("key"), -time.Minute).Issue("u1", "")
	require.NoError(t, err)
	foreign, err := auth.NewSessionTokens([]byte("other-key"), time.Hour).Issue("u1", "")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic dXNlcjpwYXNz"},
		{"empty token", "Bearer "},
		{"garbage token", "Bearer not-a-jwt"},
		{"expired token", "Bearer " + expired},
		{"wrong key", "Bearer " + foreign},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/api/agents", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := SessionAuth(sessions)(sessionTestHandler)(c)
			require.NoError(t, err)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), "Your session has expired. Please log in again to continue.")
		})
	}
}
