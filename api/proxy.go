package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"go.aldar.dev/ariagate/domain"
	"go.aldar.dev/ariagate/errors"
	"go.aldar.dev/ariagate/middleware"
)

// ProxyHandler forwards the request to the downstream API under a
// delegated token. The /api prefix is stripped; everything after it maps
// onto the downstream base URL unchanged.
func (a *API) ProxyHandler(c echo.Context) error {
	ctx := c.Request().Context()
	userID, _ := c.Get(middleware.ContextKeyUserID).(string)

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return writeError(c, errors.NewDownstreamUnavailable(err))
	}

	params := map[string]string{}
	for k, v := range c.QueryParams() {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}

	req := domain.DownstreamRequest{
		Method: c.Request().Method,
		URL:    strings.TrimSuffix(a.cfg.DownstreamBaseURL, "/") + strings.TrimPrefix(c.Request().URL.Path, "/api"),
		Body:   body,
		Params: params,
	}

	resp, err := a.delegation.CallDownstream(ctx, userID, c.Request().Header.Get(headerExplicitToken), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// writeError maps pipeline failures onto HTTP responses. GatewayError
// already carries its transport status and client-safe description;
// anything else becomes an opaque 500.
func writeError(c echo.Context, err error) error {
	var ge *errors.GatewayError
	if errors.AsGatewayError(err, &ge) {
		return c.JSON(ge.HTTPStatus(), ge)
	}
	log.Ctx(c.Request().Context()).Error().Err(err).Msg("Unclassified error reached the HTTP boundary")
	return c.JSON(http.StatusInternalServerError, map[string]string{
		"error":   "internal_error",
		"message": "Something went wrong. Please try again later.",
	})
}
