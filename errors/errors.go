package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a class of gateway failure. Kinds are stable strings so
// callers and clients can switch on them without string-matching messages.
type Kind string

const (
	// KindConfig is a fatal configuration problem (missing client id,
	// secret or OBO target). Surfaced immediately at startup or first use.
	KindConfig Kind = "config_error"

	// KindTokenExchangeFailed is a failed authorization-code or refresh
	// grant at the identity provider's token endpoint.
	KindTokenExchangeFailed Kind = "token_exchange_failed"

	// KindInvalidState is a login callback whose state value is unknown,
	// expired or already consumed. No token grant was attempted.
	KindInvalidState Kind = "invalid_state"

	// KindAudienceMismatch means the principal token was not issued for
	// this application, so no on-behalf-of exchange may be attempted.
	KindAudienceMismatch Kind = "audience_mismatch"

	// KindOBOExchangeFailed is a rejected on-behalf-of grant.
	KindOBOExchangeFailed Kind = "obo_exchange_failed"

	// KindRefreshFailed is a soft failure: the stored refresh token could
	// not be redeemed. Callers degrade to demanding an explicit token.
	KindRefreshFailed Kind = "refresh_failed"

	// KindMalformedToken is a soft failure of unverified claims decoding.
	KindMalformedToken Kind = "malformed_token"

	// KindDownstreamUnavailable is a network-level failure reaching the
	// downstream API (connection refused, DNS, TLS).
	KindDownstreamUnavailable Kind = "downstream_unavailable"

	// KindDownstreamTimeout is a downstream call that exceeded its
	// per-hop deadline.
	KindDownstreamTimeout Kind = "downstream_timeout"

	// KindDownstreamHTTP is an application-level non-2xx downstream
	// response, already translated to user-facing copy.
	KindDownstreamHTTP Kind = "downstream_http_error"

	// KindUnsupportedMethod is a dispatch request with an HTTP verb the
	// gateway does not forward.
	KindUnsupportedMethod Kind = "unsupported_method"
)

// GatewayError is the single error type crossing package boundaries in the
// delegation path. Transport status is attached here so the HTTP layer can
// map an error to a response without inspecting internals.
type GatewayError struct {
	Kind        Kind   `json:"error"`
	Description string `json:"error_description,omitempty"`
	// Status is the HTTP status the API boundary should answer with.
	Status int `json:"-"`
	// Detail carries upstream diagnostics (provider error code, body,
	// correlation id). Logged, never returned to clients verbatim.
	Detail string `json:"-"`
}

func (e *GatewayError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Description, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Description)
}

// HTTPStatus returns the transport status for this error, defaulting to 500.
func (e *GatewayError) HTTPStatus() int {
	if e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

// AsGatewayError unwraps err into target when it is a *GatewayError.
func AsGatewayError(err error, target **GatewayError) bool {
	return errors.As(err, target)
}

// IsKind reports whether err is a *GatewayError of the given kind.
func IsKind(err error, kind Kind) bool {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Kind == kind
	}
	return false
}

func NewConfigError(description string) *GatewayError {
	return &GatewayError{
		Kind:        KindConfig,
		Description: description,
		Status:      http.StatusInternalServerError,
	}
}

// NewTokenExchangeFailed carries the upstream status and body so operators
// can diagnose provider rejections from the logs.
func NewTokenExchangeFailed(upstreamStatus int, upstreamBody string) *GatewayError {
	return &GatewayError{
		Kind:        KindTokenExchangeFailed,
		Description: "token exchange with the identity provider failed",
		Status:      http.StatusBadGateway,
		Detail:      fmt.Sprintf("upstream status %d: %s", upstreamStatus, upstreamBody),
	}
}

func NewInvalidState() *GatewayError {
	return &GatewayError{
		Kind:        KindInvalidState,
		Description: "unknown or expired login state",
		Status:      http.StatusBadRequest,
	}
}

func NewAudienceMismatch(expected []string, actual string) *GatewayError {
	return &GatewayError{
		Kind:        KindAudienceMismatch,
		Description: fmt.Sprintf("token has wrong audience for on-behalf-of exchange: got %q, expected one of %v", actual, expected),
		Status:      http.StatusBadRequest,
	}
}

// NewOBOExchangeFailed preserves the provider's error code, description and
// correlation id when present.
func NewOBOExchangeFailed(providerError, providerDescription, correlationID string) *GatewayError {
	detail := providerError
	if correlationID != "" {
		detail = fmt.Sprintf("%s correlation_id=%s", providerError, correlationID)
	}
	return &GatewayError{
		Kind:        KindOBOExchangeFailed,
		Description: providerDescription,
		Status:      http.StatusBadGateway,
		Detail:      detail,
	}
}

func NewRefreshFailed(description string) *GatewayError {
	return &GatewayError{
		Kind:        KindRefreshFailed,
		Description: description,
		Status:      http.StatusUnauthorized,
	}
}

func NewDownstreamUnavailable(cause error) *GatewayError {
	return &GatewayError{
		Kind:        KindDownstreamUnavailable,
		Description: "the downstream service could not be reached",
		Status:      http.StatusBadGateway,
		Detail:      cause.Error(),
	}
}

func NewDownstreamTimeout(cause error) *GatewayError {
	return &GatewayError{
		Kind:        KindDownstreamTimeout,
		Description: "the downstream service did not respond in time",
		Status:      http.StatusGatewayTimeout,
		Detail:      cause.Error(),
	}
}

// NewDownstreamHTTP wraps an already-translated downstream failure. The
// message is user-facing copy produced by the error translator; the raw
// body lives only in Detail.
func NewDownstreamHTTP(status int, message, rawBody string) *GatewayError {
	return &GatewayError{
		Kind:        KindDownstreamHTTP,
		Description: message,
		Status:      status,
		Detail:      rawBody,
	}
}

func NewUnsupportedMethod(method string) *GatewayError {
	return &GatewayError{
		Kind:        KindUnsupportedMethod,
		Description: fmt.Sprintf("unsupported HTTP method: %s", method),
		Status:      http.StatusMethodNotAllowed,
	}
}
