// Package gateway forwards authenticated requests to the downstream API
// and translates its failures into user-facing copy.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"go.aldar.dev/ariagate/domain"
	"go.aldar.dev/ariagate/errors"
	"go.aldar.dev/ariagate/internal/metrics"
	xlog "go.aldar.dev/ariagate/log"
)

var forwardedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// Gateway executes downstream calls with a delegated token attached. It
// does not obtain tokens itself; the caller supplies one per call.
type Gateway struct {
	httpClient *http.Client
}

func New(timeout time.Duration) *Gateway {
	return &Gateway{httpClient: &http.Client{Timeout: timeout}}
}

// Call forwards one request with the delegated token as a bearer credential.
// Any 2xx counts as success, whatever JSON shape the body carries; 204 and
// empty bodies decode to an empty map.
// Non-2xx responses come back as a KindDownstreamHTTP error whose
// description is the translated user-facing message, with the raw body
// preserved in the error detail for operators.
func (g *Gateway) Call(ctx context.Context, delegatedToken string, req domain.DownstreamRequest) (*domain.DownstreamResponse, error) {
	method := strings.ToUpper(req.Method)
	if !forwardedMethods[method] {
		return nil, errors.NewUnsupportedMethod(req.Method)
	}

	target, err := buildURL(req.URL, req.Params)
	if err != nil {
		return nil, errors.NewDownstreamUnavailable(err)
	}

	var body io.Reader
	if len(req.Body) > 0 && method != http.MethodGet && method != http.MethodDelete {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, errors.NewDownstreamUnavailable(err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+delegatedToken)
	httpReq.Header.Set("Content-Type", "application/json")
	// Contractual with the downstream: it rejects requests without this.
	httpReq.Header.Set("x-content-encoded", "true")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	log.Ctx(ctx).Info().
		Str("method", method).
		Str("url", target).
		Str("token", xlog.TokenPreview(delegatedToken)).
		Msg("Calling downstream API")

	start := time.Now()
	resp, err := g.httpClient.Do(httpReq)
	elapsed := time.Since(start)
	if err != nil {
		metrics.DownstreamRequestsTotal.WithLabelValues(method, "error").Inc()
		return nil, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.DownstreamRequestsTotal.WithLabelValues(method, "error").Inc()
		return nil, errors.NewDownstreamUnavailable(err)
	}

	metrics.DownstreamRequestsTotal.WithLabelValues(method, statusFamily(resp.StatusCode)).Inc()
	metrics.DownstreamLatency.Observe(elapsed.Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := Translate(resp.StatusCode, string(raw), method, target)
		log.Ctx(ctx).Error().
			Int("status", resp.StatusCode).
			Str("body", string(raw)).
			Str("message", message).
			Msg("Downstream API call failed")
		return nil, errors.NewDownstreamHTTP(resp.StatusCode, message, string(raw))
	}

	data, err := decodeBody(resp.StatusCode, raw)
	if err != nil {
		return nil, errors.NewDownstreamHTTP(http.StatusBadGateway, "Downstream response could not be decoded", string(raw))
	}

	log.Ctx(ctx).Info().
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Msg("Downstream API call succeeded")

	return &domain.DownstreamResponse{
		StatusCode: resp.StatusCode,
		Data:       data,
		Elapsed:    elapsed,
	}, nil
}

func buildURL(base string, params map[string]string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if len(params) > 0 {
		q := u.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// classifyTransportError separates deadline expiry from everything else so
// callers and dashboards can tell a slow downstream from a dead one.
func classifyTransportError(ctx context.Context, err error) *errors.GatewayError {
	var netErr net.Error
	if stderrors.Is(err, context.DeadlineExceeded) || (stderrors.As(err, &netErr) && netErr.Timeout()) {
		log.Ctx(ctx).Error().Err(err).Msg("Downstream API call timed out")
		return errors.NewDownstreamTimeout(err)
	}
	log.Ctx(ctx).Error().Err(err).Msg("Downstream API unreachable")
	return errors.NewDownstreamUnavailable(err)
}

// decodeBody accepts any JSON shape the downstream returns; list
// endpoints answer with top-level arrays, so the result is not forced
// into an object.
func decodeBody(status int, raw []byte) (any, error) {
	if status == http.StatusNoContent || len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func statusFamily(status int) string {
	return strconv.Itoa(status/100) + "xx"
}
