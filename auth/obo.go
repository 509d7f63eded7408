package auth

import (
	"context"

	"github.com/rs/zerolog/log"

	"go.aldar.dev/ariagate/errors"
	"go.aldar.dev/ariagate/internal/metrics"
	xlog "go.aldar.dev/ariagate/log"
)

// OBOExchanger converts a principal token into a downstream-scoped
// delegated token via the on-behalf-of grant. It performs exactly one
// exchange per call and never caches; caching is layered on top by the
// delegated token cache.
type OBOExchanger struct {
	provider       *ProviderClient
	clientID       string
	targetClientID string
	targetScope    string
}

// NewOBOExchanger wires the exchanger for a downstream target. targetScope
// is the full scope URI, e.g. "api://<target-client-id>/All".
func NewOBOExchanger(provider *ProviderClient, clientID, targetClientID, targetScope string) *OBOExchanger {
	return &OBOExchanger{
		provider:       provider,
		clientID:       clientID,
		targetClientID: targetClientID,
		targetScope:    targetScope,
	}
}

// Exchange performs the OBO grant. Gates, in order:
//
//  1. The principal token's audience must be this application's client id
//     (or its api:// form) — the token was issued *to us*, not to the
//     downstream resource. On mismatch the call fails before any network
//     I/O so a misdirected token never reaches the provider.
//  2. v1.0 tokens get a compatibility warning; OBO semantics differ
//     between token versions but the exchange still proceeds.
//
// On success it returns the delegated access token and its lifetime in
// seconds as declared by the provider.
func (e *OBOExchanger) Exchange(ctx context.Context, principalToken string) (string, int, error) {
	if e.targetClientID == "" {
		return "", 0, errors.NewConfigError("on-behalf-of target client id is not configured")
	}

	claims := DecodeClaims(principalToken)
	expected := []string{e.clientID, "api://" + e.clientID}
	actual := claims.Audience.First()
	if !claims.Audience.Contains(e.clientID) && !claims.Audience.Contains("api://"+e.clientID) {
		log.Ctx(ctx).Error().
			Str("aud", actual).
			Strs("expected", expected).
			Msg("Refusing on-behalf-of exchange: principal token audience mismatch")
		metrics.OBOExchangesTotal.WithLabelValues("audience_mismatch").Inc()
		return "", 0, errors.NewAudienceMismatch(expected, actual)
	}

	if claims.Version == "1.0" {
		log.Ctx(ctx).Warn().
			Str("ver", claims.Version).
			Msg("Principal token is v1.0; on-behalf-of semantics differ between token versions")
	}

	log.Ctx(ctx).Info().
		Str("source_app", e.clientID).
		Str("target_app", e.targetClientID).
		Str("scope", e.targetScope).
		Str("token", xlog.TokenPreview(principalToken)).
		Msg("Starting on-behalf-of exchange")

	tr, err := e.provider.ExchangeOnBehalfOf(ctx, principalToken, e.targetScope)
	if err != nil {
		metrics.OBOExchangesTotal.WithLabelValues("failure").Inc()
		return "", 0, err
	}

	metrics.OBOExchangesTotal.WithLabelValues("success").Inc()
	log.Ctx(ctx).Info().
		Str("token", xlog.TokenPreview(tr.AccessToken)).
		Int("expires_in", tr.ExpiresIn).
		Msg("On-behalf-of exchange succeeded")

	return tr.AccessToken, tr.ExpiresIn, nil
}
