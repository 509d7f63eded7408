package auth

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"

	"go.aldar.dev/ariagate/domain"
)

// typedClaimKeys are the payload keys already represented by the typed
// fields of domain.TokenClaims; everything else lands in Extra.
var typedClaimKeys = []string{
	"aud", "iss", "sub", "oid", "scp", "roles", "ver", "appid",
	"email", "preferred_username", "exp", "iat",
}

// DecodeClaims decodes a JWT payload without verifying the signature.
//
// It is used for introspection and validation heuristics only — audience
// gating before an on-behalf-of exchange, expiry estimates, diagnostics.
// It must never be treated as establishing authenticity: the caller is
// trusted to hold a token obtained from a legitimate exchange.
//
// Malformed input (wrong segment count, bad base64, bad JSON) yields the
// zero TokenClaims and a log line; it never returns an error, because no
// caller uses the result as a security gate.
func DecodeClaims(token string) domain.TokenClaims {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		log.Warn().Int("segments", len(parts)).Msg("Cannot decode token: not a three-segment JWT")
		return domain.TokenClaims{}
	}

	// Providers strip base64 padding; restore it before decoding.
	payload := parts[1]
	if m := len(payload) % 4; m != 0 {
		payload += strings.Repeat("=", 4-m)
	}

	raw, err := base64.URLEncoding.DecodeString(payload)
	if err != nil {
		log.Warn().Err(err).Msg("Cannot decode token: payload is not valid base64url")
		return domain.TokenClaims{}
	}

	var claims domain.TokenClaims
	if err := json.Unmarshal(raw, &claims); err != nil {
		log.Warn().Err(err).Msg("Cannot decode token: payload is not valid JSON")
		return domain.TokenClaims{}
	}

	var all map[string]any
	if err := json.Unmarshal(raw, &all); err == nil {
		for _, k := range typedClaimKeys {
			delete(all, k)
		}
		if len(all) > 0 {
			claims.Extra = all
		}
	}

	return claims
}
