package auth

import (
	"context"

	"github.com/rs/zerolog/log"

	"go.aldar.dev/ariagate/domain"
	"go.aldar.dev/ariagate/internal/crypto"
	"go.aldar.dev/ariagate/internal/metrics"
)

// RefreshTokenRotator derives a principal access token for a user when
// the caller did not supply one, by redeeming the refresh token stored on
// the user record. Failure here is deliberately soft: the caller falls
// back to demanding an explicit token from the client instead of failing
// the whole request.
type RefreshTokenRotator struct {
	provider *ProviderClient
	users    domain.UserRepository
	sealer   *crypto.Sealer
}

func NewRefreshTokenRotator(provider *ProviderClient, users domain.UserRepository, sealer *crypto.Sealer) *RefreshTokenRotator {
	return &RefreshTokenRotator{provider: provider, users: users, sealer: sealer}
}

// PrincipalToken returns the token to use for the on-behalf-of exchange.
//
// Priority: an explicitly provided token wins unchanged; otherwise the
// stored refresh token is redeemed. When the provider's reply carries a
// new refresh token (rotation per RFC 6749), the stored ciphertext is
// replaced — but only if nobody rotated it concurrently: the swap is a
// compare-and-swap on the previous ciphertext, and losing the race means
// a newer token is already on file. A reply without a refresh token
// leaves the stored value untouched.
//
// The empty string means no principal token could be derived.
func (r *RefreshTokenRotator) PrincipalToken(ctx context.Context, user *domain.User, explicitToken string) string {
	if explicitToken != "" {
		log.Ctx(ctx).Debug().Msg("Using caller-provided principal token")
		return explicitToken
	}

	if !user.HasRefreshToken() {
		log.Ctx(ctx).Warn().Str("user_id", user.ID).Msg("No refresh token on file; principal token cannot be derived")
		return ""
	}

	refreshToken, err := r.sealer.Open(user.EncryptedRefreshToken)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("user_id", user.ID).Msg("Stored refresh token could not be decrypted")
		metrics.TokenRefreshesTotal.WithLabelValues("failure").Inc()
		return ""
	}

	tr, err := r.provider.Refresh(ctx, refreshToken)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("user_id", user.ID).Msg("Refresh grant failed; caller must supply an explicit token")
		metrics.TokenRefreshesTotal.WithLabelValues("failure").Inc()
		return ""
	}

	if tr.RefreshToken != "" && tr.RefreshToken != refreshToken {
		r.persistRotation(ctx, user, tr.RefreshToken)
	}

	metrics.TokenRefreshesTotal.WithLabelValues("success").Inc()
	log.Ctx(ctx).Info().Str("user_id", user.ID).Msg("Principal token derived from stored refresh token")
	return tr.AccessToken
}

func (r *RefreshTokenRotator) persistRotation(ctx context.Context, user *domain.User, newRefreshToken string) {
	ciphertext, err := r.sealer.Seal(newRefreshToken)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("user_id", user.ID).Msg("Failed to encrypt rotated refresh token; keeping previous value")
		return
	}

	swapped, err := r.users.RotateRefreshToken(ctx, user.ID, user.EncryptedRefreshToken, ciphertext)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("user_id", user.ID).Msg("Failed to persist rotated refresh token")
		return
	}
	if !swapped {
		// Concurrent rotation won; its token is newer than ours.
		log.Ctx(ctx).Debug().Str("user_id", user.ID).Msg("Refresh token rotated concurrently; keeping the stored value")
		return
	}
	user.EncryptedRefreshToken = ciphertext
}
