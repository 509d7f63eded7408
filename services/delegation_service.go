// Package services wires the delegation pipeline: principal token
// acquisition, on-behalf-of exchange with caching, and the downstream
// call itself.
package services

import (
	"context"
	stderrors "errors"

	"github.com/rs/zerolog/log"

	"go.aldar.dev/ariagate/auth"
	"go.aldar.dev/ariagate/cache"
	"go.aldar.dev/ariagate/domain"
	"go.aldar.dev/ariagate/errors"
	"go.aldar.dev/ariagate/gateway"
)

// DelegationService orchestrates one delegated downstream call end to
// end. Each stage either advances or fails the request; there are no
// internal retries, so a caller sees exactly one provider exchange and at
// most one downstream attempt per call.
type DelegationService struct {
	users       domain.UserRepository
	rotator     *auth.RefreshTokenRotator
	exchanger   *auth.OBOExchanger
	tokens      *cache.DelegatedTokenCache
	gateway     *gateway.Gateway
	targetScope string
}

func NewDelegationService(
	users domain.UserRepository,
	rotator *auth.RefreshTokenRotator,
	exchanger *auth.OBOExchanger,
	tokens *cache.DelegatedTokenCache,
	gw *gateway.Gateway,
	targetScope string,
) *DelegationService {
	return &DelegationService{
		users:       users,
		rotator:     rotator,
		exchanger:   exchanger,
		tokens:      tokens,
		gateway:     gw,
		targetScope: targetScope,
	}
}

// DelegatedToken returns a downstream-scoped token for the user.
//
// The principal token is the explicit one when provided, otherwise it is
// derived from the user's stored refresh token. With neither available
// the call fails with KindRefreshFailed and the caller must re-prompt the
// client for credentials. The exchange itself goes through the delegated
// cache, so concurrent callers for the same user share one exchange.
func (s *DelegationService) DelegatedToken(ctx context.Context, userID, explicitToken string) (string, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if explicitToken == "" {
			log.Ctx(ctx).Warn().Err(err).Str("user_id", userID).Msg("User lookup failed and no explicit token supplied")
			return "", errors.NewRefreshFailed("no valid session: log in again or supply an access token")
		}
		// An explicit token works without a user record; only the stored
		// refresh token needs one.
		user = &domain.User{ID: userID}
	}

	principal := s.rotator.PrincipalToken(ctx, user, explicitToken)
	if principal == "" {
		return "", errors.NewRefreshFailed("no valid session: log in again or supply an access token")
	}

	return s.tokens.GetOrExchange(ctx, userID, s.targetScope, func(exCtx context.Context) (string, int, error) {
		return s.exchanger.Exchange(exCtx, principal)
	})
}

// CallDownstream performs one delegated API call. A 401 from the
// downstream evicts the cached delegated token so the next call
// re-exchanges, but this call is not retried.
func (s *DelegationService) CallDownstream(ctx context.Context, userID, explicitToken string, req domain.DownstreamRequest) (*domain.DownstreamResponse, error) {
	token, err := s.DelegatedToken(ctx, userID, explicitToken)
	if err != nil {
		return nil, err
	}

	resp, err := s.gateway.Call(ctx, token, req)
	if err != nil {
		var ge *errors.GatewayError
		if errors.IsKind(err, errors.KindDownstreamHTTP) && stderrors.As(err, &ge) && ge.Status == 401 {
			log.Ctx(ctx).Warn().Str("user_id", userID).Msg("Downstream rejected delegated token; evicting cache entry")
			s.tokens.Invalidate(userID, s.targetScope)
		}
		return nil, err
	}
	return resp, nil
}
