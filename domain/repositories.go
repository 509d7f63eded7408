package domain

import "context"

// UserRepository is the persistence surface this subsystem needs: reading
// a user and mutating the single encrypted refresh-token field. The full
// user CRUD lives elsewhere.
type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*User, error)

	// RotateRefreshToken replaces the stored ciphertext only if it still
	// equals oldCiphertext (compare-and-swap), serializing concurrent
	// rotations on the same user. It returns false when the stored value
	// moved underneath the caller, in which case the newer token wins.
	RotateRefreshToken(ctx context.Context, userID, oldCiphertext, newCiphertext string) (bool, error)

	// SetRefreshToken unconditionally stores the ciphertext, used at
	// login where there is no previous value to compare against.
	SetRefreshToken(ctx context.Context, userID, ciphertext string) error
}

// LoginState is the pending-authorization context stored per OAuth state
// value between the redirect and the callback.
type LoginState struct {
	RedirectURI string `json:"redirect_uri"`
	CreatedAt   int64  `json:"created_at"`
}

// StateStore holds pending login states with a bounded TTL, keyed by the
// anti-forgery state value. Consume is single-use: it returns the state
// and deletes it atomically so a replayed callback fails.
type StateStore interface {
	Put(ctx context.Context, state string, ls LoginState) error
	Consume(ctx context.Context, state string) (*LoginState, error)
}
