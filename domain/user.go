package domain

import "time"

// User is the middleware's view of a platform user. Only the fields this
// subsystem reads or mutates are modelled here; profile data, RBAC and the
// session/message entities live in their own services.
type User struct {
	ID          string `bson:"_id,omitempty"`
	Email       string `bson:"email,unique"`
	DisplayName string `bson:"display_name,omitempty"`

	// EncryptedRefreshToken is the provider refresh token, stored as
	// base64 ciphertext. It is decrypted only at the point of use and
	// rotated whenever the provider issues a replacement.
	EncryptedRefreshToken string `bson:"encrypted_refresh_token,omitempty"`

	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// HasRefreshToken reports whether a refresh token is on file for the user.
func (u *User) HasRefreshToken() bool {
	return u != nil && u.EncryptedRefreshToken != ""
}
