package domain

import (
	"encoding/json"
	"time"
)

// Audience accepts both the string and []string encodings of the "aud"
// claim; identity providers emit either depending on token version.
type Audience []string

func (a *Audience) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = Audience{s}
		return nil
	}
	var arr []string
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	*a = Audience(arr)
	return nil
}

// Contains reports whether the audience includes the given value.
func (a Audience) Contains(value string) bool {
	for _, aud := range a {
		if aud == value {
			return true
		}
	}
	return false
}

// First returns the first audience value, or "" when none is present.
func (a Audience) First() string {
	if len(a) == 0 {
		return ""
	}
	return a[0]
}

// TokenClaims is the decoded-but-unverified payload of a JWT. It is
// produced per call for introspection and validation heuristics and is
// never stored. Holding a TokenClaims value implies nothing about the
// token's authenticity.
type TokenClaims struct {
	Audience Audience `json:"aud"`
	Issuer   string   `json:"iss"`
	Subject  string   `json:"sub"`
	ObjectID string   `json:"oid"`
	Scope    string   `json:"scp"`
	Roles    []string `json:"roles"`
	Version  string   `json:"ver"`
	AppID    string   `json:"appid"`
	Email    string   `json:"email"`
	UPN      string   `json:"preferred_username"`
	Expiry   int64    `json:"exp"`
	IssuedAt int64    `json:"iat"`

	// Extra holds claims outside the typed set, bounded to what the
	// provider actually sent.
	Extra map[string]any `json:"-"`
}

// IsZero reports whether the claims carry no information, which is what
// decoding a malformed token yields.
func (c TokenClaims) IsZero() bool {
	return len(c.Audience) == 0 && c.Issuer == "" && c.Subject == "" &&
		c.ObjectID == "" && c.Expiry == 0 && len(c.Extra) == 0
}

// SubjectID returns the stable user identifier, preferring "sub" and
// falling back to "oid".
func (c TokenClaims) SubjectID() string {
	if c.Subject != "" {
		return c.Subject
	}
	return c.ObjectID
}

// ExpiresWithin reports whether the token expires within d of now. Tokens
// without an exp claim are never considered expiring.
func (c TokenClaims) ExpiresWithin(d time.Duration) bool {
	if c.Expiry == 0 {
		return false
	}
	return time.Now().Add(d).Unix() >= c.Expiry
}
