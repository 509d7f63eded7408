package auth

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeToken builds a three-segment token with the given payload claims,
// base64url-encoded without padding the way providers emit them.
func makeToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	return "eyJhbGciOiJub25lIn0." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
}

func TestDecodeClaims(t *testing.T) {
	token := makeToken(t, map[string]any{
		"aud":   "abc",
		"iss":   "https://login.example.com/tenant/v2.0",
		"sub":   "subject-1",
		"oid":   "object-1",
		"scp":   "User.Read",
		"ver":   "2.0",
		"email": "user@example.com",
		"tid":   "tenant-1",
	})

	claims := DecodeClaims(token)
	assert.Equal(t, "abc", claims.Audience.First())
	assert.Equal(t, "subject-1", claims.Subject)
	assert.Equal(t, "object-1", claims.ObjectID)
	assert.Equal(t, "2.0", claims.Version)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, "tenant-1", claims.Extra["tid"])
}

func TestDecodeClaimsAudienceArray(t *testing.T) {
	claims := DecodeClaims(makeToken(t, map[string]any{
		"aud": []string{"api://abc", "other"},
	}))

	assert.True(t, claims.Audience.Contains("api://abc"))
	assert.True(t, claims.Audience.Contains("other"))
	assert.Equal(t, "api://abc", claims.Audience.First())
}

func TestDecodeClaimsRestoresPadding(t *testing.T) {
	// A payload whose base64 length is not a multiple of four; providers
	// strip the trailing '=' characters.
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"aud":"x"}`))
	require.NotZero(t, len(payload)%4)

	claims := DecodeClaims("h." + payload + ".s")
	assert.Equal(t, "x", claims.Audience.First())
}

func TestDecodeClaimsMalformed(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"two segments", "a.b"},
		{"four segments", "a.b.c.d"},
		{"bad base64", "h.!!not-base64!!.s"},
		{"bad json", "h." + base64.RawURLEncoding.EncodeToString([]byte("not json")) + ".s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := DecodeClaims(tt.token)
			assert.True(t, claims.IsZero())
		})
	}
}

func TestDecodeClaimsNeverPanics(t *testing.T) {
	assert.NotPanics(t, func() {
		DecodeClaims("....")
		DecodeClaims("Bearer something")
		DecodeClaims("\x00\x01\x02")
	})
}
