package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspectToken(t *testing.T) {
	t.Parallel()
	iat := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	token := signedToken(t, jwt.MapClaims{
		"sub":     "user-7",
		"iss":     "runcheck-api",
		"user_id": 7,
		"email":   "a@ku.th",
		"name":    "A",
		"role":    "student",
		"iat":     iat.Unix(),
		"exp":     iat.Add(time.Hour).Unix(),
	})

	claims, err := InspectToken(token)
	require.NoError(t, err)

	assert.Equal(t, "user-7", claims.Subject)
	assert.Equal(t, "runcheck-api", claims.Issuer)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, "a@ku.th", claims.Email)
	assert.Equal(t, "A", claims.Name)
	assert.Equal(t, "student", claims.Role)
	assert.True(t, iat.Equal(claims.IssuedAt))
	assert.True(t, iat.Add(time.Hour).Equal(claims.ExpiresAt))
}

func TestInspectToken_NumericSubject(t *testing.T) {
	t.Parallel()
	claims, err := InspectToken(signedToken(t, jwt.MapClaims{"sub": "42"}))
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.True(t, claims.ExpiresAt.IsZero())
}

func TestInspectToken_StringUserID(t *testing.T) {
	t.Parallel()
	claims, err := InspectToken(signedToken(t, jwt.MapClaims{"user_id": "9"}))
	require.NoError(t, err)
	assert.Equal(t, int64(9), claims.UserID)
}

func TestInspectToken_IgnoresSignature(t *testing.T) {
	t.Parallel()
	token := signedToken(t, jwt.MapClaims{"email": "a@ku.th"})
	tampered := token[:len(token)-4] + "AAAA"

	claims, err := InspectToken(tampered)
	require.NoError(t, err)
	assert.Equal(t, "a@ku.th", claims.Email)
}

func TestInspectToken_Malformed(t *testing.T) {
	t.Parallel()
	for _, token := range []string{"", "opaque", "a.b", "not.a.jwt"} {
		_, err := InspectToken(token)
		require.Error(t, err, token)
		assert.ErrorIs(t, err, ErrMalformedToken)
	}
}

func TestProfileFromToken(t *testing.T) {
	t.Parallel()
	assert.Nil(t, profileFromToken("opaque"))
	assert.Nil(t, profileFromToken(signedToken(t, jwt.MapClaims{"role": "student"})))

	p := profileFromToken(signedToken(t, jwt.MapClaims{"sub": "3", "role": "officer"}))
	require.NotNil(t, p)
	assert.Equal(t, int64(3), p.ID)
	assert.Equal(t, "officer", p.Role)
}
