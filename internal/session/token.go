package session

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformedToken indicates an access token that is not a decodable JWT.
var ErrMalformedToken = errors.New("malformed token")

// TokenClaims is the decoded, unverified payload of an access token.
// It is for display only and must never drive an authorization decision.
type TokenClaims struct {
	Subject   string        `json:"sub,omitempty"`
	Issuer    string        `json:"iss,omitempty"`
	UserID    int64         `json:"user_id,omitempty"`
	Email     string        `json:"email,omitempty"`
	Name      string        `json:"name,omitempty"`
	Role      string        `json:"role,omitempty"`
	IssuedAt  time.Time     `json:"iat,omitzero"`
	ExpiresAt time.Time     `json:"exp,omitzero"`
	Claims    jwt.MapClaims `json:"claims"`
}

// InspectToken decodes the claims of a JWT without verifying its signature.
func InspectToken(token string) (*TokenClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}

	tc := &TokenClaims{
		Email:  stringClaim(claims, "email"),
		Name:   stringClaim(claims, "name"),
		Role:   stringClaim(claims, "role"),
		Claims: claims,
	}
	tc.Subject, _ = claims.GetSubject()
	tc.Issuer, _ = claims.GetIssuer()
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		tc.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		tc.ExpiresAt = exp.Time
	}

	switch v := claims["user_id"].(type) {
	case float64:
		tc.UserID = int64(v)
	case string:
		tc.UserID, _ = strconv.ParseInt(v, 10, 64)
	}
	if tc.UserID == 0 {
		tc.UserID, _ = strconv.ParseInt(tc.Subject, 10, 64)
	}

	return tc, nil
}

// profileFromToken builds a profile from token claims, or nil if the token
// carries no identity.
func profileFromToken(token string) *UserProfile {
	tc, err := InspectToken(token)
	if err != nil || (tc.UserID == 0 && tc.Email == "") {
		return nil
	}
	return &UserProfile{ID: tc.UserID, Email: tc.Email, Name: tc.Name, Role: tc.Role}
}

func stringClaim(claims jwt.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}
