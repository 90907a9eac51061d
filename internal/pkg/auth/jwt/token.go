/*
Package jwt reads the access tokens issued by the chat backend.

The client never holds the signing key, so tokens are decoded without signature verification;
the backend remains the authority on validity. The decoded claims are only used to learn the
user's handle and to decide when a token should be refreshed.
*/
package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
)

// TokenRefreshWindow defines how long before expiry a token should be refreshed.
const TokenRefreshWindow = 2 * time.Minute

// ErrMalformedToken is returned when a token cannot be decoded.
var ErrMalformedToken = errors.New("malformed access token")

// ParseUnverified decodes the token claims without checking the signature.
func ParseUnverified(tokenString string) (*Payload, error) {
	if tokenString == "" {
		return nil, ErrMalformedToken
	}

	claims := &Payload{}
	parser := &jwt.Parser{}

	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, errors.Join(ErrMalformedToken, err)
	}

	return claims, nil
}

// ExpiresAt returns the token's expiry, or the zero time if the token has no exp claim.
func ExpiresAt(tokenString string) (time.Time, error) {
	claims, err := ParseUnverified(tokenString)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == 0 {
		return time.Time{}, nil
	}
	return time.Unix(claims.ExpiresAt, 0), nil
}

// NeedsRefresh reports whether the token expires within window of now.
// Tokens without an exp claim never need refreshing; undecodable tokens always do.
func NeedsRefresh(tokenString string, now time.Time, window time.Duration) bool {
	expiry, err := ExpiresAt(tokenString)
	if err != nil {
		return true
	}
	if expiry.IsZero() {
		return false
	}
	return now.After(expiry.Add(-window))
}
