package jwt

import "github.com/golang-jwt/jwt"

// Payload is the subset of access-token claims the client reads.
// The backend issues tokens whose subject is the user's handle.
type Payload struct {
	jwt.StandardClaims

	// Roles is populated when the backend includes authorities in the token.
	Roles []string `json:"roles,omitempty"`
}

// Handle returns the user handle carried in the subject claim.
func (p *Payload) Handle() string {
	return p.Subject
}
