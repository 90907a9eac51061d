package jwt

import "strings"

// AuthorizationHeader is the header carrying the bearer token, both on REST calls and on the
// STOMP CONNECT frame.
const AuthorizationHeader = "Authorization"

// BearerValue formats a token as an Authorization header value.
func BearerValue(token string) string {
	return "Bearer " + token
}

// ExtractBearer returns the token from an "Authorization: Bearer <token>" header value.
func ExtractBearer(headerValue string) (string, bool) {
	parts := strings.SplitN(headerValue, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
