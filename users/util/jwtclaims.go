package util

import (
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const ClaimsKey contextKey = "claims"

// AccessClaims are carried by every access token issued by the users service.
type AccessClaims struct {
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// UserID returns the numeric user id stored in the subject claim.
func (c *AccessClaims) UserID() (int, error) {
	return strconv.Atoi(c.Subject)
}

// IsAdmin reports whether the token was issued to an admin.
func (c *AccessClaims) IsAdmin() bool {
	return c.Role == "admin"
}
