package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenClaims represents the typed JWT presented by shoppers. The
// subject carries the user id.
type AccessTokenClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}
