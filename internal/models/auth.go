package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the claims carried by access tokens. Access tokens are
// JWTs for cheap integrity checking, but they are only honored after the
// referenced session row is confirmed active, so revocation stays
// authoritative on the server.
type TokenClaims struct {
	Type      string `json:"type"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Email     string `json:"email,omitempty"`
	jwt.RegisteredClaims
}
