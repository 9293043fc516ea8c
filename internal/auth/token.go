package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lumenclass/authcore/internal/models"
)

// TokenManager issues and validates access tokens, and generates the opaque
// refresh tokens that back them. Access tokens are short-lived HS256 JWTs
// carrying the session ID; they are never trusted on signature alone — the
// session row must still be active. Refresh tokens are opaque random
// strings; only their SHA-256 hash is persisted.
type TokenManager struct {
	secret            string
	accessTokenExpiry time.Duration
}

func NewTokenManager(secret string, accessExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:            secret,
		accessTokenExpiry: accessExpiry,
	}
}

func (tm *TokenManager) AccessTokenExpiry() time.Duration {
	return tm.accessTokenExpiry
}

// GenerateAccessToken creates a short-lived access token bound to a session.
// Returns the signed token and its JTI.
func (tm *TokenManager) GenerateAccessToken(userID, email, sessionID string) (string, string, error) {
	jti := uuid.New().String()

	claims := &models.TokenClaims{
		Type:      "access",
		UserID:    userID,
		SessionID: sessionID,
		Email:     email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tm.accessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(tm.secret))
	if err != nil {
		return "", "", fmt.Errorf("failed to sign access token: %w", err)
	}

	return tokenString, jti, nil
}

// ValidateAccessToken verifies signature and expiry and returns the claims.
// Callers must additionally confirm the referenced session is active.
func (tm *TokenManager) ValidateAccessToken(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(tm.secret), nil
	})
	if err != nil {
		return nil, models.ErrTokenInvalid
	}

	if !token.Valid {
		return nil, models.ErrTokenInvalid
	}

	if claims.Type != "access" {
		return nil, models.ErrTokenInvalid
	}
	if claims.SessionID == "" {
		return nil, models.ErrTokenInvalid
	}

	return claims, nil
}

// HashToken derives the storable digest of an opaque token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
