package models

import "time"

// Session is the server-side record backing an access/refresh token pair.
// Refresh hashes are SHA-256 of the opaque token string. PreviousRefreshHash
// keeps the last rotated-out hash so a replay of a consumed token can be
// recognized as reuse rather than as a plain miss.
type Session struct {
	ID                  string
	AccountID           string
	DeviceFingerprint   string
	DeviceName          string
	AccessTokenID       string
	RefreshTokenHash    string
	PreviousRefreshHash *string
	IPAddress           string
	UserAgent           string
	CreatedAt           time.Time
	LastAccessed        time.Time
	ExpiresAt           time.Time
	IsActive            bool
}

// TokenPair is what the session manager hands back to the web tier.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	SessionID    string `json:"session_id"`
	ExpiresIn    int64  `json:"expires_in"` // Access token lifetime in seconds
}
