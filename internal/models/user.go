package models

import (
	"time"
)

type User struct {
	ID                string
	Email             string
	PasswordHash      string
	Name              string
	Role              string // e.g., "student", "instructor", "admin"
	Status            string // "active", "suspended", "disabled"
	TwoFactorEnabled  bool
	PhoneNumber       *string // Destination for SMS challenges, E.164
	LockedUntil       *time.Time
	PasswordChangedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TOTPDevice is an enrolled authenticator-app device for a user.
// The secret is stored AES-256-GCM encrypted; VerifiedAt is nil until the
// first code has been validated during enrollment.
type TOTPDevice struct {
	ID              string
	UserID          string
	SecretEncrypted []byte
	SecretNonce     []byte
	LastUsedAt      *time.Time
	VerifiedAt      *time.Time
	CreatedAt       time.Time
}

func (d *TOTPDevice) IsVerified() bool {
	return d.VerifiedAt != nil
}
