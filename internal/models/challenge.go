package models

import "time"

// Challenge states. PENDING is the only non-terminal state; every terminal
// state is one-shot and a resolved challenge never transitions again.
const (
	ChallengePending   = "pending"
	ChallengeVerified  = "verified"
	ChallengeExpired   = "expired"
	ChallengeExhausted = "exhausted"
	ChallengeCancelled = "cancelled"
)

// Delivery methods for one-time codes.
const (
	DeliveryEmail = "email"
	DeliverySMS   = "sms"
	DeliveryTOTP  = "totp" // Verified against the enrolled authenticator, nothing is sent
)

// TwoFactorChallenge is a time-boxed one-time-code challenge issued when risk
// assessment requires a second factor. Only the bcrypt hash of the code is
// stored.
type TwoFactorChallenge struct {
	ID                   string
	AccountID            string
	LoginAttemptID       string
	CodeHash             string
	DeliveryMethod       string
	Status               string
	ExpiresAt            time.Time
	AttemptsUsed         int
	MaxAttempts          int
	TrustDeviceRequested bool
	CreatedAt            time.Time
	LastSentAt           time.Time
}

func (c *TwoFactorChallenge) IsTerminal() bool {
	return c.Status != ChallengePending
}
