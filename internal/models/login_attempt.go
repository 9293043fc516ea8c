package models

import "time"

// LoginAttempt is one row of the append-only login history. A record is
// written for every login POST regardless of outcome; the risk engine reads
// this history to build its per-account baseline.
type LoginAttempt struct {
	ID                string
	AccountID         *string // nil when the email did not resolve to an account
	Email             string
	IPAddress         string
	UserAgent         string
	DeviceFingerprint string
	Country           *string
	City              *string
	AttemptTime       time.Time
	Success           bool
	FailureReason     *string
	ExpiresAt         time.Time
}
