package models

import "time"

// TrustedDevice is one row per (account, fingerprint hash). Created on the
// first successful login from a new fingerprint; `Trusted` flips true only
// through explicit user action or the "trust this device" checkbox on a 2FA
// verify. It never auto-downgrades.
type TrustedDevice struct {
	ID              string
	AccountID       string
	FingerprintHash string
	FriendlyName    string
	DeviceClass     string
	Trusted         bool
	FirstSeen       time.Time
	LastSeen        time.Time
	LastIP          string
	Country         *string
	City            *string
}
