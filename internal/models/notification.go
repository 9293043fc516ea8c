package models

import "time"

// Security event types recognized by the notification dispatcher.
const (
	EventNewDeviceLogin    = "new_device_login"
	EventNewLocationLogin  = "new_location_login"
	EventSuspiciousLogin   = "suspicious_login"
	EventPasswordChanged   = "password_changed"
	EventTwoFactorToggled  = "two_factor_toggled"
	EventDeviceRemoved     = "device_removed"
	EventRepeatedFailures  = "repeated_failures"
)

// Notification severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// EventMetadata carries the structured detail attached to a security
// notification. Known fields are typed; Extra holds event-specific additions
// so serialization stays deterministic.
type EventMetadata struct {
	IPAddress    string            `json:"ip_address,omitempty"`
	DeviceName   string            `json:"device_name,omitempty"`
	Country      string            `json:"country,omitempty"`
	City         string            `json:"city,omitempty"`
	RiskScore    int               `json:"risk_score,omitempty"`
	FailureCount int               `json:"failure_count,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// SecurityNotification is a stored, user-facing security alert. Every event
// is persisted; only critical (and an allow-list of warning) events are also
// emailed.
type SecurityNotification struct {
	ID        string
	AccountID string
	EventType string
	Severity  string
	Title     string
	Message   string
	Metadata  EventMetadata
	Emailed   bool
	ReadAt    *time.Time
	CreatedAt time.Time
}
