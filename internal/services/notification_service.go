package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lumenclass/authcore/internal/models"
)

// NotificationRepository defines the interface for stored security alerts
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.SecurityNotification) error
	ListByAccount(ctx context.Context, accountID string, limit int) ([]models.SecurityNotification, error)
	MarkRead(ctx context.Context, id, accountID string) error
	MarkEmailed(ctx context.Context, id string) error
}

// AccountEmailResolver looks up the destination address for email dispatch.
type AccountEmailResolver interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// eventTemplate fixes severity and copy per event type.
type eventTemplate struct {
	severity string
	title    string
	message  string
}

var eventTemplates = map[string]eventTemplate{
	models.EventNewDeviceLogin: {
		severity: models.SeverityWarning,
		title:    "New device signed in",
		message:  "Your account was accessed from a device we haven't seen before. If this wasn't you, change your password and review your devices.",
	},
	models.EventNewLocationLogin: {
		severity: models.SeverityWarning,
		title:    "Sign-in from a new location",
		message:  "Your account was accessed from a location you haven't signed in from before. If this wasn't you, change your password.",
	},
	models.EventSuspiciousLogin: {
		severity: models.SeverityCritical,
		title:    "Suspicious sign-in blocked",
		message:  "A sign-in attempt on your account looked suspicious. We recommend changing your password and reviewing recent activity.",
	},
	models.EventPasswordChanged: {
		severity: models.SeverityCritical,
		title:    "Your password was changed",
		message:  "The password for your account was just changed. If you didn't do this, contact support immediately.",
	},
	models.EventTwoFactorToggled: {
		severity: models.SeverityCritical,
		title:    "Two-factor authentication setting changed",
		message:  "Two-factor authentication was turned on or off for your account. If you didn't do this, contact support immediately.",
	},
	models.EventDeviceRemoved: {
		severity: models.SeverityInfo,
		title:    "Device removed",
		message:  "A device was removed from your account and its sessions were signed out.",
	},
	models.EventRepeatedFailures: {
		severity: models.SeverityWarning,
		title:    "Repeated failed sign-in attempts",
		message:  "There have been several failed attempts to sign in to your account. If this wasn't you, no action is needed; the attempts did not succeed.",
	},
}

// Warning-severity events that are still emailed. Criticals are always
// emailed; everything else stays in-app only to avoid alert fatigue.
var emailedWarnings = map[string]bool{
	models.EventNewDeviceLogin:   true,
	models.EventNewLocationLogin: true,
	models.EventRepeatedFailures: true,
	models.EventSuspiciousLogin:  true,
}

// NotificationService maps security events to stored notifications and
// conditionally emails them. Persistence is the primary effect; email is
// best effort and a send failure never fails Dispatch.
type NotificationService struct {
	notifications NotificationRepository
	accounts      AccountEmailResolver
	sender        Sender
	logger        *slog.Logger
}

func NewNotificationService(notifications NotificationRepository, accounts AccountEmailResolver, sender Sender, logger *slog.Logger) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		accounts:      accounts,
		sender:        sender,
		logger:        logger,
	}
}

// Dispatch persists the event and emails it when policy says so. The
// returned error covers persistence only.
func (s *NotificationService) Dispatch(ctx context.Context, accountID, eventType string, meta models.EventMetadata) error {
	tpl, ok := eventTemplates[eventType]
	if !ok {
		return fmt.Errorf("unknown notification event type: %s", eventType)
	}

	notification := &models.SecurityNotification{
		AccountID: accountID,
		EventType: eventType,
		Severity:  tpl.severity,
		Title:     tpl.title,
		Message:   tpl.message,
		Metadata:  meta,
	}

	if err := s.notifications.Create(ctx, notification); err != nil {
		return err
	}

	if !s.shouldEmail(eventType, tpl.severity) {
		return nil
	}

	user, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		s.logger.Warn("notification email skipped, account lookup failed",
			slog.String("account_id", accountID),
			slog.Any("error", err))
		return nil
	}

	body := tpl.message + describeMetadata(meta)
	if err := s.sender.Send(ctx, user.Email, models.DeliveryEmail, tpl.title, body); err != nil {
		s.logger.Warn("notification email delivery failed",
			slog.String("account_id", accountID),
			slog.String("event_type", eventType),
			slog.Any("error", err))
		return nil
	}

	if err := s.notifications.MarkEmailed(ctx, notification.ID); err != nil {
		s.logger.Warn("failed to mark notification emailed",
			slog.String("notification_id", notification.ID),
			slog.Any("error", err))
	}
	return nil
}

func (s *NotificationService) List(ctx context.Context, accountID string, limit int) ([]models.SecurityNotification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.notifications.ListByAccount(ctx, accountID, limit)
}

func (s *NotificationService) MarkRead(ctx context.Context, id, accountID string) error {
	return s.notifications.MarkRead(ctx, id, accountID)
}

func (s *NotificationService) shouldEmail(eventType, severity string) bool {
	if severity == models.SeverityCritical {
		return true
	}
	return severity == models.SeverityWarning && emailedWarnings[eventType]
}

func describeMetadata(meta models.EventMetadata) string {
	detail := ""
	if meta.DeviceName != "" {
		detail += "\n\nDevice: " + meta.DeviceName
	}
	if meta.IPAddress != "" {
		detail += "\nIP address: " + meta.IPAddress
	}
	if meta.Country != "" {
		location := meta.Country
		if meta.City != "" {
			location = meta.City + ", " + meta.Country
		}
		detail += "\nLocation: " + location
	}
	return detail
}
