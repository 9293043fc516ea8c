package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lumenclass/authcore/internal/fingerprint"
	"github.com/lumenclass/authcore/internal/models"
	pkglogger "github.com/lumenclass/authcore/pkg/logger"
)

// DeviceRepository defines the interface for device persistence
type DeviceRepository interface {
	Upsert(ctx context.Context, device *models.TrustedDevice) (*models.TrustedDevice, error)
	GetByID(ctx context.Context, id, accountID string) (*models.TrustedDevice, error)
	GetByFingerprint(ctx context.Context, accountID, fingerprintHash string) (*models.TrustedDevice, error)
	List(ctx context.Context, accountID string) ([]models.TrustedDevice, error)
	SetTrusted(ctx context.Context, id, accountID string, trusted bool) error
	Delete(ctx context.Context, id, accountID string) error
	DeleteAllExcept(ctx context.Context, accountID, keepDeviceID string) (int64, error)
}

// SessionRevoker is the session-side cascade hook: revoking a device must
// also kill its live sessions.
type SessionRevoker interface {
	DeactivateByFingerprint(ctx context.Context, accountID, fingerprintHash string) (int64, error)
}

// Notifier dispatches security notifications. Implementations must treat
// delivery as best effort; Dispatch errors are logged, never propagated into
// the primary operation.
type Notifier interface {
	Dispatch(ctx context.Context, accountID, eventType string, meta models.EventMetadata) error
}

// DeviceService manages the per-account device registry.
type DeviceService struct {
	devices     DeviceRepository
	sessions    SessionRevoker
	notifier    Notifier
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewDeviceService(devices DeviceRepository, sessions SessionRevoker, notifier Notifier, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *DeviceService {
	return &DeviceService{
		devices:     devices,
		sessions:    sessions,
		notifier:    notifier,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// RegisterOrTouch records a sighting of the device. First sight inserts an
// untrusted record with a generated friendly name; repeats only move
// last_seen/last_ip/location. Returns the device and whether it was new.
func (s *DeviceService) RegisterOrTouch(ctx context.Context, accountID string, fp fingerprint.Fingerprint, ipAddress string, loc Location) (*models.TrustedDevice, bool, error) {
	isNew := false
	_, err := s.devices.GetByFingerprint(ctx, accountID, fp.Hash)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			return nil, false, err
		}
		isNew = true
	}

	device := &models.TrustedDevice{
		AccountID:       accountID,
		FingerprintHash: fp.Hash,
		FriendlyName:    friendlyName(fp),
		DeviceClass:     fp.DeviceClass,
		LastIP:          ipAddress,
	}
	if loc.Country != "" {
		device.Country = &loc.Country
	}
	if loc.City != "" {
		device.City = &loc.City
	}

	saved, err := s.devices.Upsert(ctx, device)
	if err != nil {
		return nil, false, err
	}

	if isNew {
		s.logger.Info("new device registered",
			slog.String("account_id", accountID),
			slog.String("device_id", saved.ID),
			slog.String("device_class", saved.DeviceClass))
	}

	return saved, isNew, nil
}

func (s *DeviceService) List(ctx context.Context, accountID string) ([]models.TrustedDevice, error) {
	return s.devices.List(ctx, accountID)
}

func (s *DeviceService) GetByFingerprint(ctx context.Context, accountID, fingerprintHash string) (*models.TrustedDevice, error) {
	return s.devices.GetByFingerprint(ctx, accountID, fingerprintHash)
}

// Trust marks the device as exempt from additional-factor challenges.
func (s *DeviceService) Trust(ctx context.Context, accountID, deviceID, ipAddress string) error {
	if err := s.devices.SetTrusted(ctx, deviceID, accountID, true); err != nil {
		return err
	}

	s.auditLogger.LogSecurityAction("device_trusted", accountID, ipAddress, map[string]string{
		"device_id": deviceID,
	})
	return nil
}

// TrustByFingerprint trusts the device matching a fingerprint hash, used
// when a 2FA verification carried a trust-device request.
func (s *DeviceService) TrustByFingerprint(ctx context.Context, accountID, fingerprintHash, ipAddress string) error {
	device, err := s.devices.GetByFingerprint(ctx, accountID, fingerprintHash)
	if err != nil {
		return err
	}
	return s.Trust(ctx, accountID, device.ID, ipAddress)
}

// Revoke removes the device and deactivates every session tied to its
// fingerprint, so a removed device cannot keep using an issued token.
func (s *DeviceService) Revoke(ctx context.Context, accountID, deviceID, ipAddress string) error {
	device, err := s.devices.GetByID(ctx, deviceID, accountID)
	if err != nil {
		return err
	}

	if err := s.devices.Delete(ctx, deviceID, accountID); err != nil {
		return err
	}

	revoked, err := s.sessions.DeactivateByFingerprint(ctx, accountID, device.FingerprintHash)
	if err != nil {
		// Registry delete already happened; surface the partial failure
		// loudly, the cleanup job will not recover these sessions.
		s.logger.Error("device revoked but session cascade failed",
			slog.String("account_id", accountID),
			slog.String("device_id", deviceID),
			slog.Any("error", err))
		return err
	}

	s.auditLogger.LogSecurityAction("device_revoked", accountID, ipAddress, map[string]string{
		"device_id":        deviceID,
		"sessions_revoked": fmt.Sprintf("%d", revoked),
	})

	if err := s.notifier.Dispatch(ctx, accountID, models.EventDeviceRemoved, models.EventMetadata{
		IPAddress:  ipAddress,
		DeviceName: device.FriendlyName,
	}); err != nil {
		s.logger.Warn("device removal notification failed", slog.Any("error", err))
	}

	return nil
}

// RevokeAllExcept removes every registered device other than the current
// one, cascading session deactivation per device.
func (s *DeviceService) RevokeAllExcept(ctx context.Context, accountID, currentDeviceID, ipAddress string) error {
	devices, err := s.devices.List(ctx, accountID)
	if err != nil {
		return err
	}

	for _, device := range devices {
		if device.ID == currentDeviceID {
			continue
		}
		if _, err := s.sessions.DeactivateByFingerprint(ctx, accountID, device.FingerprintHash); err != nil {
			return err
		}
	}

	removed, err := s.devices.DeleteAllExcept(ctx, accountID, currentDeviceID)
	if err != nil {
		return err
	}

	s.auditLogger.LogSecurityAction("devices_revoked_all", accountID, ipAddress, map[string]string{
		"devices_removed": fmt.Sprintf("%d", removed),
		"kept_device_id":  currentDeviceID,
	})
	return nil
}

// friendlyName builds "deviceClass - os - browser", falling back to a
// generic label when nothing was classified.
func friendlyName(fp fingerprint.Fingerprint) string {
	if fp.Browser == "Unknown" && fp.OS == "Unknown" {
		return "Unknown device"
	}
	return fmt.Sprintf("%s - %s - %s", fp.DeviceClass, fp.OS, fp.Browser)
}
