package services

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/lumenclass/authcore/internal/fingerprint"
	"github.com/lumenclass/authcore/internal/models"
	"github.com/lumenclass/authcore/internal/ratelimit"
	pkglogger "github.com/lumenclass/authcore/pkg/logger"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAuditLogger() *pkglogger.AuditLogger {
	return pkglogger.NewAuditLogger(newTestLogger())
}

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByEmailFunc func(ctx context.Context, email string) (*models.User, error)
	GetByIDFunc    func(ctx context.Context, id string) (*models.User, error)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

// MockLoginAttemptRepository implements LoginAttemptRepository for testing
type MockLoginAttemptRepository struct {
	RecordFunc                       func(ctx context.Context, attempt *models.LoginAttempt) error
	GetByIDFunc                      func(ctx context.Context, id string) (*models.LoginAttempt, error)
	ListByAccountFunc                func(ctx context.Context, accountID string, limit int) ([]models.LoginAttempt, error)
	CountRecentFailuresByAccountFunc func(ctx context.Context, accountID string, since time.Time) (int, error)

	Recorded []*models.LoginAttempt
}

func (m *MockLoginAttemptRepository) Record(ctx context.Context, attempt *models.LoginAttempt) error {
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, attempt)
	}
	attempt.ID = "attempt_test"
	m.Recorded = append(m.Recorded, attempt)
	return nil
}

func (m *MockLoginAttemptRepository) GetByID(ctx context.Context, id string) (*models.LoginAttempt, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockLoginAttemptRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]models.LoginAttempt, error) {
	if m.ListByAccountFunc != nil {
		return m.ListByAccountFunc(ctx, accountID, limit)
	}
	return []models.LoginAttempt{}, nil
}

func (m *MockLoginAttemptRepository) CountRecentFailuresByAccount(ctx context.Context, accountID string, since time.Time) (int, error) {
	if m.CountRecentFailuresByAccountFunc != nil {
		return m.CountRecentFailuresByAccountFunc(ctx, accountID, since)
	}
	return 0, nil
}

// MockAttemptHistoryRepository implements AttemptHistoryRepository for testing
type MockAttemptHistoryRepository struct {
	CountRecentByEmailFunc func(ctx context.Context, email string, since time.Time) (int, error)
	CountFailedByIPFunc    func(ctx context.Context, ipAddress string, since time.Time) (int, error)
}

func (m *MockAttemptHistoryRepository) CountRecentByEmail(ctx context.Context, email string, since time.Time) (int, error) {
	if m.CountRecentByEmailFunc != nil {
		return m.CountRecentByEmailFunc(ctx, email, since)
	}
	return 0, nil
}

func (m *MockAttemptHistoryRepository) CountFailedByIP(ctx context.Context, ipAddress string, since time.Time) (int, error) {
	if m.CountFailedByIPFunc != nil {
		return m.CountFailedByIPFunc(ctx, ipAddress, since)
	}
	return 0, nil
}

// MockLoginRateLimiter implements LoginRateLimiter for testing
type MockLoginRateLimiter struct {
	CheckFunc         func(ctx context.Context, clientKey string) (ratelimit.Result, error)
	RecordAttemptFunc func(ctx context.Context, clientKey string) error
	ResetFunc         func(ctx context.Context, clientKey string) error

	RecordedKeys []string
	ResetKeys    []string
}

func (m *MockLoginRateLimiter) Check(ctx context.Context, clientKey string) (ratelimit.Result, error) {
	if m.CheckFunc != nil {
		return m.CheckFunc(ctx, clientKey)
	}
	return ratelimit.Result{Allowed: true}, nil
}

func (m *MockLoginRateLimiter) RecordAttempt(ctx context.Context, clientKey string) error {
	if m.RecordAttemptFunc != nil {
		return m.RecordAttemptFunc(ctx, clientKey)
	}
	m.RecordedKeys = append(m.RecordedKeys, clientKey)
	return nil
}

func (m *MockLoginRateLimiter) Reset(ctx context.Context, clientKey string) error {
	if m.ResetFunc != nil {
		return m.ResetFunc(ctx, clientKey)
	}
	m.ResetKeys = append(m.ResetKeys, clientKey)
	return nil
}

// MockRiskAssessor implements RiskAssessor for testing
type MockRiskAssessor struct {
	AssessFunc func(ctx context.Context, attempt *models.LoginAttempt, history []models.LoginAttempt, knownDevice bool) *models.RiskAssessment
}

func (m *MockRiskAssessor) Assess(ctx context.Context, attempt *models.LoginAttempt, history []models.LoginAttempt, knownDevice bool) *models.RiskAssessment {
	if m.AssessFunc != nil {
		return m.AssessFunc(ctx, attempt, history, knownDevice)
	}
	return &models.RiskAssessment{Level: models.RiskLow, Factors: []models.RiskFactor{}}
}

// MockDeviceRegistry implements DeviceRegistry for testing
type MockDeviceRegistry struct {
	RegisterOrTouchFunc    func(ctx context.Context, accountID string, fp fingerprint.Fingerprint, ipAddress string, loc Location) (*models.TrustedDevice, bool, error)
	GetByFingerprintFunc   func(ctx context.Context, accountID, fingerprintHash string) (*models.TrustedDevice, error)
	TrustFunc              func(ctx context.Context, accountID, deviceID, ipAddress string) error
	TrustByFingerprintFunc func(ctx context.Context, accountID, fingerprintHash, ipAddress string) error

	TrustedIDs          []string
	TrustedFingerprints []string
}

func (m *MockDeviceRegistry) RegisterOrTouch(ctx context.Context, accountID string, fp fingerprint.Fingerprint, ipAddress string, loc Location) (*models.TrustedDevice, bool, error) {
	if m.RegisterOrTouchFunc != nil {
		return m.RegisterOrTouchFunc(ctx, accountID, fp, ipAddress, loc)
	}
	return &models.TrustedDevice{
		ID:              "device_test",
		AccountID:       accountID,
		FingerprintHash: fp.Hash,
		FriendlyName:    "Desktop - Windows - Chrome",
	}, false, nil
}

func (m *MockDeviceRegistry) GetByFingerprint(ctx context.Context, accountID, fingerprintHash string) (*models.TrustedDevice, error) {
	if m.GetByFingerprintFunc != nil {
		return m.GetByFingerprintFunc(ctx, accountID, fingerprintHash)
	}
	return nil, models.ErrNotFound
}

func (m *MockDeviceRegistry) Trust(ctx context.Context, accountID, deviceID, ipAddress string) error {
	if m.TrustFunc != nil {
		return m.TrustFunc(ctx, accountID, deviceID, ipAddress)
	}
	m.TrustedIDs = append(m.TrustedIDs, deviceID)
	return nil
}

func (m *MockDeviceRegistry) TrustByFingerprint(ctx context.Context, accountID, fingerprintHash, ipAddress string) error {
	if m.TrustByFingerprintFunc != nil {
		return m.TrustByFingerprintFunc(ctx, accountID, fingerprintHash, ipAddress)
	}
	m.TrustedFingerprints = append(m.TrustedFingerprints, fingerprintHash)
	return nil
}

// MockChallengeFlow implements ChallengeFlow for testing
type MockChallengeFlow struct {
	StartFunc  func(ctx context.Context, user *models.User, loginAttemptID string, trustDevice bool) (*models.TwoFactorChallenge, error)
	VerifyFunc func(ctx context.Context, challengeID, code string) (*models.TwoFactorChallenge, error)
	ResendFunc func(ctx context.Context, challengeID string) error
}

func (m *MockChallengeFlow) Start(ctx context.Context, user *models.User, loginAttemptID string, trustDevice bool) (*models.TwoFactorChallenge, error) {
	if m.StartFunc != nil {
		return m.StartFunc(ctx, user, loginAttemptID, trustDevice)
	}
	return &models.TwoFactorChallenge{
		ID:                   "challenge_test",
		AccountID:            user.ID,
		LoginAttemptID:       loginAttemptID,
		DeliveryMethod:       models.DeliveryEmail,
		Status:               models.ChallengePending,
		TrustDeviceRequested: trustDevice,
	}, nil
}

func (m *MockChallengeFlow) Verify(ctx context.Context, challengeID, code string) (*models.TwoFactorChallenge, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, challengeID, code)
	}
	return nil, models.ErrInvalidCode
}

func (m *MockChallengeFlow) Resend(ctx context.Context, challengeID string) error {
	if m.ResendFunc != nil {
		return m.ResendFunc(ctx, challengeID)
	}
	return nil
}

// MockTokenIssuer implements TokenIssuer for testing
type MockTokenIssuer struct {
	IssueFunc func(ctx context.Context, user *models.User, params SessionIssueParams) (*models.TokenPair, error)

	IssuedParams []SessionIssueParams
}

func (m *MockTokenIssuer) Issue(ctx context.Context, user *models.User, params SessionIssueParams) (*models.TokenPair, error) {
	if m.IssueFunc != nil {
		return m.IssueFunc(ctx, user, params)
	}
	m.IssuedParams = append(m.IssuedParams, params)
	return &models.TokenPair{
		AccessToken:  "access_" + user.ID,
		RefreshToken: "refresh_" + user.ID,
		SessionID:    "session_test",
		ExpiresIn:    900,
	}, nil
}

// MockNotifier implements Notifier for testing
type MockNotifier struct {
	DispatchFunc func(ctx context.Context, accountID, eventType string, meta models.EventMetadata) error

	Events []string
}

func (m *MockNotifier) Dispatch(ctx context.Context, accountID, eventType string, meta models.EventMetadata) error {
	if m.DispatchFunc != nil {
		return m.DispatchFunc(ctx, accountID, eventType, meta)
	}
	m.Events = append(m.Events, eventType)
	return nil
}

// MockSender implements Sender for testing
type MockSender struct {
	SendFunc func(ctx context.Context, destination, channel, subject, body string) error

	Sent []string // destinations
}

func (m *MockSender) Send(ctx context.Context, destination, channel, subject, body string) error {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, destination, channel, subject, body)
	}
	m.Sent = append(m.Sent, destination)
	return nil
}

// MockFailureDelayer is a no-op FailureDelayer so tests do not sleep
type MockFailureDelayer struct {
	Calls int
}

func (m *MockFailureDelayer) WaitFrom(startTime time.Time, success bool) {
	m.Calls++
}

// MockDeviceRepository implements DeviceRepository for testing
type MockDeviceRepository struct {
	UpsertFunc           func(ctx context.Context, device *models.TrustedDevice) (*models.TrustedDevice, error)
	GetByIDFunc          func(ctx context.Context, id, accountID string) (*models.TrustedDevice, error)
	GetByFingerprintFunc func(ctx context.Context, accountID, fingerprintHash string) (*models.TrustedDevice, error)
	ListFunc             func(ctx context.Context, accountID string) ([]models.TrustedDevice, error)
	SetTrustedFunc       func(ctx context.Context, id, accountID string, trusted bool) error
	DeleteFunc           func(ctx context.Context, id, accountID string) error
	DeleteAllExceptFunc  func(ctx context.Context, accountID, keepDeviceID string) (int64, error)
}

func (m *MockDeviceRepository) Upsert(ctx context.Context, device *models.TrustedDevice) (*models.TrustedDevice, error) {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, device)
	}
	device.ID = "device_test"
	return device, nil
}

func (m *MockDeviceRepository) GetByID(ctx context.Context, id, accountID string) (*models.TrustedDevice, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id, accountID)
	}
	return nil, models.ErrNotFound
}

func (m *MockDeviceRepository) GetByFingerprint(ctx context.Context, accountID, fingerprintHash string) (*models.TrustedDevice, error) {
	if m.GetByFingerprintFunc != nil {
		return m.GetByFingerprintFunc(ctx, accountID, fingerprintHash)
	}
	return nil, models.ErrNotFound
}

func (m *MockDeviceRepository) List(ctx context.Context, accountID string) ([]models.TrustedDevice, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, accountID)
	}
	return []models.TrustedDevice{}, nil
}

func (m *MockDeviceRepository) SetTrusted(ctx context.Context, id, accountID string, trusted bool) error {
	if m.SetTrustedFunc != nil {
		return m.SetTrustedFunc(ctx, id, accountID, trusted)
	}
	return nil
}

func (m *MockDeviceRepository) Delete(ctx context.Context, id, accountID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id, accountID)
	}
	return nil
}

func (m *MockDeviceRepository) DeleteAllExcept(ctx context.Context, accountID, keepDeviceID string) (int64, error) {
	if m.DeleteAllExceptFunc != nil {
		return m.DeleteAllExceptFunc(ctx, accountID, keepDeviceID)
	}
	return 0, nil
}

// MockSessionRevoker implements SessionRevoker for testing
type MockSessionRevoker struct {
	DeactivateByFingerprintFunc func(ctx context.Context, accountID, fingerprintHash string) (int64, error)

	RevokedFingerprints []string
}

func (m *MockSessionRevoker) DeactivateByFingerprint(ctx context.Context, accountID, fingerprintHash string) (int64, error) {
	if m.DeactivateByFingerprintFunc != nil {
		return m.DeactivateByFingerprintFunc(ctx, accountID, fingerprintHash)
	}
	m.RevokedFingerprints = append(m.RevokedFingerprints, fingerprintHash)
	return 1, nil
}

// MockSessionRepository implements SessionRepository for testing
type MockSessionRepository struct {
	CreateFunc                   func(ctx context.Context, session *models.Session) error
	GetByIDFunc                  func(ctx context.Context, id string) (*models.Session, error)
	GetByRefreshHashFunc         func(ctx context.Context, hash string) (*models.Session, error)
	GetByPreviousRefreshHashFunc func(ctx context.Context, hash string) (*models.Session, error)
	RotateRefreshFunc            func(ctx context.Context, sessionID, currentHash, nextHash, nextAccessTokenID string, nextExpiry time.Time) error
	IsSessionActiveFunc          func(ctx context.Context, sessionID string) (bool, error)
	ListActiveFunc               func(ctx context.Context, accountID string) ([]models.Session, error)
	DeactivateFunc               func(ctx context.Context, sessionID, accountID string) error
	DeactivateAllFunc            func(ctx context.Context, accountID string) (int64, error)
	DeactivateAllExceptFunc      func(ctx context.Context, accountID, keepSessionID string) (int64, error)
	DeactivateByFingerprintFunc  func(ctx context.Context, accountID, fingerprintHash string) (int64, error)

	Created []*models.Session
}

func (m *MockSessionRepository) Create(ctx context.Context, session *models.Session) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, session)
	}
	if session.ID == "" {
		session.ID = "session_test"
	}
	session.IsActive = true
	m.Created = append(m.Created, session)
	return nil
}

func (m *MockSessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockSessionRepository) GetByRefreshHash(ctx context.Context, hash string) (*models.Session, error) {
	if m.GetByRefreshHashFunc != nil {
		return m.GetByRefreshHashFunc(ctx, hash)
	}
	return nil, models.ErrNotFound
}

func (m *MockSessionRepository) GetByPreviousRefreshHash(ctx context.Context, hash string) (*models.Session, error) {
	if m.GetByPreviousRefreshHashFunc != nil {
		return m.GetByPreviousRefreshHashFunc(ctx, hash)
	}
	return nil, models.ErrNotFound
}

func (m *MockSessionRepository) RotateRefresh(ctx context.Context, sessionID, currentHash, nextHash, nextAccessTokenID string, nextExpiry time.Time) error {
	if m.RotateRefreshFunc != nil {
		return m.RotateRefreshFunc(ctx, sessionID, currentHash, nextHash, nextAccessTokenID, nextExpiry)
	}
	return nil
}

func (m *MockSessionRepository) IsSessionActive(ctx context.Context, sessionID string) (bool, error) {
	if m.IsSessionActiveFunc != nil {
		return m.IsSessionActiveFunc(ctx, sessionID)
	}
	return true, nil
}

func (m *MockSessionRepository) ListActive(ctx context.Context, accountID string) ([]models.Session, error) {
	if m.ListActiveFunc != nil {
		return m.ListActiveFunc(ctx, accountID)
	}
	return []models.Session{}, nil
}

func (m *MockSessionRepository) Deactivate(ctx context.Context, sessionID, accountID string) error {
	if m.DeactivateFunc != nil {
		return m.DeactivateFunc(ctx, sessionID, accountID)
	}
	return nil
}

func (m *MockSessionRepository) DeactivateAll(ctx context.Context, accountID string) (int64, error) {
	if m.DeactivateAllFunc != nil {
		return m.DeactivateAllFunc(ctx, accountID)
	}
	return 0, nil
}

func (m *MockSessionRepository) DeactivateAllExcept(ctx context.Context, accountID, keepSessionID string) (int64, error) {
	if m.DeactivateAllExceptFunc != nil {
		return m.DeactivateAllExceptFunc(ctx, accountID, keepSessionID)
	}
	return 0, nil
}

func (m *MockSessionRepository) DeactivateByFingerprint(ctx context.Context, accountID, fingerprintHash string) (int64, error) {
	if m.DeactivateByFingerprintFunc != nil {
		return m.DeactivateByFingerprintFunc(ctx, accountID, fingerprintHash)
	}
	return 0, nil
}

// MockChallengeRepository implements ChallengeRepository for testing
type MockChallengeRepository struct {
	CreateFunc              func(ctx context.Context, challenge *models.TwoFactorChallenge) error
	GetByIDFunc             func(ctx context.Context, id string) (*models.TwoFactorChallenge, error)
	IncrementAttemptsFunc   func(ctx context.Context, id string) (int, error)
	MarkStatusFunc          func(ctx context.Context, id, status string) error
	UpdateCodeForResendFunc func(ctx context.Context, id, codeHash string) error

	Statuses map[string]string
}

func (m *MockChallengeRepository) Create(ctx context.Context, challenge *models.TwoFactorChallenge) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, challenge)
	}
	challenge.ID = "challenge_test"
	challenge.Status = models.ChallengePending
	return nil
}

func (m *MockChallengeRepository) GetByID(ctx context.Context, id string) (*models.TwoFactorChallenge, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockChallengeRepository) IncrementAttempts(ctx context.Context, id string) (int, error) {
	if m.IncrementAttemptsFunc != nil {
		return m.IncrementAttemptsFunc(ctx, id)
	}
	return 1, nil
}

func (m *MockChallengeRepository) MarkStatus(ctx context.Context, id, status string) error {
	if m.MarkStatusFunc != nil {
		return m.MarkStatusFunc(ctx, id, status)
	}
	if m.Statuses == nil {
		m.Statuses = map[string]string{}
	}
	m.Statuses[id] = status
	return nil
}

func (m *MockChallengeRepository) UpdateCodeForResend(ctx context.Context, id, codeHash string) error {
	if m.UpdateCodeForResendFunc != nil {
		return m.UpdateCodeForResendFunc(ctx, id, codeHash)
	}
	return nil
}

// MockTOTPDirectory implements TOTPDirectory for testing
type MockTOTPDirectory struct {
	GetByIDFunc                func(ctx context.Context, id string) (*models.User, error)
	GetTOTPDeviceFunc          func(ctx context.Context, userID string) (*models.TOTPDevice, error)
	CreateTOTPDeviceFunc       func(ctx context.Context, device *models.TOTPDevice) error
	MarkTOTPDeviceVerifiedFunc func(ctx context.Context, deviceID string) error
	TouchTOTPDeviceFunc        func(ctx context.Context, deviceID string) error
	SetTwoFactorEnabledFunc    func(ctx context.Context, id string, enabled bool) error
}

func (m *MockTOTPDirectory) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockTOTPDirectory) GetTOTPDevice(ctx context.Context, userID string) (*models.TOTPDevice, error) {
	if m.GetTOTPDeviceFunc != nil {
		return m.GetTOTPDeviceFunc(ctx, userID)
	}
	return nil, models.ErrNotFound
}

func (m *MockTOTPDirectory) CreateTOTPDevice(ctx context.Context, device *models.TOTPDevice) error {
	if m.CreateTOTPDeviceFunc != nil {
		return m.CreateTOTPDeviceFunc(ctx, device)
	}
	device.ID = "totp_device_test"
	return nil
}

func (m *MockTOTPDirectory) MarkTOTPDeviceVerified(ctx context.Context, deviceID string) error {
	if m.MarkTOTPDeviceVerifiedFunc != nil {
		return m.MarkTOTPDeviceVerifiedFunc(ctx, deviceID)
	}
	return nil
}

func (m *MockTOTPDirectory) TouchTOTPDevice(ctx context.Context, deviceID string) error {
	if m.TouchTOTPDeviceFunc != nil {
		return m.TouchTOTPDeviceFunc(ctx, deviceID)
	}
	return nil
}

func (m *MockTOTPDirectory) SetTwoFactorEnabled(ctx context.Context, id string, enabled bool) error {
	if m.SetTwoFactorEnabledFunc != nil {
		return m.SetTwoFactorEnabledFunc(ctx, id, enabled)
	}
	return nil
}

// MockNotificationRepository implements NotificationRepository for testing
type MockNotificationRepository struct {
	CreateFunc        func(ctx context.Context, notification *models.SecurityNotification) error
	ListByAccountFunc func(ctx context.Context, accountID string, limit int) ([]models.SecurityNotification, error)
	MarkReadFunc      func(ctx context.Context, id, accountID string) error
	MarkEmailedFunc   func(ctx context.Context, id string) error

	Created []*models.SecurityNotification
	Emailed []string
}

func (m *MockNotificationRepository) Create(ctx context.Context, notification *models.SecurityNotification) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, notification)
	}
	notification.ID = "notification_test"
	m.Created = append(m.Created, notification)
	return nil
}

func (m *MockNotificationRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]models.SecurityNotification, error) {
	if m.ListByAccountFunc != nil {
		return m.ListByAccountFunc(ctx, accountID, limit)
	}
	return []models.SecurityNotification{}, nil
}

func (m *MockNotificationRepository) MarkRead(ctx context.Context, id, accountID string) error {
	if m.MarkReadFunc != nil {
		return m.MarkReadFunc(ctx, id, accountID)
	}
	return nil
}

func (m *MockNotificationRepository) MarkEmailed(ctx context.Context, id string) error {
	if m.MarkEmailedFunc != nil {
		return m.MarkEmailedFunc(ctx, id)
	}
	m.Emailed = append(m.Emailed, id)
	return nil
}

// staticLocation is a Locator that always answers the same location.
type staticLocation struct {
	loc Location
}

func (s staticLocation) Locate(_ context.Context, _ string) Location {
	return s.loc
}

// Test data builders

func NewTestUser(id, email, name string) *models.User {
	now := time.Now()
	return &models.User{
		ID:        id,
		Email:     email,
		Name:      name,
		Role:      "student",
		Status:    "active",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func NewTestUserWithPassword(id, email, name, passwordHash string) *models.User {
	user := NewTestUser(id, email, name)
	user.PasswordHash = passwordHash
	return user
}

func NewTestUserWithStatus(id, email, name, status string) *models.User {
	user := NewTestUser(id, email, name)
	user.Status = status
	return user
}

func NewTestAttempt(accountID, email, ip, userAgent, fingerprintHash string, success bool, at time.Time) models.LoginAttempt {
	return models.LoginAttempt{
		ID:                "attempt_" + at.Format("150405.000"),
		AccountID:         &accountID,
		Email:             email,
		IPAddress:         ip,
		UserAgent:         userAgent,
		DeviceFingerprint: fingerprintHash,
		AttemptTime:       at,
		Success:           success,
		ExpiresAt:         at.Add(90 * 24 * time.Hour),
	}
}

func NewTestAttemptWithCountry(accountID, email, country string, success bool, at time.Time) models.LoginAttempt {
	attempt := NewTestAttempt(accountID, email, "203.0.113.10", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36", "fp_known", success, at)
	attempt.Country = &country
	return attempt
}

func NewTestChallenge(id, accountID, attemptID, codeHash string, expiresAt time.Time) *models.TwoFactorChallenge {
	return &models.TwoFactorChallenge{
		ID:             id,
		AccountID:      accountID,
		LoginAttemptID: attemptID,
		CodeHash:       codeHash,
		DeliveryMethod: models.DeliveryEmail,
		Status:         models.ChallengePending,
		ExpiresAt:      expiresAt,
		MaxAttempts:    5,
		CreatedAt:      time.Now(),
		LastSentAt:     time.Now(),
	}
}
