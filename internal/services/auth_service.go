package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lumenclass/authcore/internal/fingerprint"
	"github.com/lumenclass/authcore/internal/models"
	"github.com/lumenclass/authcore/internal/ratelimit"
	pkgauth "github.com/lumenclass/authcore/pkg/auth"
	pkglogger "github.com/lumenclass/authcore/pkg/logger"
)

// UserRepository defines the interface for account lookups
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// LoginAttemptRepository defines the interface for the login history
type LoginAttemptRepository interface {
	Record(ctx context.Context, attempt *models.LoginAttempt) error
	GetByID(ctx context.Context, id string) (*models.LoginAttempt, error)
	ListByAccount(ctx context.Context, accountID string, limit int) ([]models.LoginAttempt, error)
	CountRecentFailuresByAccount(ctx context.Context, accountID string, since time.Time) (int, error)
}

// LoginRateLimiter is the domain sliding-window limiter in front of
// credential checking.
type LoginRateLimiter interface {
	Check(ctx context.Context, clientKey string) (ratelimit.Result, error)
	RecordAttempt(ctx context.Context, clientKey string) error
	Reset(ctx context.Context, clientKey string) error
}

// RiskAssessor scores a login attempt against account history.
type RiskAssessor interface {
	Assess(ctx context.Context, attempt *models.LoginAttempt, history []models.LoginAttempt, knownDevice bool) *models.RiskAssessment
}

// DeviceRegistry is the device-lifecycle surface the login flow needs.
type DeviceRegistry interface {
	RegisterOrTouch(ctx context.Context, accountID string, fp fingerprint.Fingerprint, ipAddress string, loc Location) (*models.TrustedDevice, bool, error)
	GetByFingerprint(ctx context.Context, accountID, fingerprintHash string) (*models.TrustedDevice, error)
	Trust(ctx context.Context, accountID, deviceID, ipAddress string) error
	TrustByFingerprint(ctx context.Context, accountID, fingerprintHash, ipAddress string) error
}

// ChallengeFlow is the two-factor surface the login flow needs.
type ChallengeFlow interface {
	Start(ctx context.Context, user *models.User, loginAttemptID string, trustDevice bool) (*models.TwoFactorChallenge, error)
	Verify(ctx context.Context, challengeID, code string) (*models.TwoFactorChallenge, error)
	Resend(ctx context.Context, challengeID string) error
}

// TokenIssuer mints session token pairs.
type TokenIssuer interface {
	Issue(ctx context.Context, user *models.User, params SessionIssueParams) (*models.TokenPair, error)
}

// FailureDelayer equalizes failure-path response times.
type FailureDelayer interface {
	WaitFrom(startTime time.Time, success bool)
}

// RateLimitedError carries the retry-after hint alongside the rate-limit
// sentinel.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many attempts, retry after %s", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error {
	return models.ErrRateLimited
}

// InvalidCodeError carries the coarse attempts-remaining count alongside the
// invalid-code sentinel, so clients can show how many tries are left.
type InvalidCodeError struct {
	AttemptsRemaining int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid code, %d attempts remaining", e.AttemptsRemaining)
}

func (e *InvalidCodeError) Unwrap() error {
	return models.ErrInvalidCode
}

// LoginRequest is the normalized input to the login flow.
type LoginRequest struct {
	Email       string
	Password    string
	Signals     fingerprint.Signals
	IPAddress   string
	UserAgent   string
	RememberMe  bool
	TrustDevice bool
}

// TwoFactorVerifyRequest completes a pending challenge.
type TwoFactorVerifyRequest struct {
	ChallengeID string
	Code        string
	TrustDevice bool
	RememberMe  bool
}

// LoginResult is the outcome of a credential-valid login: either a token
// pair, or a pending two-factor challenge.
type LoginResult struct {
	RequiresTwoFactor bool
	ChallengeID       string
	DeliveryMethod    string
	Tokens            *models.TokenPair
	Risk              *models.RiskAssessment
}

// repeatedFailureWindow and threshold drive the repeated-failures
// notification on the password-failure path.
const (
	repeatedFailureWindow    = 15 * time.Minute
	repeatedFailureThreshold = 3
	historyLookback          = 50
)

// AuthService orchestrates the adaptive login flow: rate limit, credential
// check, risk assessment, device registration, and either token issuance or
// a two-factor challenge.
type AuthService struct {
	users       UserRepository
	attempts    LoginAttemptRepository
	limiter     LoginRateLimiter
	risk        RiskAssessor
	devices     DeviceRegistry
	challenges  ChallengeFlow
	sessions    TokenIssuer
	notifier    Notifier
	locator     Locator
	delay       FailureDelayer
	retention   time.Duration
	rateWindow  time.Duration
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewAuthService(
	users UserRepository,
	attempts LoginAttemptRepository,
	limiter LoginRateLimiter,
	risk RiskAssessor,
	devices DeviceRegistry,
	challenges ChallengeFlow,
	sessions TokenIssuer,
	notifier Notifier,
	locator Locator,
	delay FailureDelayer,
	retention time.Duration,
	rateWindow time.Duration,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AuthService {
	return &AuthService{
		users:       users,
		attempts:    attempts,
		limiter:     limiter,
		risk:        risk,
		devices:     devices,
		challenges:  challenges,
		sessions:    sessions,
		notifier:    notifier,
		locator:     locator,
		delay:       delay,
		retention:   retention,
		rateWindow:  rateWindow,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

func loginKey(email string) string {
	return "login:" + email
}

// Login runs the full adaptive flow. The rate limit check precedes the
// password check, so a limited account is rejected regardless of whether
// the submitted password was correct.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	start := time.Now()

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, models.ErrUnauthorized
	}

	limit, err := s.limiter.Check(ctx, loginKey(email))
	if err != nil {
		s.logger.Error("rate limit check failed closed", slog.Any("error", err))
		return nil, models.ErrConnection
	}
	if !limit.Allowed {
		s.recordAttempt(ctx, nil, email, req, "", nil, false, "rate_limited")
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			IPAddress:     req.IPAddress,
			FailureReason: "rate_limited",
			Success:       false,
		})
		retryAfter := s.rateWindow
		if limit.LockedUntil != nil {
			retryAfter = time.Until(*limit.LockedUntil)
		}
		return nil, &RateLimitedError{RetryAfter: retryAfter}
	}

	fp := fingerprint.Derive(req.Signals)
	loc := s.locator.Locate(ctx, req.IPAddress)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Identical handling to a wrong password, including timing.
			s.failLogin(ctx, start, nil, email, req, fp.Hash, loc, "invalid_credentials")
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := validateAccountState(user); err != nil {
		s.failLogin(ctx, start, &user.ID, email, req, fp.Hash, loc, "account_blocked")
		return nil, err
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, req.Password); err != nil {
		s.failLogin(ctx, start, &user.ID, email, req, fp.Hash, loc, "invalid_credentials")
		s.notifyRepeatedFailures(ctx, user.ID, req.IPAddress)
		return nil, models.ErrUnauthorized
	}

	history, err := s.attempts.ListByAccount(ctx, user.ID, historyLookback)
	if err != nil {
		s.logger.Warn("login history unavailable, assessing without baseline", slog.Any("error", err))
		history = nil
	}

	attempt := s.buildAttempt(&user.ID, email, req, fp.Hash, loc)
	assessment := s.risk.Assess(ctx, attempt, history, deviceSeenInHistory(history, fp.Hash))

	if assessment.BlockAccess {
		attempt.Success = false
		reason := "risk_blocked"
		attempt.FailureReason = &reason
		s.record(ctx, attempt)
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_blocked",
			AccountID:     user.ID,
			IPAddress:     req.IPAddress,
			FailureReason: "risk_blocked",
			Success:       false,
		})
		s.dispatch(ctx, user.ID, models.EventSuspiciousLogin, models.EventMetadata{
			IPAddress: req.IPAddress,
			Country:   loc.Country,
			City:      loc.City,
			RiskScore: assessment.Score,
		})
		s.delay.WaitFrom(start, false)
		return nil, models.ErrLoginBlocked
	}

	device, isNew, err := s.devices.RegisterOrTouch(ctx, user.ID, fp, req.IPAddress, loc)
	if err != nil {
		s.logger.Error("failed to register device", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.notifyAnomalies(ctx, user.ID, device, isNew, assessment, req.IPAddress, loc)

	requireTwoFactor := (assessment.RequireAdditionalAuth || user.TwoFactorEnabled) && !device.Trusted

	if requireTwoFactor {
		reason := "two_factor_pending"
		attempt.Success = false
		attempt.FailureReason = &reason
		if err := s.record(ctx, attempt); err != nil {
			return nil, models.ErrInternalServer
		}

		challenge, err := s.challenges.Start(ctx, user, attempt.ID, req.TrustDevice)
		if err != nil {
			return nil, err
		}

		return &LoginResult{
			RequiresTwoFactor: true,
			ChallengeID:       challenge.ID,
			DeliveryMethod:    challenge.DeliveryMethod,
			Risk:              assessment,
		}, nil
	}

	attempt.Success = true
	if err := s.record(ctx, attempt); err != nil {
		return nil, models.ErrInternalServer
	}

	tokens, err := s.sessions.Issue(ctx, user, SessionIssueParams{
		DeviceFingerprint: fp.Hash,
		DeviceName:        device.FriendlyName,
		IPAddress:         req.IPAddress,
		UserAgent:         req.UserAgent,
		RememberMe:        req.RememberMe,
	})
	if err != nil {
		return nil, err
	}

	if req.TrustDevice && !device.Trusted {
		if err := s.devices.Trust(ctx, user.ID, device.ID, req.IPAddress); err != nil {
			s.logger.Warn("failed to trust device at login", slog.Any("error", err))
		}
	}

	if err := s.limiter.Reset(ctx, loginKey(email)); err != nil {
		s.logger.Warn("failed to reset rate limit after login", slog.Any("error", err))
	}

	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		AccountID: user.ID,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
		Success:   true,
	})

	return &LoginResult{Tokens: tokens, Risk: assessment}, nil
}

// CompleteTwoFactor verifies the challenge code and finishes the login the
// challenge was issued for.
func (s *AuthService) CompleteTwoFactor(ctx context.Context, req TwoFactorVerifyRequest) (*LoginResult, error) {
	challenge, err := s.challenges.Verify(ctx, req.ChallengeID, req.Code)
	if err != nil {
		if errors.Is(err, models.ErrInvalidCode) && challenge != nil {
			return nil, &InvalidCodeError{AttemptsRemaining: challenge.MaxAttempts - challenge.AttemptsUsed}
		}
		return nil, err
	}

	attempt, err := s.attempts.GetByID(ctx, challenge.LoginAttemptID)
	if err != nil {
		s.logger.Error("originating attempt missing for verified challenge",
			slog.String("challenge_id", challenge.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user, err := s.users.GetByID(ctx, challenge.AccountID)
	if err != nil {
		return nil, models.ErrInternalServer
	}
	if err := validateAccountState(user); err != nil {
		return nil, err
	}

	completed := *attempt
	completed.ID = ""
	completed.Success = true
	completed.FailureReason = nil
	completed.AttemptTime = time.Now()
	if err := s.record(ctx, &completed); err != nil {
		return nil, models.ErrInternalServer
	}

	deviceName := "Unknown device"
	device, err := s.devices.GetByFingerprint(ctx, user.ID, attempt.DeviceFingerprint)
	if err == nil {
		deviceName = device.FriendlyName
	}

	if challenge.TrustDeviceRequested || req.TrustDevice {
		if err := s.devices.TrustByFingerprint(ctx, user.ID, attempt.DeviceFingerprint, attempt.IPAddress); err != nil {
			s.logger.Warn("failed to trust device after verification", slog.Any("error", err))
		}
	}

	tokens, err := s.sessions.Issue(ctx, user, SessionIssueParams{
		DeviceFingerprint: attempt.DeviceFingerprint,
		DeviceName:        deviceName,
		IPAddress:         attempt.IPAddress,
		UserAgent:         attempt.UserAgent,
		RememberMe:        req.RememberMe,
	})
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Reset(ctx, loginKey(user.Email)); err != nil {
		s.logger.Warn("failed to reset rate limit after verification", slog.Any("error", err))
	}

	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		AccountID: user.ID,
		IPAddress: attempt.IPAddress,
		UserAgent: attempt.UserAgent,
		Success:   true,
		Metadata:  map[string]string{"two_factor": challenge.DeliveryMethod},
	})

	return &LoginResult{Tokens: tokens}, nil
}

// ResendCode redelivers the code for a pending challenge.
func (s *AuthService) ResendCode(ctx context.Context, challengeID string) error {
	return s.challenges.Resend(ctx, challengeID)
}

func (s *AuthService) buildAttempt(accountID *string, email string, req LoginRequest, fingerprintHash string, loc Location) *models.LoginAttempt {
	attempt := &models.LoginAttempt{
		AccountID:         accountID,
		Email:             email,
		IPAddress:         req.IPAddress,
		UserAgent:         req.UserAgent,
		DeviceFingerprint: fingerprintHash,
		AttemptTime:       time.Now(),
		ExpiresAt:         time.Now().Add(s.retention),
	}
	if loc.Country != "" {
		attempt.Country = &loc.Country
	}
	if loc.City != "" {
		attempt.City = &loc.City
	}
	return attempt
}

// failLogin is the shared failure path: count against the limiter, persist
// the attempt, audit, and burn the timing budget.
func (s *AuthService) failLogin(ctx context.Context, start time.Time, accountID *string, email string, req LoginRequest, fingerprintHash string, loc Location, reason string) {
	if err := s.limiter.RecordAttempt(ctx, loginKey(email)); err != nil {
		s.logger.Warn("failed to record rate limit attempt", slog.Any("error", err))
	}
	s.recordAttempt(ctx, accountID, email, req, fingerprintHash, &loc, false, reason)

	event := pkglogger.AuditEvent{
		EventType:     "login_failed",
		IPAddress:     req.IPAddress,
		UserAgent:     req.UserAgent,
		FailureReason: reason,
		Success:       false,
	}
	if accountID != nil {
		event.AccountID = *accountID
	}
	s.auditLogger.LogAuthAttempt(event)

	s.delay.WaitFrom(start, false)
}

func (s *AuthService) recordAttempt(ctx context.Context, accountID *string, email string, req LoginRequest, fingerprintHash string, loc *Location, success bool, reason string) {
	attempt := &models.LoginAttempt{
		AccountID:         accountID,
		Email:             email,
		IPAddress:         req.IPAddress,
		UserAgent:         req.UserAgent,
		DeviceFingerprint: fingerprintHash,
		AttemptTime:       time.Now(),
		Success:           success,
		ExpiresAt:         time.Now().Add(s.retention),
	}
	if reason != "" {
		attempt.FailureReason = &reason
	}
	if loc != nil {
		if loc.Country != "" {
			attempt.Country = &loc.Country
		}
		if loc.City != "" {
			attempt.City = &loc.City
		}
	}
	s.record(ctx, attempt)
}

func (s *AuthService) record(ctx context.Context, attempt *models.LoginAttempt) error {
	if err := s.attempts.Record(ctx, attempt); err != nil {
		s.logger.Error("failed to record login attempt", slog.Any("error", err))
		return err
	}
	return nil
}

func (s *AuthService) notifyRepeatedFailures(ctx context.Context, accountID, ipAddress string) {
	count, err := s.attempts.CountRecentFailuresByAccount(ctx, accountID, time.Now().Add(-repeatedFailureWindow))
	if err != nil {
		s.logger.Warn("failed to count recent failures", slog.Any("error", err))
		return
	}
	if count < repeatedFailureThreshold {
		return
	}
	s.dispatch(ctx, accountID, models.EventRepeatedFailures, models.EventMetadata{
		IPAddress:    ipAddress,
		FailureCount: count,
	})
}

func (s *AuthService) notifyAnomalies(ctx context.Context, accountID string, device *models.TrustedDevice, isNew bool, assessment *models.RiskAssessment, ipAddress string, loc Location) {
	if isNew {
		s.dispatch(ctx, accountID, models.EventNewDeviceLogin, models.EventMetadata{
			IPAddress:  ipAddress,
			DeviceName: device.FriendlyName,
			Country:    loc.Country,
			City:       loc.City,
			RiskScore:  assessment.Score,
		})
	}

	for _, factor := range assessment.Factors {
		if factor.Name == "new_country" || factor.Name == "unusual_country" {
			s.dispatch(ctx, accountID, models.EventNewLocationLogin, models.EventMetadata{
				IPAddress: ipAddress,
				Country:   loc.Country,
				City:      loc.City,
				RiskScore: assessment.Score,
			})
			break
		}
	}
}

func (s *AuthService) dispatch(ctx context.Context, accountID, eventType string, meta models.EventMetadata) {
	if err := s.notifier.Dispatch(ctx, accountID, eventType, meta); err != nil {
		s.logger.Warn("notification dispatch failed",
			slog.String("event_type", eventType),
			slog.Any("error", err))
	}
}

func deviceSeenInHistory(history []models.LoginAttempt, fingerprintHash string) bool {
	for _, a := range history {
		if a.Success && a.DeviceFingerprint == fingerprintHash {
			return true
		}
	}
	return false
}

// validateAccountState checks the account is eligible to authenticate.
func validateAccountState(user *models.User) error {
	switch user.Status {
	case "disabled":
		return models.ErrAccountDisabled
	case "suspended":
		return models.ErrAccountSuspended
	case "active":
	default:
		return fmt.Errorf("unknown account status: %s", user.Status)
	}

	if user.LockedUntil != nil && time.Now().Before(*user.LockedUntil) {
		return models.ErrAccountLocked
	}

	return nil
}
