package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/lumenclass/authcore/internal/auth"
	"github.com/lumenclass/authcore/internal/models"
	pkgauth "github.com/lumenclass/authcore/pkg/auth"
	pkglogger "github.com/lumenclass/authcore/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// ChallengeRepository defines the interface for two-factor challenge persistence
type ChallengeRepository interface {
	Create(ctx context.Context, challenge *models.TwoFactorChallenge) error
	GetByID(ctx context.Context, id string) (*models.TwoFactorChallenge, error)
	IncrementAttempts(ctx context.Context, id string) (int, error)
	MarkStatus(ctx context.Context, id, status string) error
	UpdateCodeForResend(ctx context.Context, id, codeHash string) error
}

// TOTPDirectory is the slice of the user store the challenge service needs
// for authenticator-app verification and enrollment.
type TOTPDirectory interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetTOTPDevice(ctx context.Context, userID string) (*models.TOTPDevice, error)
	CreateTOTPDevice(ctx context.Context, device *models.TOTPDevice) error
	MarkTOTPDeviceVerified(ctx context.Context, deviceID string) error
	TouchTOTPDevice(ctx context.Context, deviceID string) error
	SetTwoFactorEnabled(ctx context.Context, id string, enabled bool) error
}

// TwoFactorPolicy fixes challenge parameters.
type TwoFactorPolicy struct {
	CodeLength   int
	CodeExpiry   time.Duration
	MaxAttempts  int
	ResendWindow time.Duration
}

// TwoFactorService owns the challenge state machine: PENDING is the only
// live state, every terminal transition is one-shot, and a resolved
// challenge never transitions again. Codes are stored bcrypt-hashed only.
type TwoFactorService struct {
	challenges  ChallengeRepository
	users       TOTPDirectory
	sender      Sender
	totp        *auth.TOTPManager
	kv          *redis.Client
	policy      TwoFactorPolicy
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	notifier    Notifier
}

func NewTwoFactorService(challenges ChallengeRepository, users TOTPDirectory, sender Sender, totp *auth.TOTPManager, kv *redis.Client, policy TwoFactorPolicy, logger *slog.Logger, auditLogger *pkglogger.AuditLogger, notifier Notifier) *TwoFactorService {
	return &TwoFactorService{
		challenges:  challenges,
		users:       users,
		sender:      sender,
		totp:        totp,
		kv:          kv,
		policy:      policy,
		logger:      logger,
		auditLogger: auditLogger,
		notifier:    notifier,
	}
}

func resendKey(challengeID string) string {
	return "2fa:resend:" + challengeID
}

// Start issues a challenge for the account and dispatches the code. The
// delivery method prefers an enrolled authenticator app, then SMS when a
// phone number is on file, then email.
func (s *TwoFactorService) Start(ctx context.Context, user *models.User, loginAttemptID string, trustDevice bool) (*models.TwoFactorChallenge, error) {
	method := s.pickDeliveryMethod(ctx, user)

	challenge := &models.TwoFactorChallenge{
		AccountID:            user.ID,
		LoginAttemptID:       loginAttemptID,
		DeliveryMethod:       method,
		ExpiresAt:            time.Now().Add(s.policy.CodeExpiry),
		MaxAttempts:          s.policy.MaxAttempts,
		TrustDeviceRequested: trustDevice,
	}

	var code string
	if method != models.DeliveryTOTP {
		var err error
		code, err = generateNumericCode(s.policy.CodeLength)
		if err != nil {
			s.logger.Error("failed to generate one-time code", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}

		hash, err := pkgauth.HashPassword(code)
		if err != nil {
			s.logger.Error("failed to hash one-time code", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		challenge.CodeHash = hash
	}

	if err := s.challenges.Create(ctx, challenge); err != nil {
		s.logger.Error("failed to create challenge", slog.String("account_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.armResendThrottle(ctx, challenge.ID)

	if method != models.DeliveryTOTP {
		s.deliverCode(ctx, user, method, code)
	}

	s.logger.Info("two-factor challenge issued",
		slog.String("account_id", user.ID),
		slog.String("challenge_id", challenge.ID),
		slog.String("delivery_method", method))

	return challenge, nil
}

// Verify checks a submitted code. Expiry is checked before the code even
// when the code is correct; exhaustion is checked against attempts used
// prior to this call. Code mismatch is reported generically.
func (s *TwoFactorService) Verify(ctx context.Context, challengeID, code string) (*models.TwoFactorChallenge, error) {
	challenge, err := s.challenges.GetByID(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	if challenge.IsTerminal() {
		return nil, terminalError(challenge.Status)
	}

	if time.Now().After(challenge.ExpiresAt) {
		if err := s.challenges.MarkStatus(ctx, challengeID, models.ChallengeExpired); err != nil && !errors.Is(err, models.ErrConflict) {
			s.logger.Error("failed to expire challenge", slog.String("challenge_id", challengeID), slog.Any("error", err))
		}
		return nil, models.ErrChallengeExpired
	}

	if challenge.AttemptsUsed >= challenge.MaxAttempts {
		if err := s.challenges.MarkStatus(ctx, challengeID, models.ChallengeExhausted); err != nil && !errors.Is(err, models.ErrConflict) {
			s.logger.Error("failed to exhaust challenge", slog.String("challenge_id", challengeID), slog.Any("error", err))
		}
		return nil, models.ErrChallengeExhausted
	}

	used, err := s.challenges.IncrementAttempts(ctx, challengeID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Row left the pending state between read and increment.
			return nil, models.ErrChallengeResolved
		}
		return nil, models.ErrInternalServer
	}
	challenge.AttemptsUsed = used

	ok, err := s.codeMatches(ctx, challenge, code)
	if err != nil {
		return nil, models.ErrInternalServer
	}
	if !ok {
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "two_factor_failed",
			AccountID:     challenge.AccountID,
			FailureReason: "invalid_code",
			Success:       false,
		})
		if used >= challenge.MaxAttempts {
			if err := s.challenges.MarkStatus(ctx, challengeID, models.ChallengeExhausted); err != nil && !errors.Is(err, models.ErrConflict) {
				s.logger.Error("failed to exhaust challenge", slog.String("challenge_id", challengeID), slog.Any("error", err))
			}
			return nil, models.ErrChallengeExhausted
		}
		return challenge, models.ErrInvalidCode
	}

	if err := s.challenges.MarkStatus(ctx, challengeID, models.ChallengeVerified); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrChallengeResolved
		}
		return nil, models.ErrInternalServer
	}
	challenge.Status = models.ChallengeVerified

	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "two_factor_verified",
		AccountID: challenge.AccountID,
		Success:   true,
	})

	return challenge, nil
}

// Resend regenerates and redelivers the code. Throttled to one send per
// resend window per challenge, enforced in the KV store.
func (s *TwoFactorService) Resend(ctx context.Context, challengeID string) error {
	challenge, err := s.challenges.GetByID(ctx, challengeID)
	if err != nil {
		return err
	}

	if challenge.IsTerminal() {
		return terminalError(challenge.Status)
	}
	if time.Now().After(challenge.ExpiresAt) {
		return models.ErrChallengeExpired
	}
	if challenge.DeliveryMethod == models.DeliveryTOTP {
		return models.ErrBadRequest
	}

	ok, err := s.kv.SetNX(ctx, resendKey(challengeID), 1, s.policy.ResendWindow).Result()
	if err != nil {
		// Fail open on store trouble, same stance as the rate limiter.
		s.logger.Error("resend throttle check failed, allowing resend", slog.Any("error", err))
	} else if !ok {
		return models.ErrResendThrottled
	}

	code, err := generateNumericCode(s.policy.CodeLength)
	if err != nil {
		return models.ErrInternalServer
	}
	hash, err := pkgauth.HashPassword(code)
	if err != nil {
		return models.ErrInternalServer
	}

	if err := s.challenges.UpdateCodeForResend(ctx, challengeID, hash); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return models.ErrChallengeResolved
		}
		return models.ErrInternalServer
	}

	user, err := s.users.GetByID(ctx, challenge.AccountID)
	if err != nil {
		return models.ErrInternalServer
	}
	s.deliverCode(ctx, user, challenge.DeliveryMethod, code)

	s.logger.Info("two-factor code resent",
		slog.String("challenge_id", challengeID),
		slog.String("delivery_method", challenge.DeliveryMethod))
	return nil
}

// Cancel moves a pending challenge to cancelled, e.g. when the user backs
// out of the 2FA screen.
func (s *TwoFactorService) Cancel(ctx context.Context, challengeID, accountID string) error {
	challenge, err := s.challenges.GetByID(ctx, challengeID)
	if err != nil {
		return err
	}
	if challenge.AccountID != accountID {
		return models.ErrNotFound
	}
	if challenge.IsTerminal() {
		return terminalError(challenge.Status)
	}

	if err := s.challenges.MarkStatus(ctx, challengeID, models.ChallengeCancelled); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return models.ErrChallengeResolved
		}
		return models.ErrInternalServer
	}
	return nil
}

// EnrollTOTP provisions a new authenticator-app secret for the user and
// returns the QR provisioning image as a data URL. The device stays
// unverified until ActivateTOTP confirms a live code.
func (s *TwoFactorService) EnrollTOTP(ctx context.Context, userID string) (string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}

	encrypted, nonce, qrDataURL, err := s.totp.GenerateSecretWithQR(user.Email)
	if err != nil {
		s.logger.Error("failed to generate totp secret", slog.String("user_id", userID), slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	device := &models.TOTPDevice{
		UserID:          userID,
		SecretEncrypted: encrypted,
		SecretNonce:     nonce,
	}
	if err := s.users.CreateTOTPDevice(ctx, device); err != nil {
		return "", models.ErrInternalServer
	}

	return qrDataURL, nil
}

// ActivateTOTP verifies a live code against the pending enrollment, marks
// the device verified, and enables 2FA on the account.
func (s *TwoFactorService) ActivateTOTP(ctx context.Context, userID, code, ipAddress string) error {
	device, err := s.users.GetTOTPDevice(ctx, userID)
	if err != nil {
		return err
	}
	if device.IsVerified() {
		return models.ErrConflict
	}

	ok, err := s.totp.Validate(code, device.SecretEncrypted, device.SecretNonce)
	if err != nil {
		return models.ErrInternalServer
	}
	if !ok {
		return models.ErrInvalidCode
	}

	if err := s.users.MarkTOTPDeviceVerified(ctx, device.ID); err != nil {
		return err
	}
	if err := s.users.SetTwoFactorEnabled(ctx, userID, true); err != nil {
		return models.ErrInternalServer
	}

	s.auditLogger.LogSecurityAction("two_factor_enabled", userID, ipAddress, map[string]string{
		"method": models.DeliveryTOTP,
	})
	if err := s.notifier.Dispatch(ctx, userID, models.EventTwoFactorToggled, models.EventMetadata{
		IPAddress: ipAddress,
	}); err != nil {
		s.logger.Warn("two-factor toggle notification failed", slog.Any("error", err))
	}

	return nil
}

func (s *TwoFactorService) pickDeliveryMethod(ctx context.Context, user *models.User) string {
	device, err := s.users.GetTOTPDevice(ctx, user.ID)
	if err == nil && device.IsVerified() {
		return models.DeliveryTOTP
	}
	if user.PhoneNumber != nil && *user.PhoneNumber != "" {
		return models.DeliverySMS
	}
	return models.DeliveryEmail
}

func (s *TwoFactorService) codeMatches(ctx context.Context, challenge *models.TwoFactorChallenge, code string) (bool, error) {
	if challenge.DeliveryMethod == models.DeliveryTOTP {
		device, err := s.users.GetTOTPDevice(ctx, challenge.AccountID)
		if err != nil {
			return false, err
		}
		ok, err := s.totp.Validate(code, device.SecretEncrypted, device.SecretNonce)
		if err != nil {
			return false, err
		}
		if ok {
			if err := s.users.TouchTOTPDevice(ctx, device.ID); err != nil {
				s.logger.Warn("failed to touch totp device", slog.Any("error", err))
			}
		}
		return ok, nil
	}

	err := pkgauth.ComparePassword(challenge.CodeHash, code)
	return err == nil, nil
}

func (s *TwoFactorService) deliverCode(ctx context.Context, user *models.User, method, code string) {
	destination := user.Email
	if method == models.DeliverySMS && user.PhoneNumber != nil {
		destination = *user.PhoneNumber
	}

	subject := "Your verification code"
	body := fmt.Sprintf("Your Lumenclass verification code is %s. It expires in %d minutes. If you didn't request this, change your password.",
		code, int(s.policy.CodeExpiry.Minutes()))

	if err := s.sender.Send(ctx, destination, method, subject, body); err != nil {
		// Delivery is best effort; the user can request a resend.
		s.logger.Error("failed to deliver one-time code",
			slog.String("account_id", user.ID),
			slog.String("delivery_method", method),
			slog.Any("error", err))
	}
}

// armResendThrottle starts the resend window at issue time so an immediate
// resend is throttled too.
func (s *TwoFactorService) armResendThrottle(ctx context.Context, challengeID string) {
	if err := s.kv.SetNX(ctx, resendKey(challengeID), 1, s.policy.ResendWindow).Err(); err != nil {
		s.logger.Warn("failed to arm resend throttle", slog.Any("error", err))
	}
}

func terminalError(status string) error {
	switch status {
	case models.ChallengeExpired:
		return models.ErrChallengeExpired
	case models.ChallengeExhausted:
		return models.ErrChallengeExhausted
	default:
		return models.ErrChallengeResolved
	}
}

// generateNumericCode returns a zero-padded random numeric string.
func generateNumericCode(length int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < length; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", length, n), nil
}
