package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lumenclass/authcore/internal/auth"
	"github.com/lumenclass/authcore/internal/models"
	pkgauth "github.com/lumenclass/authcore/pkg/auth"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type twoFactorFixture struct {
	svc        *TwoFactorService
	challenges *MockChallengeRepository
	users      *MockTOTPDirectory
	sender     *MockSender
	notifier   *MockNotifier
	redis      *miniredis.Miniredis
}

func newTwoFactorFixture(t *testing.T) *twoFactorFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	totpManager, err := auth.NewTOTPManager([]byte("0123456789abcdef0123456789abcdef"), "Lumenclass")
	require.NoError(t, err)

	f := &twoFactorFixture{
		challenges: &MockChallengeRepository{},
		users:      &MockTOTPDirectory{},
		sender:     &MockSender{},
		notifier:   &MockNotifier{},
		redis:      mr,
	}
	f.svc = NewTwoFactorService(f.challenges, f.users, f.sender, totpManager, client, TwoFactorPolicy{
		CodeLength:   6,
		CodeExpiry:   10 * time.Minute,
		MaxAttempts:  5,
		ResendWindow: 30 * time.Second,
	}, newTestLogger(), newTestAuditLogger(), f.notifier)

	return f
}

func TestStart_EmailDelivery(t *testing.T) {
	f := newTwoFactorFixture(t)
	user := NewTestUser("user123", "student@lumenclass.io", "Student")

	var created *models.TwoFactorChallenge
	f.challenges.CreateFunc = func(ctx context.Context, challenge *models.TwoFactorChallenge) error {
		challenge.ID = "challenge_1"
		challenge.Status = models.ChallengePending
		created = challenge
		return nil
	}

	challenge, err := f.svc.Start(context.Background(), user, "attempt_1", true)

	require.NoError(t, err)
	assert.Equal(t, models.DeliveryEmail, challenge.DeliveryMethod)
	assert.True(t, challenge.TrustDeviceRequested)
	assert.NotEmpty(t, created.CodeHash)
	assert.Equal(t, []string{"student@lumenclass.io"}, f.sender.Sent)
	assert.True(t, f.redis.Exists(resendKey("challenge_1")))
}

func TestStart_PrefersSMSWhenPhoneOnFile(t *testing.T) {
	f := newTwoFactorFixture(t)
	phone := "+4915112345678"
	user := NewTestUser("user123", "student@lumenclass.io", "Student")
	user.PhoneNumber = &phone

	challenge, err := f.svc.Start(context.Background(), user, "attempt_1", false)

	require.NoError(t, err)
	assert.Equal(t, models.DeliverySMS, challenge.DeliveryMethod)
	assert.Equal(t, []string{phone}, f.sender.Sent)
}

func TestStart_PrefersEnrolledTOTP(t *testing.T) {
	f := newTwoFactorFixture(t)
	now := time.Now()
	f.users.GetTOTPDeviceFunc = func(ctx context.Context, userID string) (*models.TOTPDevice, error) {
		return &models.TOTPDevice{ID: "totp_1", UserID: userID, VerifiedAt: &now}, nil
	}

	challenge, err := f.svc.Start(context.Background(), NewTestUser("user123", "student@lumenclass.io", "Student"), "attempt_1", false)

	require.NoError(t, err)
	assert.Equal(t, models.DeliveryTOTP, challenge.DeliveryMethod)
	assert.Empty(t, challenge.CodeHash)
	assert.Empty(t, f.sender.Sent, "nothing is dispatched for authenticator codes")
}

func TestVerify_ExpiredEvenWithCorrectCode(t *testing.T) {
	f := newTwoFactorFixture(t)
	hash, err := pkgauth.HashPassword("123456")
	require.NoError(t, err)

	challenge := NewTestChallenge("challenge_1", "user123", "attempt_1", hash, time.Now().Add(-1*time.Second))
	f.challenges.GetByIDFunc = func(ctx context.Context, id string) (*models.TwoFactorChallenge, error) {
		return challenge, nil
	}

	_, err = f.svc.Verify(context.Background(), "challenge_1", "123456")

	assert.ErrorIs(t, err, models.ErrChallengeExpired)
	assert.Equal(t, models.ChallengeExpired, f.challenges.Statuses["challenge_1"])
}

func TestVerify_ExhaustedBeforeCheck(t *testing.T) {
	f := newTwoFactorFixture(t)
	hash, err := pkgauth.HashPassword("123456")
	require.NoError(t, err)

	challenge := NewTestChallenge("challenge_1", "user123", "attempt_1", hash, time.Now().Add(5*time.Minute))
	challenge.AttemptsUsed = 5
	f.challenges.GetByIDFunc = func(ctx context.Context, id string) (*models.TwoFactorChallenge, error) {
		return challenge, nil
	}

	// Correct code, but attempts were already spent.
	_, err = f.svc.Verify(context.Background(), "challenge_1", "123456")

	assert.ErrorIs(t, err, models.ErrChallengeExhausted)
	assert.Equal(t, models.ChallengeExhausted, f.challenges.Statuses["challenge_1"])
}

func TestVerify_WrongCode(t *testing.T) {
	f := newTwoFactorFixture(t)
	hash, err := pkgauth.HashPassword("123456")
	require.NoError(t, err)

	f.challenges.GetByIDFunc = func(ctx context.Context, id string) (*models.TwoFactorChallenge, error) {
		return NewTestChallenge("challenge_1", "user123", "attempt_1", hash, time.Now().Add(5*time.Minute)), nil
	}
	incremented := false
	f.challenges.IncrementAttemptsFunc = func(ctx context.Context, id string) (int, error) {
		incremented = true
		return 1, nil
	}

	_, err = f.svc.Verify(context.Background(), "challenge_1", "654321")

	assert.ErrorIs(t, err, models.ErrInvalidCode)
	assert.True(t, incremented)
}

func TestVerify_WrongCodeOnLastAttemptExhausts(t *testing.T) {
	f := newTwoFactorFixture(t)
	hash, err := pkgauth.HashPassword("123456")
	require.NoError(t, err)

	challenge := NewTestChallenge("challenge_1", "user123", "attempt_1", hash, time.Now().Add(5*time.Minute))
	challenge.AttemptsUsed = 4
	f.challenges.GetByIDFunc = func(ctx context.Context, id string) (*models.TwoFactorChallenge, error) {
		return challenge, nil
	}
	f.challenges.IncrementAttemptsFunc = func(ctx context.Context, id string) (int, error) {
		return 5, nil
	}

	_, err = f.svc.Verify(context.Background(), "challenge_1", "654321")

	assert.ErrorIs(t, err, models.ErrChallengeExhausted)
	assert.Equal(t, models.ChallengeExhausted, f.challenges.Statuses["challenge_1"])
}

func TestVerify_Success(t *testing.T) {
	f := newTwoFactorFixture(t)
	hash, err := pkgauth.HashPassword("123456")
	require.NoError(t, err)

	f.challenges.GetByIDFunc = func(ctx context.Context, id string) (*models.TwoFactorChallenge, error) {
		return NewTestChallenge("challenge_1", "user123", "attempt_1", hash, time.Now().Add(5*time.Minute)), nil
	}

	verified, err := f.svc.Verify(context.Background(), "challenge_1", "123456")

	require.NoError(t, err)
	assert.Equal(t, models.ChallengeVerified, verified.Status)
	assert.Equal(t, models.ChallengeVerified, f.challenges.Statuses["challenge_1"])
}

func TestVerify_TerminalStatesAreFinal(t *testing.T) {
	f := newTwoFactorFixture(t)

	cases := map[string]error{
		models.ChallengeVerified:  models.ErrChallengeResolved,
		models.ChallengeCancelled: models.ErrChallengeResolved,
		models.ChallengeExpired:   models.ErrChallengeExpired,
		models.ChallengeExhausted: models.ErrChallengeExhausted,
	}

	for status, want := range cases {
		challenge := NewTestChallenge("challenge_1", "user123", "attempt_1", "", time.Now().Add(5*time.Minute))
		challenge.Status = status
		f.challenges.GetByIDFunc = func(ctx context.Context, id string) (*models.TwoFactorChallenge, error) {
			return challenge, nil
		}

		_, err := f.svc.Verify(context.Background(), "challenge_1", "123456")
		assert.ErrorIs(t, err, want, "status %s", status)
	}
}

func TestVerify_TOTPCode(t *testing.T) {
	f := newTwoFactorFixture(t)

	secret := "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"
	encrypted, nonce, err := f.svc.totp.EncryptSecret([]byte(secret))
	require.NoError(t, err)

	now := time.Now()
	f.users.GetTOTPDeviceFunc = func(ctx context.Context, userID string) (*models.TOTPDevice, error) {
		return &models.TOTPDevice{ID: "totp_1", UserID: userID, SecretEncrypted: encrypted, SecretNonce: nonce, VerifiedAt: &now}, nil
	}

	challenge := NewTestChallenge("challenge_1", "user123", "attempt_1", "", time.Now().Add(5*time.Minute))
	challenge.DeliveryMethod = models.DeliveryTOTP
	f.challenges.GetByIDFunc = func(ctx context.Context, id string) (*models.TwoFactorChallenge, error) {
		return challenge, nil
	}

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	verified, err := f.svc.Verify(context.Background(), "challenge_1", code)
	require.NoError(t, err)
	assert.Equal(t, models.ChallengeVerified, verified.Status)
}

func TestResend_Throttled(t *testing.T) {
	f := newTwoFactorFixture(t)
	user := NewTestUser("user123", "student@lumenclass.io", "Student")
	f.users.GetByIDFunc = func(ctx context.Context, id string) (*models.User, error) {
		return user, nil
	}

	var stored *models.TwoFactorChallenge
	f.challenges.CreateFunc = func(ctx context.Context, challenge *models.TwoFactorChallenge) error {
		challenge.ID = "challenge_1"
		challenge.Status = models.ChallengePending
		stored = challenge
		return nil
	}
	f.challenges.GetByIDFunc = func(ctx context.Context, id string) (*models.TwoFactorChallenge, error) {
		return stored, nil
	}

	_, err := f.svc.Start(context.Background(), user, "attempt_1", false)
	require.NoError(t, err)
	require.Len(t, f.sender.Sent, 1)

	// Immediately after issue: the window armed at issue time throttles.
	err = f.svc.Resend(context.Background(), "challenge_1")
	assert.ErrorIs(t, err, models.ErrResendThrottled)
	assert.Len(t, f.sender.Sent, 1)

	f.redis.FastForward(31 * time.Second)

	err = f.svc.Resend(context.Background(), "challenge_1")
	require.NoError(t, err)
	assert.Len(t, f.sender.Sent, 2)
}

func TestResend_TOTPNotResendable(t *testing.T) {
	f := newTwoFactorFixture(t)
	challenge := NewTestChallenge("challenge_1", "user123", "attempt_1", "", time.Now().Add(5*time.Minute))
	challenge.DeliveryMethod = models.DeliveryTOTP
	f.challenges.GetByIDFunc = func(ctx context.Context, id string) (*models.TwoFactorChallenge, error) {
		return challenge, nil
	}

	err := f.svc.Resend(context.Background(), "challenge_1")
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestCancel(t *testing.T) {
	f := newTwoFactorFixture(t)
	f.challenges.GetByIDFunc = func(ctx context.Context, id string) (*models.TwoFactorChallenge, error) {
		return NewTestChallenge("challenge_1", "user123", "attempt_1", "", time.Now().Add(5*time.Minute)), nil
	}

	require.NoError(t, f.svc.Cancel(context.Background(), "challenge_1", "user123"))
	assert.Equal(t, models.ChallengeCancelled, f.challenges.Statuses["challenge_1"])

	// Wrong owner never learns the challenge exists.
	err := f.svc.Cancel(context.Background(), "challenge_1", "someone_else")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestEnrollAndActivateTOTP(t *testing.T) {
	f := newTwoFactorFixture(t)
	user := NewTestUser("user123", "student@lumenclass.io", "Student")
	f.users.GetByIDFunc = func(ctx context.Context, id string) (*models.User, error) {
		return user, nil
	}

	var enrolled *models.TOTPDevice
	f.users.CreateTOTPDeviceFunc = func(ctx context.Context, device *models.TOTPDevice) error {
		device.ID = "totp_1"
		enrolled = device
		return nil
	}

	qr, err := f.svc.EnrollTOTP(context.Background(), "user123")
	require.NoError(t, err)
	assert.Contains(t, qr, "data:image/png;base64,")
	require.NotNil(t, enrolled)

	f.users.GetTOTPDeviceFunc = func(ctx context.Context, userID string) (*models.TOTPDevice, error) {
		return enrolled, nil
	}
	verifiedID := ""
	f.users.MarkTOTPDeviceVerifiedFunc = func(ctx context.Context, deviceID string) error {
		verifiedID = deviceID
		return nil
	}
	enabled := false
	f.users.SetTwoFactorEnabledFunc = func(ctx context.Context, id string, value bool) error {
		enabled = value
		return nil
	}

	secret, err := f.svc.totp.DecryptSecret(enrolled.SecretEncrypted, enrolled.SecretNonce)
	require.NoError(t, err)
	code, err := totp.GenerateCode(string(secret), time.Now())
	require.NoError(t, err)

	require.NoError(t, f.svc.ActivateTOTP(context.Background(), "user123", code, "203.0.113.10"))
	assert.Equal(t, "totp_1", verifiedID)
	assert.True(t, enabled)
	assert.Equal(t, []string{models.EventTwoFactorToggled}, f.notifier.Events)
}

func TestActivateTOTP_WrongCode(t *testing.T) {
	f := newTwoFactorFixture(t)

	encrypted, nonce, err := f.svc.totp.EncryptSecret([]byte("JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"))
	require.NoError(t, err)
	f.users.GetTOTPDeviceFunc = func(ctx context.Context, userID string) (*models.TOTPDevice, error) {
		return &models.TOTPDevice{ID: "totp_1", UserID: userID, SecretEncrypted: encrypted, SecretNonce: nonce}, nil
	}

	err = f.svc.ActivateTOTP(context.Background(), "user123", "000000", "203.0.113.10")
	assert.ErrorIs(t, err, models.ErrInvalidCode)
}

func TestGenerateNumericCode(t *testing.T) {
	for i := 0; i < 20; i++ {
		code, err := generateNumericCode(6)
		require.NoError(t, err)
		assert.Len(t, code, 6)
		for _, c := range code {
			assert.True(t, c >= '0' && c <= '9')
		}
	}
}
