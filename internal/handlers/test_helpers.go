package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lumenclass/authcore/internal/auth"
	"github.com/lumenclass/authcore/internal/models"
	"github.com/lumenclass/authcore/internal/services"
	pkghttp "github.com/lumenclass/authcore/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds user claims to request context for testing authenticated endpoints
func WithAuthContext(req *http.Request, userID, sessionID string) *http.Request {
	claims := &models.TokenClaims{
		Type:      "access",
		UserID:    userID,
		SessionID: sessionID,
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response with the
// expected machine-readable code
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedCode string) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedCode, resp.Code, "Error code mismatch")
	assert.NotEmpty(t, resp.Error, "Error message should not be empty")
}

// MockLoginFlow implements LoginFlow for testing
type MockLoginFlow struct {
	LoginFunc             func(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error)
	CompleteTwoFactorFunc func(ctx context.Context, req services.TwoFactorVerifyRequest) (*services.LoginResult, error)
	ResendCodeFunc        func(ctx context.Context, challengeID string) error
}

func (m *MockLoginFlow) Login(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, req)
	}
	return nil, models.ErrUnauthorized
}

func (m *MockLoginFlow) CompleteTwoFactor(ctx context.Context, req services.TwoFactorVerifyRequest) (*services.LoginResult, error) {
	if m.CompleteTwoFactorFunc != nil {
		return m.CompleteTwoFactorFunc(ctx, req)
	}
	return nil, models.ErrInvalidCode
}

func (m *MockLoginFlow) ResendCode(ctx context.Context, challengeID string) error {
	if m.ResendCodeFunc != nil {
		return m.ResendCodeFunc(ctx, challengeID)
	}
	return nil
}

// MockSessionManager implements SessionManager and SessionDirectory for testing
type MockSessionManager struct {
	RefreshFunc      func(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	ListFunc         func(ctx context.Context, accountID string) ([]models.Session, error)
	RevokeFunc       func(ctx context.Context, accountID, sessionID, ipAddress string) error
	RevokeAllFunc    func(ctx context.Context, accountID, ipAddress string) (int64, error)
	RevokeOthersFunc func(ctx context.Context, accountID, keepSessionID, ipAddress string) (int64, error)

	Revoked []string
}

func (m *MockSessionManager) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, refreshToken)
	}
	return nil, models.ErrTokenInvalid
}

func (m *MockSessionManager) List(ctx context.Context, accountID string) ([]models.Session, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, accountID)
	}
	return []models.Session{}, nil
}

func (m *MockSessionManager) Revoke(ctx context.Context, accountID, sessionID, ipAddress string) error {
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, accountID, sessionID, ipAddress)
	}
	m.Revoked = append(m.Revoked, sessionID)
	return nil
}

func (m *MockSessionManager) RevokeAll(ctx context.Context, accountID, ipAddress string) (int64, error) {
	if m.RevokeAllFunc != nil {
		return m.RevokeAllFunc(ctx, accountID, ipAddress)
	}
	return 0, nil
}

func (m *MockSessionManager) RevokeOthers(ctx context.Context, accountID, keepSessionID, ipAddress string) (int64, error) {
	if m.RevokeOthersFunc != nil {
		return m.RevokeOthersFunc(ctx, accountID, keepSessionID, ipAddress)
	}
	return 0, nil
}

// MockDeviceManager implements DeviceManager for testing
type MockDeviceManager struct {
	ListFunc   func(ctx context.Context, accountID string) ([]models.TrustedDevice, error)
	TrustFunc  func(ctx context.Context, accountID, deviceID, ipAddress string) error
	RevokeFunc func(ctx context.Context, accountID, deviceID, ipAddress string) error

	TrustedIDs []string
	RevokedIDs []string
}

func (m *MockDeviceManager) List(ctx context.Context, accountID string) ([]models.TrustedDevice, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, accountID)
	}
	return []models.TrustedDevice{}, nil
}

func (m *MockDeviceManager) Trust(ctx context.Context, accountID, deviceID, ipAddress string) error {
	if m.TrustFunc != nil {
		return m.TrustFunc(ctx, accountID, deviceID, ipAddress)
	}
	m.TrustedIDs = append(m.TrustedIDs, deviceID)
	return nil
}

func (m *MockDeviceManager) Revoke(ctx context.Context, accountID, deviceID, ipAddress string) error {
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, accountID, deviceID, ipAddress)
	}
	m.RevokedIDs = append(m.RevokedIDs, deviceID)
	return nil
}

// MockNotificationReader implements NotificationReader for testing
type MockNotificationReader struct {
	ListFunc     func(ctx context.Context, accountID string, limit int) ([]models.SecurityNotification, error)
	MarkReadFunc func(ctx context.Context, id, accountID string) error
}

func (m *MockNotificationReader) List(ctx context.Context, accountID string, limit int) ([]models.SecurityNotification, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, accountID, limit)
	}
	return []models.SecurityNotification{}, nil
}

func (m *MockNotificationReader) MarkRead(ctx context.Context, id, accountID string) error {
	if m.MarkReadFunc != nil {
		return m.MarkReadFunc(ctx, id, accountID)
	}
	return nil
}

// MockTOTPEnroller implements TOTPEnroller for testing
type MockTOTPEnroller struct {
	EnrollTOTPFunc   func(ctx context.Context, userID string) (string, error)
	ActivateTOTPFunc func(ctx context.Context, userID, code, ipAddress string) error
}

func (m *MockTOTPEnroller) EnrollTOTP(ctx context.Context, userID string) (string, error) {
	if m.EnrollTOTPFunc != nil {
		return m.EnrollTOTPFunc(ctx, userID)
	}
	return "data:image/png;base64,dGVzdA==", nil
}

func (m *MockTOTPEnroller) ActivateTOTP(ctx context.Context, userID, code, ipAddress string) error {
	if m.ActivateTOTPFunc != nil {
		return m.ActivateTOTPFunc(ctx, userID, code, ipAddress)
	}
	return nil
}
