package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lumenclass/authcore/internal/auth"
	"github.com/lumenclass/authcore/internal/handlers"
	"github.com/lumenclass/authcore/internal/models"
	"github.com/lumenclass/authcore/internal/services"
	pkghttp "github.com/lumenclass/authcore/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthHandler(flow handlers.LoginFlow, sessions handlers.SessionManager) *handlers.AuthHandler {
	return handlers.NewAuthHandler(flow, sessions, nil, auth.CookieConfig{}, 7*24*time.Hour)
}

func tokenPair() *models.TokenPair {
	return &models.TokenPair{
		AccessToken:  "access_token_123",
		RefreshToken: "refresh_token_123",
		SessionID:    "session_1",
		ExpiresIn:    900,
	}
}

func TestLogin_Success(t *testing.T) {
	flow := &handlers.MockLoginFlow{
		LoginFunc: func(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error) {
			assert.Equal(t, "student@lumenclass.io", req.Email)
			assert.Equal(t, "Europe/Berlin", req.Signals.Timezone)
			return &services.LoginResult{Tokens: tokenPair()}, nil
		},
	}
	handler := newAuthHandler(flow, &handlers.MockSessionManager{})

	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Email:    "student@lumenclass.io",
		Password: "password123",
		Device:   handlers.DeviceSignals{Timezone: "Europe/Berlin"},
	})
	w := httptest.NewRecorder()
	handler.Login(w, req)

	var resp handlers.LoginResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.False(t, resp.TwoFactorRequired)
	require.NotNil(t, resp.Tokens)
	assert.Equal(t, "access_token_123", resp.Tokens.AccessToken)

	// Refresh token also rides in an httpOnly cookie
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "refresh_token", cookies[0].Name)
	assert.Equal(t, "refresh_token_123", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestLogin_TwoFactorRequired(t *testing.T) {
	flow := &handlers.MockLoginFlow{
		LoginFunc: func(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error) {
			return &services.LoginResult{
				RequiresTwoFactor: true,
				ChallengeID:       "challenge_1",
				DeliveryMethod:    models.DeliveryEmail,
			}, nil
		},
	}
	handler := newAuthHandler(flow, &handlers.MockSessionManager{})

	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Email:    "student@lumenclass.io",
		Password: "password123",
	})
	w := httptest.NewRecorder()
	handler.Login(w, req)

	var resp handlers.LoginResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.True(t, resp.TwoFactorRequired)
	assert.Equal(t, "challenge_1", resp.ChallengeID)
	assert.Equal(t, models.DeliveryEmail, resp.DeliveryMethod)
	assert.Nil(t, resp.Tokens)
	assert.Empty(t, w.Result().Cookies())
}

func TestLogin_ValidationError(t *testing.T) {
	handler := newAuthHandler(&handlers.MockLoginFlow{}, &handlers.MockSessionManager{})

	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Email: "not-an-email",
	})
	w := httptest.NewRecorder()
	handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, 400, pkghttp.CodeValidationError)
}

func TestLogin_AccountStateErrorsAreIndistinguishable(t *testing.T) {
	// Unknown user, wrong password, disabled, and suspended all map to the
	// same body so the endpoint leaks nothing about account existence.
	for _, serviceErr := range []error{
		models.ErrUnauthorized,
		models.ErrAccountDisabled,
		models.ErrAccountSuspended,
	} {
		flow := &handlers.MockLoginFlow{
			LoginFunc: func(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error) {
				return nil, serviceErr
			},
		}
		handler := newAuthHandler(flow, &handlers.MockSessionManager{})

		req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
			Email:    "student@lumenclass.io",
			Password: "password123",
		})
		w := httptest.NewRecorder()
		handler.Login(w, req)

		handlers.AssertErrorResponse(t, w, 401, pkghttp.CodeInvalidCredentials)
	}
}

func TestLogin_AccountLocked(t *testing.T) {
	flow := &handlers.MockLoginFlow{
		LoginFunc: func(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error) {
			return nil, models.ErrAccountLocked
		},
	}
	handler := newAuthHandler(flow, &handlers.MockSessionManager{})

	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Email:    "student@lumenclass.io",
		Password: "password123",
	})
	w := httptest.NewRecorder()
	handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, 423, pkghttp.CodeAccountLocked)
}

func TestLogin_RateLimited(t *testing.T) {
	flow := &handlers.MockLoginFlow{
		LoginFunc: func(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error) {
			return nil, &services.RateLimitedError{RetryAfter: 90 * time.Second}
		},
	}
	handler := newAuthHandler(flow, &handlers.MockSessionManager{})

	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Email:    "student@lumenclass.io",
		Password: "password123",
	})
	w := httptest.NewRecorder()
	handler.Login(w, req)

	assert.Equal(t, 429, w.Code)
	assert.Equal(t, "90", w.Header().Get("Retry-After"))
}

func TestLogin_RiskBlocked(t *testing.T) {
	flow := &handlers.MockLoginFlow{
		LoginFunc: func(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error) {
			return nil, models.ErrLoginBlocked
		},
	}
	handler := newAuthHandler(flow, &handlers.MockSessionManager{})

	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Email:    "student@lumenclass.io",
		Password: "password123",
	})
	w := httptest.NewRecorder()
	handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, 403, pkghttp.CodeLoginBlocked)
}

func TestVerifyTwoFactor_Success(t *testing.T) {
	flow := &handlers.MockLoginFlow{
		CompleteTwoFactorFunc: func(ctx context.Context, req services.TwoFactorVerifyRequest) (*services.LoginResult, error) {
			assert.Equal(t, "challenge_1", req.ChallengeID)
			assert.True(t, req.TrustDevice)
			return &services.LoginResult{Tokens: tokenPair()}, nil
		},
	}
	handler := newAuthHandler(flow, &handlers.MockSessionManager{})

	req := handlers.NewTestRequest(t, "POST", "/auth/2fa/verify", handlers.VerifyTwoFactorRequest{
		ChallengeID: "challenge_1",
		Code:        "123456",
		TrustDevice: true,
	})
	w := httptest.NewRecorder()
	handler.VerifyTwoFactor(w, req)

	var resp handlers.LoginResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	require.NotNil(t, resp.Tokens)
}

func TestVerifyTwoFactor_ErrorMapping(t *testing.T) {
	cases := []struct {
		serviceErr error
		status     int
		code       string
	}{
		{models.ErrInvalidCode, 401, pkghttp.CodeInvalidCode},
		{models.ErrChallengeExpired, 410, pkghttp.CodeChallengeExpired},
		{models.ErrChallengeExhausted, 410, pkghttp.CodeChallengeExhausted},
		{models.ErrChallengeResolved, 409, pkghttp.CodeChallengeResolved},
		{models.ErrNotFound, 404, pkghttp.CodeNotFound},
	}

	for _, tc := range cases {
		flow := &handlers.MockLoginFlow{
			CompleteTwoFactorFunc: func(ctx context.Context, req services.TwoFactorVerifyRequest) (*services.LoginResult, error) {
				return nil, tc.serviceErr
			},
		}
		handler := newAuthHandler(flow, &handlers.MockSessionManager{})

		req := handlers.NewTestRequest(t, "POST", "/auth/2fa/verify", handlers.VerifyTwoFactorRequest{
			ChallengeID: "challenge_1",
			Code:        "123456",
		})
		w := httptest.NewRecorder()
		handler.VerifyTwoFactor(w, req)

		handlers.AssertErrorResponse(t, w, tc.status, tc.code)
	}
}

func TestVerifyTwoFactor_InvalidCodeReportsAttemptsRemaining(t *testing.T) {
	flow := &handlers.MockLoginFlow{
		CompleteTwoFactorFunc: func(ctx context.Context, req services.TwoFactorVerifyRequest) (*services.LoginResult, error) {
			return nil, &services.InvalidCodeError{AttemptsRemaining: 3}
		},
	}
	handler := newAuthHandler(flow, &handlers.MockSessionManager{})

	req := handlers.NewTestRequest(t, "POST", "/auth/2fa/verify", handlers.VerifyTwoFactorRequest{
		ChallengeID: "challenge_1",
		Code:        "000000",
	})
	w := httptest.NewRecorder()
	handler.VerifyTwoFactor(w, req)

	var resp struct {
		Error             string `json:"error"`
		Code              string `json:"code"`
		AttemptsRemaining int    `json:"attempts_remaining"`
	}
	handlers.AssertJSONResponse(t, w, 401, &resp)
	assert.Equal(t, pkghttp.CodeInvalidCode, resp.Code)
	assert.Equal(t, 3, resp.AttemptsRemaining)
}

func TestResendCode_Throttled(t *testing.T) {
	flow := &handlers.MockLoginFlow{
		ResendCodeFunc: func(ctx context.Context, challengeID string) error {
			return models.ErrResendThrottled
		},
	}
	handler := newAuthHandler(flow, &handlers.MockSessionManager{})

	req := handlers.NewTestRequest(t, "POST", "/auth/2fa/resend", handlers.ResendCodeRequest{ChallengeID: "challenge_1"})
	w := httptest.NewRecorder()
	handler.ResendCode(w, req)

	assert.Equal(t, 429, w.Code)
}

func TestResendCode_Accepted(t *testing.T) {
	handler := newAuthHandler(&handlers.MockLoginFlow{}, &handlers.MockSessionManager{})

	req := handlers.NewTestRequest(t, "POST", "/auth/2fa/resend", handlers.ResendCodeRequest{ChallengeID: "challenge_1"})
	w := httptest.NewRecorder()
	handler.ResendCode(w, req)

	assert.Equal(t, 202, w.Code)
}

func TestRefreshToken_FromBody(t *testing.T) {
	sessions := &handlers.MockSessionManager{
		RefreshFunc: func(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
			assert.Equal(t, "old_refresh", refreshToken)
			return tokenPair(), nil
		},
	}
	handler := newAuthHandler(&handlers.MockLoginFlow{}, sessions)

	req := handlers.NewTestRequest(t, "POST", "/auth/refresh", handlers.RefreshTokenRequest{RefreshToken: "old_refresh"})
	w := httptest.NewRecorder()
	handler.RefreshToken(w, req)

	var resp models.TokenPair
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "refresh_token_123", resp.RefreshToken)
}

func TestRefreshToken_FromCookie(t *testing.T) {
	sessions := &handlers.MockSessionManager{
		RefreshFunc: func(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
			assert.Equal(t, "cookie_refresh", refreshToken)
			return tokenPair(), nil
		},
	}
	handler := newAuthHandler(&handlers.MockLoginFlow{}, sessions)

	req := handlers.NewTestRequest(t, "POST", "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: "cookie_refresh"})
	w := httptest.NewRecorder()
	handler.RefreshToken(w, req)

	assert.Equal(t, 200, w.Code)
}

func TestRefreshToken_ReuseClearsCookie(t *testing.T) {
	sessions := &handlers.MockSessionManager{
		RefreshFunc: func(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
			return nil, models.ErrTokenReused
		},
	}
	handler := newAuthHandler(&handlers.MockLoginFlow{}, sessions)

	req := handlers.NewTestRequest(t, "POST", "/auth/refresh", handlers.RefreshTokenRequest{RefreshToken: "stolen"})
	w := httptest.NewRecorder()
	handler.RefreshToken(w, req)

	handlers.AssertErrorResponse(t, w, 401, pkghttp.CodeInvalidToken)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "refresh_token", cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.Negative(t, cookies[0].MaxAge)
}

func TestLogout(t *testing.T) {
	sessions := &handlers.MockSessionManager{}
	handler := newAuthHandler(&handlers.MockLoginFlow{}, sessions)

	req := handlers.NewTestRequest(t, "POST", "/auth/logout", nil)
	req = handlers.WithAuthContext(req, "user123", "session_1")
	w := httptest.NewRecorder()
	handler.Logout(w, req)

	assert.Equal(t, 204, w.Code)
	assert.Equal(t, []string{"session_1"}, sessions.Revoked)
}

func TestLogout_Unauthenticated(t *testing.T) {
	handler := newAuthHandler(&handlers.MockLoginFlow{}, &handlers.MockSessionManager{})

	req := handlers.NewTestRequest(t, "POST", "/auth/logout", nil)
	w := httptest.NewRecorder()
	handler.Logout(w, req)

	handlers.AssertErrorResponse(t, w, 401, pkghttp.CodeUnauthorized)
}
