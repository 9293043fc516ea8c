package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/lumenclass/authcore/internal/auth"
	"github.com/lumenclass/authcore/internal/fingerprint"
	"github.com/lumenclass/authcore/internal/models"
	"github.com/lumenclass/authcore/internal/services"
	pkghttp "github.com/lumenclass/authcore/pkg/http"
)

// LoginFlow is the slice of the auth service the login endpoints need.
type LoginFlow interface {
	Login(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error)
	CompleteTwoFactor(ctx context.Context, req services.TwoFactorVerifyRequest) (*services.LoginResult, error)
	ResendCode(ctx context.Context, challengeID string) error
}

// SessionManager is the slice of the session service the token endpoints need.
type SessionManager interface {
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	Revoke(ctx context.Context, accountID, sessionID, ipAddress string) error
	RevokeAll(ctx context.Context, accountID, ipAddress string) (int64, error)
}

// AuthHandler handles login, two-factor verification, and token lifecycle.
type AuthHandler struct {
	flow         LoginFlow
	sessions     SessionManager
	ipConfig     *pkghttp.IPConfig
	cookieConfig auth.CookieConfig
	cookieMaxAge int
}

func NewAuthHandler(flow LoginFlow, sessions SessionManager, ipConfig *pkghttp.IPConfig, cookieConfig auth.CookieConfig, refreshTokenExpiry time.Duration) *AuthHandler {
	return &AuthHandler{
		flow:         flow,
		sessions:     sessions,
		ipConfig:     ipConfig,
		cookieConfig: cookieConfig,
		cookieMaxAge: int(refreshTokenExpiry.Seconds()),
	}
}

// Request DTOs

// DeviceSignals are the optional client-side probes attached to a login.
type DeviceSignals struct {
	Screen     string `json:"screen,omitempty"`
	Timezone   string `json:"timezone,omitempty"`
	Language   string `json:"language,omitempty"`
	CanvasHash string `json:"canvas_hash,omitempty"`
	GPUHash    string `json:"gpu_hash,omitempty"`
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email       string        `json:"email" validate:"required,email"`
	Password    string        `json:"password" validate:"required"`
	RememberMe  bool          `json:"remember_me"`
	TrustDevice bool          `json:"trust_device"`
	Device      DeviceSignals `json:"device"`
}

// VerifyTwoFactorRequest represents the request body for code verification
type VerifyTwoFactorRequest struct {
	ChallengeID string `json:"challenge_id" validate:"required"`
	Code        string `json:"code" validate:"required,min=6,max=8"`
	TrustDevice bool   `json:"trust_device"`
	RememberMe  bool   `json:"remember_me"`
}

// ResendCodeRequest represents the request body for a code resend
type ResendCodeRequest struct {
	ChallengeID string `json:"challenge_id" validate:"required"`
}

// RefreshTokenRequest represents the request body for token refresh. The
// token may instead arrive in the refresh cookie.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LoginResponse is the success body for login and 2FA verification.
type LoginResponse struct {
	TwoFactorRequired bool              `json:"two_factor_required"`
	ChallengeID       string            `json:"challenge_id,omitempty"`
	DeliveryMethod    string            `json:"delivery_method,omitempty"`
	Tokens            *models.TokenPair `json:"tokens,omitempty"`
}

// Login handles user login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteValidationError(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteValidationError(w, err.Error())
		return
	}

	userAgent := r.Header.Get("User-Agent")
	result, err := h.flow.Login(r.Context(), services.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
		Signals: fingerprint.Signals{
			UserAgent:  userAgent,
			Screen:     req.Device.Screen,
			Timezone:   req.Device.Timezone,
			Language:   req.Device.Language,
			CanvasHash: req.Device.CanvasHash,
			GPUHash:    req.Device.GPUHash,
		},
		IPAddress:   pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent:   userAgent,
		RememberMe:  req.RememberMe,
		TrustDevice: req.TrustDevice,
	})
	if err != nil {
		h.writeLoginError(w, err)
		return
	}

	h.writeLoginResult(w, result)
}

// VerifyTwoFactor completes a pending challenge and finishes the login.
func (h *AuthHandler) VerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req VerifyTwoFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteValidationError(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteValidationError(w, err.Error())
		return
	}

	result, err := h.flow.CompleteTwoFactor(r.Context(), services.TwoFactorVerifyRequest{
		ChallengeID: req.ChallengeID,
		Code:        req.Code,
		TrustDevice: req.TrustDevice,
		RememberMe:  req.RememberMe,
	})
	if err != nil {
		h.writeLoginError(w, err)
		return
	}

	h.writeLoginResult(w, result)
}

// ResendCode redelivers the code for a pending challenge.
func (h *AuthHandler) ResendCode(w http.ResponseWriter, r *http.Request) {
	var req ResendCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteValidationError(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteValidationError(w, err.Error())
		return
	}

	if err := h.flow.ResendCode(r.Context(), req.ChallengeID); err != nil {
		h.writeLoginError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": "A new code has been sent."})
}

// RefreshToken rotates the refresh token and returns a fresh pair.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	// Body is optional when the token rides in the cookie
	_ = json.NewDecoder(r.Body).Decode(&req)

	refreshToken := req.RefreshToken
	if refreshToken == "" {
		cookieToken, err := auth.GetRefreshTokenCookie(r)
		if err != nil || cookieToken == "" {
			pkghttp.WriteValidationError(w, "refresh token is required")
			return
		}
		refreshToken = cookieToken
	}

	tokens, err := h.sessions.Refresh(r.Context(), refreshToken)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrTokenReused), errors.Is(err, models.ErrTokenInvalid):
			auth.ClearRefreshTokenCookie(w, h.cookieConfig)
			pkghttp.WriteInvalidToken(w)
		case errors.Is(err, models.ErrConnection):
			pkghttp.WriteConnectionError(w)
		default:
			pkghttp.WriteInternalError(w)
		}
		return
	}

	auth.SetRefreshTokenCookie(w, tokens.RefreshToken, h.cookieMaxAge, h.cookieConfig)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(tokens)
}

// Logout revokes the current session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	if err := h.sessions.Revoke(r.Context(), claims.UserID, claims.SessionID, ipAddress); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Already revoked; logout is idempotent from the client's view
			auth.ClearRefreshTokenCookie(w, h.cookieConfig)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		pkghttp.WriteInternalError(w)
		return
	}

	auth.ClearRefreshTokenCookie(w, h.cookieConfig)
	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll revokes every session for the account.
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	if _, err := h.sessions.RevokeAll(r.Context(), claims.UserID, ipAddress); err != nil {
		pkghttp.WriteInternalError(w)
		return
	}

	auth.ClearRefreshTokenCookie(w, h.cookieConfig)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) writeLoginResult(w http.ResponseWriter, result *services.LoginResult) {
	resp := LoginResponse{
		TwoFactorRequired: result.RequiresTwoFactor,
		ChallengeID:       result.ChallengeID,
		DeliveryMethod:    result.DeliveryMethod,
		Tokens:            result.Tokens,
	}
	if result.Tokens != nil {
		auth.SetRefreshTokenCookie(w, result.Tokens.RefreshToken, h.cookieMaxAge, h.cookieConfig)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// writeLoginError maps service sentinels onto the error taxonomy. Unknown
// user and wrong password surface identically.
func (h *AuthHandler) writeLoginError(w http.ResponseWriter, err error) {
	var rateLimited *services.RateLimitedError
	var invalidCode *services.InvalidCodeError

	switch {
	case errors.As(err, &rateLimited):
		pkghttp.WriteRateLimited(w, int(rateLimited.RetryAfter.Seconds()))
	case errors.Is(err, models.ErrResendThrottled):
		pkghttp.WriteRateLimited(w, 0)
	case errors.Is(err, models.ErrUnauthorized),
		errors.Is(err, models.ErrAccountDisabled),
		errors.Is(err, models.ErrAccountSuspended):
		// Account state detail is withheld to prevent enumeration
		pkghttp.WriteInvalidCredentials(w)
	case errors.Is(err, models.ErrAccountLocked):
		pkghttp.WriteAccountLocked(w)
	case errors.Is(err, models.ErrLoginBlocked):
		pkghttp.WriteLoginBlocked(w)
	case errors.Is(err, models.ErrChallengeExpired):
		pkghttp.WriteError(w, http.StatusGone, pkghttp.CodeChallengeExpired, "Code has expired. Please sign in again.")
	case errors.Is(err, models.ErrChallengeExhausted):
		pkghttp.WriteError(w, http.StatusGone, pkghttp.CodeChallengeExhausted, "Too many incorrect codes. Please sign in again.")
	case errors.Is(err, models.ErrChallengeResolved):
		pkghttp.WriteError(w, http.StatusConflict, pkghttp.CodeChallengeResolved, "This challenge has already been resolved.")
	case errors.As(err, &invalidCode):
		pkghttp.WriteInvalidCode(w, invalidCode.AttemptsRemaining)
	case errors.Is(err, models.ErrInvalidCode):
		pkghttp.WriteError(w, http.StatusUnauthorized, pkghttp.CodeInvalidCode, "Incorrect code")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Challenge not found")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteValidationError(w, "Codes from an authenticator app cannot be resent")
	case errors.Is(err, models.ErrConnection):
		pkghttp.WriteConnectionError(w)
	default:
		pkghttp.WriteInternalError(w)
	}
}
