package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lumenclass/authcore/internal/auth"
	"github.com/lumenclass/authcore/internal/models"
	pkghttp "github.com/lumenclass/authcore/pkg/http"
)

// TOTPEnroller is the slice of the two-factor service the authenticator-app
// endpoints need.
type TOTPEnroller interface {
	EnrollTOTP(ctx context.Context, userID string) (string, error)
	ActivateTOTP(ctx context.Context, userID, code, ipAddress string) error
}

// TOTPHandler manages authenticator-app enrollment for the signed-in user.
type TOTPHandler struct {
	twoFactor TOTPEnroller
	ipConfig  *pkghttp.IPConfig
}

func NewTOTPHandler(twoFactor TOTPEnroller, ipConfig *pkghttp.IPConfig) *TOTPHandler {
	return &TOTPHandler{twoFactor: twoFactor, ipConfig: ipConfig}
}

// ActivateTOTPRequest represents the request body for enrollment activation
type ActivateTOTPRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// EnrollResponse carries the provisioning QR code as a data URL.
type EnrollResponse struct {
	QRCode string `json:"qr_code"`
}

// Enroll provisions a new authenticator-app secret. The enrollment stays
// inactive until a live code is confirmed via Activate.
func (h *TOTPHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	qrDataURL, err := h.twoFactor.EnrollTOTP(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteUnauthorized(w, "unauthorized")
			return
		}
		pkghttp.WriteInternalError(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(EnrollResponse{QRCode: qrDataURL})
}

// Activate confirms a live code from the authenticator app and enables 2FA
// on the account.
func (h *TOTPHandler) Activate(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req ActivateTOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteValidationError(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteValidationError(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	err := h.twoFactor.ActivateTOTP(r.Context(), claims.UserID, req.Code, ipAddress)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidCode):
			pkghttp.WriteError(w, http.StatusUnauthorized, pkghttp.CodeInvalidCode, "Incorrect code")
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "No pending enrollment")
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteError(w, http.StatusConflict, pkghttp.CodeValidationError, "Authenticator app is already active")
		default:
			pkghttp.WriteInternalError(w)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": "Two-factor authentication enabled."})
}
