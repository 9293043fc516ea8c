package http

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// Error codes exposed to clients. These are the full taxonomy for the
// security core; handlers map sentinel errors onto them.
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeAccountLocked      = "ACCOUNT_LOCKED"
	CodeChallengeExpired   = "CHALLENGE_EXPIRED"
	CodeChallengeExhausted = "CHALLENGE_EXHAUSTED"
	CodeChallengeResolved  = "CHALLENGE_RESOLVED"
	CodeInvalidCode        = "INVALID_CODE"
	CodeLoginBlocked       = "LOGIN_BLOCKED"
	CodeInvalidToken       = "INVALID_OR_EXPIRED_TOKEN"
	CodeConnectionError    = "CONNECTION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeInternalError      = "INTERNAL_ERROR"
)

// ErrorResponse is the standard API error body.
type ErrorResponse struct {
	Error string `json:"error"` // Human-readable message
	Code  string `json:"code"`  // Machine-readable error code
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	// Encoding errors are not exposed to the client
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func WriteValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

func WriteInvalidCredentials(w http.ResponseWriter) {
	// Identical body for "user not found" and "wrong password"
	WriteError(w, http.StatusUnauthorized, CodeInvalidCredentials, "Authentication failed")
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// WriteRateLimited reports a throttled request with a Retry-After hint.
func WriteRateLimited(w http.ResponseWriter, retryAfterSeconds int) {
	if retryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(struct {
		Error             string `json:"error"`
		Code              string `json:"code"`
		RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
	}{
		Error:             "Too many attempts. Please try again later.",
		Code:              CodeRateLimited,
		RetryAfterSeconds: retryAfterSeconds,
	})
}

// WriteInvalidCode reports a rejected challenge code along with how many
// attempts remain before the challenge exhausts.
func WriteInvalidCode(w http.ResponseWriter, attemptsRemaining int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(struct {
		Error             string `json:"error"`
		Code              string `json:"code"`
		AttemptsRemaining int    `json:"attempts_remaining"`
	}{
		Error:             "Incorrect code",
		Code:              CodeInvalidCode,
		AttemptsRemaining: attemptsRemaining,
	})
}

func WriteAccountLocked(w http.ResponseWriter) {
	WriteError(w, http.StatusLocked, CodeAccountLocked, "Account is locked")
}

func WriteLoginBlocked(w http.ResponseWriter) {
	WriteError(w, http.StatusForbidden, CodeLoginBlocked, "Sign-in blocked for security reasons")
}

func WriteInvalidToken(w http.ResponseWriter) {
	WriteError(w, http.StatusUnauthorized, CodeInvalidToken, "Invalid or expired token")
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

func WriteConnectionError(w http.ResponseWriter) {
	WriteError(w, http.StatusServiceUnavailable, CodeConnectionError, "Service temporarily unavailable")
}

func WriteInternalError(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, "Internal server error")
}
