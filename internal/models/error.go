package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Infrastructure errors
	ErrConnection = errors.New("backing store unreachable")

	// Account state errors
	ErrAccountDisabled  = errors.New("account is disabled")
	ErrAccountSuspended = errors.New("account is suspended")
	ErrAccountLocked    = errors.New("account is temporarily locked")

	// Rate limiting
	ErrRateLimited = errors.New("too many attempts")

	// Two-factor challenges
	ErrChallengeExpired   = errors.New("challenge has expired")
	ErrChallengeExhausted = errors.New("challenge attempts exhausted")
	ErrChallengeResolved  = errors.New("challenge already resolved")
	ErrInvalidCode        = errors.New("invalid code")
	ErrResendThrottled    = errors.New("resend requested too soon")

	// Sessions and tokens
	ErrTokenInvalid = errors.New("invalid or expired token")
	ErrTokenReused  = errors.New("refresh token reuse detected")

	// Risk policy
	ErrLoginBlocked = errors.New("login blocked by risk policy")
)
