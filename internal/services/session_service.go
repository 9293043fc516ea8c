package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/lumenclass/authcore/internal/auth"
	"github.com/lumenclass/authcore/internal/models"
	pkgauth "github.com/lumenclass/authcore/pkg/auth"
	pkglogger "github.com/lumenclass/authcore/pkg/logger"
)

// SessionRepository defines the interface for session persistence
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	GetByRefreshHash(ctx context.Context, hash string) (*models.Session, error)
	GetByPreviousRefreshHash(ctx context.Context, hash string) (*models.Session, error)
	RotateRefresh(ctx context.Context, sessionID, currentHash, nextHash, nextAccessTokenID string, nextExpiry time.Time) error
	IsSessionActive(ctx context.Context, sessionID string) (bool, error)
	ListActive(ctx context.Context, accountID string) ([]models.Session, error)
	Deactivate(ctx context.Context, sessionID, accountID string) error
	DeactivateAll(ctx context.Context, accountID string) (int64, error)
	DeactivateAllExcept(ctx context.Context, accountID, keepSessionID string) (int64, error)
	DeactivateByFingerprint(ctx context.Context, accountID, fingerprintHash string) (int64, error)
}

// refreshTokenBytes sizes the opaque refresh token at 256 bits of entropy.
const refreshTokenBytes = 32

// SessionIssueParams carries the device and transport context a new session
// is bound to.
type SessionIssueParams struct {
	DeviceFingerprint string
	DeviceName        string
	IPAddress         string
	UserAgent         string
	RememberMe        bool
}

// SessionService owns session lifecycle: issuance, refresh rotation, reuse
// detection, and revocation. Access tokens are JWTs carrying the session ID
// but are only honored while the session row is active; refresh tokens are
// opaque and stored hashed.
type SessionService struct {
	sessions           SessionRepository
	tm                 *auth.TokenManager
	refreshTokenExpiry time.Duration
	rememberMeExpiry   time.Duration
	logger             *slog.Logger
	auditLogger        *pkglogger.AuditLogger
}

func NewSessionService(sessions SessionRepository, tm *auth.TokenManager, refreshTokenExpiry, rememberMeExpiry time.Duration, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *SessionService {
	return &SessionService{
		sessions:           sessions,
		tm:                 tm,
		refreshTokenExpiry: refreshTokenExpiry,
		rememberMeExpiry:   rememberMeExpiry,
		logger:             logger,
		auditLogger:        auditLogger,
	}
}

// Issue creates a session and its token pair.
func (s *SessionService) Issue(ctx context.Context, user *models.User, params SessionIssueParams) (*models.TokenPair, error) {
	sessionID := uuid.New().String()

	accessToken, jti, err := s.tm.GenerateAccessToken(user.ID, user.Email, sessionID)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	refreshToken, err := pkgauth.GenerateOpaqueToken(refreshTokenBytes)
	if err != nil {
		s.logger.Error("failed to generate refresh token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	expiry := s.refreshTokenExpiry
	if params.RememberMe {
		expiry = s.rememberMeExpiry
	}

	session := &models.Session{
		ID:                sessionID,
		AccountID:         user.ID,
		DeviceFingerprint: params.DeviceFingerprint,
		DeviceName:        params.DeviceName,
		AccessTokenID:     jti,
		RefreshTokenHash:  auth.HashToken(refreshToken),
		IPAddress:         params.IPAddress,
		UserAgent:         params.UserAgent,
		ExpiresAt:         time.Now().Add(expiry),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		s.logger.Error("failed to create session", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("session issued",
		slog.String("user_id", user.ID),
		slog.String("session_id", sessionID),
		slog.Bool("remember_me", params.RememberMe))

	return &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		SessionID:    sessionID,
		ExpiresIn:    int64(s.tm.AccessTokenExpiry().Seconds()),
	}, nil
}

// Refresh rotates the refresh token. A token that was already rotated away
// is treated as stolen: every session for the account is revoked and the
// call fails with ErrTokenReused.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	hash := auth.HashToken(refreshToken)

	session, err := s.sessions.GetByRefreshHash(ctx, hash)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, s.handleRefreshMiss(ctx, hash)
		}
		s.logger.Error("failed to look up refresh token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !session.IsActive || time.Now().After(session.ExpiresAt) {
		return nil, models.ErrTokenInvalid
	}

	accessToken, jti, err := s.tm.GenerateAccessToken(session.AccountID, "", session.ID)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("session_id", session.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	nextRefreshToken, err := pkgauth.GenerateOpaqueToken(refreshTokenBytes)
	if err != nil {
		s.logger.Error("failed to generate refresh token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	expiry := session.ExpiresAt.Sub(session.CreatedAt)
	err = s.sessions.RotateRefresh(ctx, session.ID, hash, auth.HashToken(nextRefreshToken), jti, time.Now().Add(expiry))
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			// Lost the rotation race: another request consumed this token
			// between our read and the swap. Treat the replay like reuse.
			return nil, s.handleRefreshMiss(ctx, hash)
		}
		s.logger.Error("failed to rotate refresh token", slog.String("session_id", session.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("session refreshed",
		slog.String("account_id", session.AccountID),
		slog.String("session_id", session.ID))

	return &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: nextRefreshToken,
		SessionID:    session.ID,
		ExpiresIn:    int64(s.tm.AccessTokenExpiry().Seconds()),
	}, nil
}

// handleRefreshMiss distinguishes an unknown token from a replayed one. A
// hash matching previous_refresh_hash means the token was valid once and was
// already consumed, which indicates theft.
func (s *SessionService) handleRefreshMiss(ctx context.Context, hash string) error {
	session, err := s.sessions.GetByPreviousRefreshHash(ctx, hash)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrTokenInvalid
		}
		s.logger.Error("failed to check refresh token reuse", slog.Any("error", err))
		return models.ErrInternalServer
	}

	revoked, err := s.sessions.DeactivateAll(ctx, session.AccountID)
	if err != nil {
		s.logger.Error("failed to revoke sessions after token reuse",
			slog.String("account_id", session.AccountID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Warn("refresh token reuse detected, all sessions revoked",
		slog.String("account_id", session.AccountID),
		slog.Int64("sessions_revoked", revoked))
	s.auditLogger.LogSecurityAction("refresh_token_reuse", session.AccountID, session.IPAddress, map[string]string{
		"session_id": session.ID,
	})

	return models.ErrTokenReused
}

func (s *SessionService) List(ctx context.Context, accountID string) ([]models.Session, error) {
	return s.sessions.ListActive(ctx, accountID)
}

// Revoke deactivates one session.
func (s *SessionService) Revoke(ctx context.Context, accountID, sessionID, ipAddress string) error {
	if err := s.sessions.Deactivate(ctx, sessionID, accountID); err != nil {
		return err
	}

	s.auditLogger.LogSecurityAction("session_revoked", accountID, ipAddress, map[string]string{
		"session_id": sessionID,
	})
	return nil
}

// RevokeAll deactivates every session for the account.
func (s *SessionService) RevokeAll(ctx context.Context, accountID, ipAddress string) (int64, error) {
	revoked, err := s.sessions.DeactivateAll(ctx, accountID)
	if err != nil {
		return 0, err
	}

	s.auditLogger.LogSecurityAction("sessions_revoked_all", accountID, ipAddress, map[string]string{
		"sessions_revoked": strconv.FormatInt(revoked, 10),
	})
	return revoked, nil
}

// RevokeOthers deactivates every session for the account except the one the
// caller is on, so "sign out everywhere else" does not cut the caller off.
func (s *SessionService) RevokeOthers(ctx context.Context, accountID, keepSessionID, ipAddress string) (int64, error) {
	revoked, err := s.sessions.DeactivateAllExcept(ctx, accountID, keepSessionID)
	if err != nil {
		return 0, err
	}

	s.auditLogger.LogSecurityAction("sessions_revoked_others", accountID, ipAddress, map[string]string{
		"kept_session_id":  keepSessionID,
		"sessions_revoked": strconv.FormatInt(revoked, 10),
	})
	return revoked, nil
}
