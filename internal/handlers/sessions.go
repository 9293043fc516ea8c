package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lumenclass/authcore/internal/auth"
	"github.com/lumenclass/authcore/internal/models"
	pkghttp "github.com/lumenclass/authcore/pkg/http"
)

// SessionDirectory is the slice of the session service the session
// management endpoints need.
type SessionDirectory interface {
	List(ctx context.Context, accountID string) ([]models.Session, error)
	Revoke(ctx context.Context, accountID, sessionID, ipAddress string) error
	RevokeAll(ctx context.Context, accountID, ipAddress string) (int64, error)
	RevokeOthers(ctx context.Context, accountID, keepSessionID, ipAddress string) (int64, error)
}

// SessionsHandler exposes the signed-in user's active sessions.
type SessionsHandler struct {
	sessions SessionDirectory
	ipConfig *pkghttp.IPConfig
}

func NewSessionsHandler(sessions SessionDirectory, ipConfig *pkghttp.IPConfig) *SessionsHandler {
	return &SessionsHandler{sessions: sessions, ipConfig: ipConfig}
}

// SessionResponse is the client view of an active session. Token hashes are
// never exposed.
type SessionResponse struct {
	ID           string    `json:"id"`
	DeviceName   string    `json:"device_name"`
	IPAddress    string    `json:"ip_address"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	ExpiresAt    time.Time `json:"expires_at"`
	Current      bool      `json:"current"`
}

// List returns the account's active sessions, flagging the caller's own.
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	sessions, err := h.sessions.List(r.Context(), claims.UserID)
	if err != nil {
		pkghttp.WriteInternalError(w)
		return
	}

	resp := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, SessionResponse{
			ID:           s.ID,
			DeviceName:   s.DeviceName,
			IPAddress:    s.IPAddress,
			CreatedAt:    s.CreatedAt,
			LastAccessed: s.LastAccessed,
			ExpiresAt:    s.ExpiresAt,
			Current:      s.ID == claims.SessionID,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"sessions": resp})
}

// Revoke deactivates one of the account's sessions.
func (h *SessionsHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		pkghttp.WriteValidationError(w, "session id is required")
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	if err := h.sessions.Revoke(r.Context(), claims.UserID, sessionID, ipAddress); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Session not found")
			return
		}
		pkghttp.WriteInternalError(w)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RevokeAll deactivates every session for the account, including the
// caller's own. With ?keep_current=true the caller's session survives.
func (h *SessionsHandler) RevokeAll(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	var revoked int64
	var err error
	if r.URL.Query().Get("keep_current") == "true" {
		revoked, err = h.sessions.RevokeOthers(r.Context(), claims.UserID, claims.SessionID, ipAddress)
	} else {
		revoked, err = h.sessions.RevokeAll(r.Context(), claims.UserID, ipAddress)
	}
	if err != nil {
		pkghttp.WriteInternalError(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]int64{"sessions_revoked": revoked})
}
