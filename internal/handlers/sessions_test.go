package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lumenclass/authcore/internal/handlers"
	"github.com/lumenclass/authcore/internal/models"
	pkghttp "github.com/lumenclass/authcore/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestListSessions_FlagsCurrent(t *testing.T) {
	sessions := &handlers.MockSessionManager{
		ListFunc: func(ctx context.Context, accountID string) ([]models.Session, error) {
			return []models.Session{
				{ID: "session_1", DeviceName: "Desktop - Windows - Chrome", IPAddress: "203.0.113.10", ExpiresAt: time.Now().Add(time.Hour)},
				{ID: "session_2", DeviceName: "Mobile - Android - Chrome", IPAddress: "203.0.113.20", ExpiresAt: time.Now().Add(time.Hour)},
			}, nil
		},
	}
	handler := handlers.NewSessionsHandler(sessions, nil)

	req := handlers.NewTestRequest(t, "GET", "/sessions", nil)
	req = handlers.WithAuthContext(req, "user123", "session_2")
	w := httptest.NewRecorder()
	handler.List(w, req)

	var resp struct {
		Sessions []handlers.SessionResponse `json:"sessions"`
	}
	handlers.AssertJSONResponse(t, w, 200, &resp)
	require.Len(t, resp.Sessions, 2)
	assert.False(t, resp.Sessions[0].Current)
	assert.True(t, resp.Sessions[1].Current)
}

func TestRevokeSession(t *testing.T) {
	sessions := &handlers.MockSessionManager{}
	handler := handlers.NewSessionsHandler(sessions, nil)

	req := handlers.NewTestRequest(t, "DELETE", "/sessions/session_9", nil)
	req = handlers.WithAuthContext(req, "user123", "session_1")
	req = withURLParam(req, "id", "session_9")
	w := httptest.NewRecorder()
	handler.Revoke(w, req)

	assert.Equal(t, 204, w.Code)
	assert.Equal(t, []string{"session_9"}, sessions.Revoked)
}

func TestRevokeSession_NotFound(t *testing.T) {
	sessions := &handlers.MockSessionManager{
		RevokeFunc: func(ctx context.Context, accountID, sessionID, ipAddress string) error {
			return models.ErrNotFound
		},
	}
	handler := handlers.NewSessionsHandler(sessions, nil)

	req := handlers.NewTestRequest(t, "DELETE", "/sessions/missing", nil)
	req = handlers.WithAuthContext(req, "user123", "session_1")
	req = withURLParam(req, "id", "missing")
	w := httptest.NewRecorder()
	handler.Revoke(w, req)

	handlers.AssertErrorResponse(t, w, 404, pkghttp.CodeNotFound)
}

func TestRevokeAllSessions(t *testing.T) {
	sessions := &handlers.MockSessionManager{
		RevokeAllFunc: func(ctx context.Context, accountID, ipAddress string) (int64, error) {
			assert.Equal(t, "user123", accountID)
			return 3, nil
		},
	}
	handler := handlers.NewSessionsHandler(sessions, nil)

	req := handlers.NewTestRequest(t, "DELETE", "/sessions", nil)
	req = handlers.WithAuthContext(req, "user123", "session_1")
	w := httptest.NewRecorder()
	handler.RevokeAll(w, req)

	var resp map[string]int64
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, int64(3), resp["sessions_revoked"])
}

func TestRevokeAllSessions_KeepCurrentSparesCaller(t *testing.T) {
	sessions := &handlers.MockSessionManager{
		RevokeOthersFunc: func(ctx context.Context, accountID, keepSessionID, ipAddress string) (int64, error) {
			assert.Equal(t, "user123", accountID)
			assert.Equal(t, "session_1", keepSessionID)
			return 2, nil
		},
		RevokeAllFunc: func(ctx context.Context, accountID, ipAddress string) (int64, error) {
			t.Fatal("keep_current must not revoke the caller's session")
			return 0, nil
		},
	}
	handler := handlers.NewSessionsHandler(sessions, nil)

	req := handlers.NewTestRequest(t, "DELETE", "/sessions?keep_current=true", nil)
	req = handlers.WithAuthContext(req, "user123", "session_1")
	w := httptest.NewRecorder()
	handler.RevokeAll(w, req)

	var resp map[string]int64
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, int64(2), resp["sessions_revoked"])
}
