package handlers_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/lumenclass/authcore/internal/handlers"
	"github.com/lumenclass/authcore/internal/models"
	pkghttp "github.com/lumenclass/authcore/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListNotifications(t *testing.T) {
	gotLimit := -1
	notifications := &handlers.MockNotificationReader{
		ListFunc: func(ctx context.Context, accountID string, limit int) ([]models.SecurityNotification, error) {
			gotLimit = limit
			return []models.SecurityNotification{
				{ID: "notification_1", EventType: models.EventNewDeviceLogin, Severity: models.SeverityWarning, Title: "New device signed in"},
			}, nil
		},
	}
	handler := handlers.NewNotificationsHandler(notifications)

	req := handlers.NewTestRequest(t, "GET", "/notifications?limit=10", nil)
	req = handlers.WithAuthContext(req, "user123", "session_1")
	w := httptest.NewRecorder()
	handler.List(w, req)

	var resp struct {
		Notifications []handlers.NotificationResponse `json:"notifications"`
	}
	handlers.AssertJSONResponse(t, w, 200, &resp)
	require.Len(t, resp.Notifications, 1)
	assert.Equal(t, models.EventNewDeviceLogin, resp.Notifications[0].EventType)
	assert.Equal(t, 10, gotLimit)
}

func TestListNotifications_BadLimit(t *testing.T) {
	handler := handlers.NewNotificationsHandler(&handlers.MockNotificationReader{})

	req := handlers.NewTestRequest(t, "GET", "/notifications?limit=abc", nil)
	req = handlers.WithAuthContext(req, "user123", "session_1")
	w := httptest.NewRecorder()
	handler.List(w, req)

	handlers.AssertErrorResponse(t, w, 400, pkghttp.CodeValidationError)
}

func TestMarkNotificationRead(t *testing.T) {
	marked := ""
	notifications := &handlers.MockNotificationReader{
		MarkReadFunc: func(ctx context.Context, id, accountID string) error {
			marked = id
			return nil
		},
	}
	handler := handlers.NewNotificationsHandler(notifications)

	req := handlers.NewTestRequest(t, "POST", "/notifications/notification_1/read", nil)
	req = handlers.WithAuthContext(req, "user123", "session_1")
	req = withURLParam(req, "id", "notification_1")
	w := httptest.NewRecorder()
	handler.MarkRead(w, req)

	assert.Equal(t, 204, w.Code)
	assert.Equal(t, "notification_1", marked)
}

func TestMarkNotificationRead_NotFound(t *testing.T) {
	notifications := &handlers.MockNotificationReader{
		MarkReadFunc: func(ctx context.Context, id, accountID string) error {
			return models.ErrNotFound
		},
	}
	handler := handlers.NewNotificationsHandler(notifications)

	req := handlers.NewTestRequest(t, "POST", "/notifications/missing/read", nil)
	req = handlers.WithAuthContext(req, "user123", "session_1")
	req = withURLParam(req, "id", "missing")
	w := httptest.NewRecorder()
	handler.MarkRead(w, req)

	handlers.AssertErrorResponse(t, w, 404, pkghttp.CodeNotFound)
}
