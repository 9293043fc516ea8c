package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lumenclass/authcore/internal/auth"
	"github.com/lumenclass/authcore/internal/models"
	pkghttp "github.com/lumenclass/authcore/pkg/http"
)

// NotificationReader is the slice of the notification service the
// notification endpoints need.
type NotificationReader interface {
	List(ctx context.Context, accountID string, limit int) ([]models.SecurityNotification, error)
	MarkRead(ctx context.Context, id, accountID string) error
}

// NotificationsHandler exposes the signed-in user's stored security alerts.
type NotificationsHandler struct {
	notifications NotificationReader
}

func NewNotificationsHandler(notifications NotificationReader) *NotificationsHandler {
	return &NotificationsHandler{notifications: notifications}
}

// NotificationResponse is the client view of a stored security alert.
type NotificationResponse struct {
	ID        string               `json:"id"`
	EventType string               `json:"event_type"`
	Severity  string               `json:"severity"`
	Title     string               `json:"title"`
	Message   string               `json:"message"`
	Metadata  models.EventMetadata `json:"metadata"`
	ReadAt    *time.Time           `json:"read_at,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
}

// List returns recent security notifications, newest first.
func (h *NotificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			pkghttp.WriteValidationError(w, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	notifications, err := h.notifications.List(r.Context(), claims.UserID, limit)
	if err != nil {
		pkghttp.WriteInternalError(w)
		return
	}

	resp := make([]NotificationResponse, 0, len(notifications))
	for _, n := range notifications {
		resp = append(resp, NotificationResponse{
			ID:        n.ID,
			EventType: n.EventType,
			Severity:  n.Severity,
			Title:     n.Title,
			Message:   n.Message,
			Metadata:  n.Metadata,
			ReadAt:    n.ReadAt,
			CreatedAt: n.CreatedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"notifications": resp})
}

// MarkRead marks one notification as read.
func (h *NotificationsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	notificationID := chi.URLParam(r, "id")
	if notificationID == "" {
		pkghttp.WriteValidationError(w, "notification id is required")
		return
	}

	if err := h.notifications.MarkRead(r.Context(), notificationID, claims.UserID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Notification not found")
			return
		}
		pkghttp.WriteInternalError(w)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
