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

// DeviceManager is the slice of the device service the device endpoints need.
type DeviceManager interface {
	List(ctx context.Context, accountID string) ([]models.TrustedDevice, error)
	Trust(ctx context.Context, accountID, deviceID, ipAddress string) error
	Revoke(ctx context.Context, accountID, deviceID, ipAddress string) error
}

// DevicesHandler exposes the signed-in user's device registry.
type DevicesHandler struct {
	devices  DeviceManager
	ipConfig *pkghttp.IPConfig
}

func NewDevicesHandler(devices DeviceManager, ipConfig *pkghttp.IPConfig) *DevicesHandler {
	return &DevicesHandler{devices: devices, ipConfig: ipConfig}
}

// DeviceResponse is the client view of a registered device.
type DeviceResponse struct {
	ID           string    `json:"id"`
	FriendlyName string    `json:"friendly_name"`
	DeviceClass  string    `json:"device_class"`
	Trusted      bool      `json:"trusted"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	LastIP       string    `json:"last_ip"`
	Country      *string   `json:"country,omitempty"`
	City         *string   `json:"city,omitempty"`
}

// List returns every device seen on the account.
func (h *DevicesHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	devices, err := h.devices.List(r.Context(), claims.UserID)
	if err != nil {
		pkghttp.WriteInternalError(w)
		return
	}

	resp := make([]DeviceResponse, 0, len(devices))
	for _, d := range devices {
		resp = append(resp, DeviceResponse{
			ID:           d.ID,
			FriendlyName: d.FriendlyName,
			DeviceClass:  d.DeviceClass,
			Trusted:      d.Trusted,
			FirstSeen:    d.FirstSeen,
			LastSeen:     d.LastSeen,
			LastIP:       d.LastIP,
			Country:      d.Country,
			City:         d.City,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"devices": resp})
}

// Trust marks a device as trusted, letting it skip risk-triggered 2FA.
func (h *DevicesHandler) Trust(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	deviceID := chi.URLParam(r, "id")
	if deviceID == "" {
		pkghttp.WriteValidationError(w, "device id is required")
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	if err := h.devices.Trust(r.Context(), claims.UserID, deviceID, ipAddress); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Device not found")
			return
		}
		pkghttp.WriteInternalError(w)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Revoke removes a device and signs out all of its sessions.
func (h *DevicesHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	deviceID := chi.URLParam(r, "id")
	if deviceID == "" {
		pkghttp.WriteValidationError(w, "device id is required")
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	if err := h.devices.Revoke(r.Context(), claims.UserID, deviceID, ipAddress); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Device not found")
			return
		}
		pkghttp.WriteInternalError(w)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
