package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"snapLinkAPI/internal/types/notification"
	"snapLinkAPI/services"
)

type NotificationHandler struct {
	prefService *services.PreferenceService
}

func NewNotificationHandler(prefService *services.PreferenceService) *NotificationHandler {
	return &NotificationHandler{prefService: prefService}
}

// userID pulls the id the upstream auth gateway stamped on the
// request. Authentication itself happens before this service.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

// PUT /api/v1/notifications/preferences
func (h *NotificationHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	uid := userID(r)
	if uid == "" {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req notification.UpdatePreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.prefService.UpdatePreferences(ctx, uid, &req); err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// POST /api/v1/notifications/register-device
func (h *NotificationHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	uid := userID(r)
	if uid == "" {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req notification.RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Token == "" {
		respondWithError(w, http.StatusBadRequest, "Token is required")
		return
	}

	if err := h.prefService.RegisterDevice(ctx, uid, &req); err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondWithJSON(w, http.StatusCreated, map[string]string{"status": "registered"})
}
