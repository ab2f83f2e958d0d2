package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"staffhub/internal/models"
)

// ListNotifications returns the caller's latest notifications.
// GET /api/v1/notifications
func (h *Handlers) ListNotifications(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListNotifications(r.Context(), UserFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, list)
}

// MarkNotificationRead marks one of the caller's notifications read. Another
// user's notification is reported as missing.
// PUT /api/v1/notifications/{id}/read
func (h *Handlers) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := h.service.MarkNotificationRead(r.Context(), UserFromContext(r.Context()), mux.Vars(r)["id"]); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, &models.MessageResponse{Message: "Notification marked as read"})
}

// GET /api/v1/notifications/unread-count
func (h *Handlers) UnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.UnreadCount(r.Context(), UserFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, &models.UnreadCountResponse{UnreadCount: n})
}
