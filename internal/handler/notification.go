package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NotificationHandler lists the notifications queued for a user.
type NotificationHandler struct {
	notifications NotificationService
	logger        *slog.Logger
}

func NewNotificationHandler(notifications NotificationService, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, logger: logger}
}

// HandleList returns one page of the user's notifications, newest first.
//
// HTTP: GET /api/users/{userID}/notifications?page=&perPage=
func (h *NotificationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	page, perPage, err := pageParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	notifications, err := h.notifications.ListNotifications(r.Context(), actor, chi.URLParam(r, "userID"), page, perPage)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}
