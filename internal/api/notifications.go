package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	notifications, err := h.store.ListNotifications(r.Context(), principal(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}

func (h *Handler) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.MarkNotificationRead(r.Context(), chi.URLParam(r, "id"), principal(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *Handler) markAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	updated, err := h.store.MarkAllNotificationsRead(r.Context(), principal(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

func (h *Handler) deleteNotification(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteNotification(r.Context(), chi.URLParam(r, "id"), principal(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
