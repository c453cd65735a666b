package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/kevinaaaquil/library/backend/library"
	"github.com/kevinaaaquil/library/backend/store"
)

type NotificationsHandler struct {
	Svc *library.Service
	Log logrus.FieldLogger
}

// List pages through the caller's feed with ?limit= and ?offset=.
func (h *NotificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	page, err := h.Svc.ListNotifications(r.Context(), actor(r), store.Page{Limit: limit, Offset: offset})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *NotificationsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.MarkNotificationRead(r.Context(), actor(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *NotificationsHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.Svc.MarkAllNotificationsRead(r.Context(), actor(r))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "updated": n})
}

type StatsHandler struct {
	Svc *library.Service
	Log logrus.FieldLogger
}

func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Svc.Stats(r.Context(), actor(r))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
