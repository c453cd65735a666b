package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/kevinaaaquil/library/backend/apperror"
	"github.com/kevinaaaquil/library/backend/library"
	"github.com/kevinaaaquil/library/backend/models"
)

type ReservationsHandler struct {
	Svc *library.Service
	Log logrus.FieldLogger
}

type ReserveRequest struct {
	ReaderID string `json:"readerId"`
	BookID   string `json:"bookId"`
}

func (h *ReservationsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.Svc.ListReservations(r.Context(), actor(r), library.ReservationQuery{
		ReaderID: q.Get("readerId"),
		BookID:   q.Get("bookId"),
		Status:   models.ReservationStatus(q.Get("status")),
	})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, list(res))
}

func (h *ReservationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ReserveRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if req.BookID == "" {
		writeError(w, r, h.Log, apperror.Validation("bookId is required"))
		return
	}
	res, err := h.Svc.Reserve(r.Context(), actor(r), req.ReaderID, req.BookID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *ReservationsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	res, err := h.Svc.CancelReservation(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *ReservationsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	res, err := h.Svc.ApproveReservation(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
