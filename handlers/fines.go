package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/kevinaaaquil/library/backend/library"
	"github.com/kevinaaaquil/library/backend/store"
)

type FinesHandler struct {
	Svc *library.Service
	Log logrus.FieldLogger
}

func (h *FinesHandler) List(w http.ResponseWriter, r *http.Request) {
	paid, err := queryBool(r, "paid")
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	fines, err := h.Svc.ListFines(r.Context(), actor(r), store.FineFilter{
		ReaderID: r.URL.Query().Get("readerId"),
		Paid:     paid,
	})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, list(fines))
}

func (h *FinesHandler) Pay(w http.ResponseWriter, r *http.Request) {
	fine, err := h.Svc.PayFine(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, fine)
}
