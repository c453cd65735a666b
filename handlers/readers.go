package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/kevinaaaquil/library/backend/library"
	"github.com/kevinaaaquil/library/backend/models"
	"github.com/kevinaaaquil/library/backend/store"
)

type ReadersHandler struct {
	Svc *library.Service
	Log logrus.FieldLogger
}

func (h *ReadersHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	readers, err := h.Svc.ListReaders(r.Context(), actor(r), store.ReaderFilter{
		Search: q.Get("search"),
		Status: models.ReaderStatus(q.Get("status")),
	})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, list(readers))
}

// Get returns the reader with their loans, reservations and fines.
func (h *ReadersHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.Svc.GetReader(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *ReadersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in library.ReaderInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	reader, err := h.Svc.CreateReader(r.Context(), actor(r), in)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, reader)
}

func (h *ReadersHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch library.ReaderPatch
	if err := decode(r, &patch); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	reader, err := h.Svc.UpdateReader(r.Context(), actor(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, reader)
}

func (h *ReadersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.DeleteReader(r.Context(), actor(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
