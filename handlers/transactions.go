package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/kevinaaaquil/library/backend/apperror"
	"github.com/kevinaaaquil/library/backend/library"
	"github.com/kevinaaaquil/library/backend/models"
)

// TransactionsHandler serves loans under their public name, transactions.
type TransactionsHandler struct {
	Svc *library.Service
	Log logrus.FieldLogger
}

type BorrowRequest struct {
	ReaderID string `json:"readerId"`
	BookID   string `json:"bookId"`
	DueDate  string `json:"dueDate"`
	Notes    string `json:"notes"`
}

type ReturnRequest struct {
	TransactionID string `json:"transactionId"`
}

type ExtendRequest struct {
	TransactionID string `json:"transactionId"`
	NewDueDate    string `json:"newDueDate"`
}

func (h *TransactionsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loans, err := h.Svc.ListLoans(r.Context(), actor(r), library.LoanQuery{
		ReaderID: q.Get("readerId"),
		BookID:   q.Get("bookId"),
		Status:   models.LoanStatus(q.Get("status")),
	})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, list(loans))
}

func (h *TransactionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	loan, err := h.Svc.GetLoan(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (h *TransactionsHandler) Borrow(w http.ResponseWriter, r *http.Request) {
	var req BorrowRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	due, err := parseDate("dueDate", req.DueDate)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	loan, err := h.Svc.Borrow(r.Context(), actor(r), library.BorrowRequest{
		ReaderID: req.ReaderID,
		BookID:   req.BookID,
		DueDate:  due,
		Notes:    req.Notes,
	})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

func (h *TransactionsHandler) Return(w http.ResponseWriter, r *http.Request) {
	var req ReturnRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if req.TransactionID == "" {
		writeError(w, r, h.Log, apperror.Validation("transactionId is required"))
		return
	}
	res, err := h.Svc.Return(r.Context(), actor(r), req.TransactionID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *TransactionsHandler) Extend(w http.ResponseWriter, r *http.Request) {
	var req ExtendRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if req.TransactionID == "" {
		writeError(w, r, h.Log, apperror.Validation("transactionId is required"))
		return
	}
	due, err := parseDate("newDueDate", req.NewDueDate)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	loan, err := h.Svc.Extend(r.Context(), actor(r), req.TransactionID, due)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}
