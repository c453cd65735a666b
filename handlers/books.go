package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/kevinaaaquil/library/backend/apperror"
	"github.com/kevinaaaquil/library/backend/library"
	"github.com/kevinaaaquil/library/backend/service"
	"github.com/kevinaaaquil/library/backend/store"
)

// CoverStore keeps uploaded cover images. *service.S3Service implements it.
type CoverStore interface {
	Upload(ctx context.Context, prefix, originalFilename string, body io.Reader, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	GetObject(ctx context.Context, key string) (io.ReadCloser, string, error)
	PresignedGetURL(ctx context.Context, key string, expiry time.Duration, responseFilename string) (string, error)
}

// MetadataLookup resolves an ISBN to catalog fields.
type MetadataLookup func(ctx context.Context, isbn string) (*service.BookMetadata, error)

type BooksHandler struct {
	Svc           *library.Service
	Covers        CoverStore // nil disables cover upload
	Lookup        MetadataLookup
	MaxCoverBytes int64
	Log           logrus.FieldLogger
}

func (h *BooksHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	books, err := h.Svc.ListBooks(r.Context(), store.BookFilter{
		Search:   q.Get("search"),
		Category: q.Get("category"),
	})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, list(books))
}

func (h *BooksHandler) Categories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.Svc.Categories(r.Context())
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, list(cats))
}

func (h *BooksHandler) Get(w http.ResponseWriter, r *http.Request) {
	book, err := h.Svc.GetBookDetail(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *BooksHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in library.BookInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	book, err := h.Svc.CreateBook(r.Context(), actor(r), in)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

type ImportResponse struct {
	Created int                    `json:"created"`
	Failed  int                    `json:"failed"`
	Results []library.ImportResult `json:"results"`
}

// Import creates every book in the posted array and reports per-row outcomes.
func (h *BooksHandler) Import(w http.ResponseWriter, r *http.Request) {
	var rows []library.BookInput
	if err := decode(r, &rows); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if len(rows) == 0 {
		writeError(w, r, h.Log, apperror.Validation("no books to import"))
		return
	}
	results, err := h.Svc.ImportBooks(r.Context(), actor(r), rows)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	resp := ImportResponse{Results: results}
	for _, res := range results {
		if res.Error == "" {
			resp.Created++
		} else {
			resp.Failed++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *BooksHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch library.BookPatch
	if err := decode(r, &patch); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	book, err := h.Svc.UpdateBook(r.Context(), actor(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *BooksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	book, err := h.Svc.DeleteBook(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if h.Covers != nil && book.CoverS3Key != "" {
		if err := h.Covers.Delete(r.Context(), book.CoverS3Key); err != nil {
			h.Log.WithError(err).WithField("key", book.CoverS3Key).Warn("cover delete failed")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// LookupISBN fetches catalog fields for an ISBN without saving anything.
func (h *BooksHandler) LookupISBN(w http.ResponseWriter, r *http.Request) {
	if !actor(r).IsStaff() {
		writeError(w, r, h.Log, apperror.Forbidden("Only library staff can do this"))
		return
	}
	isbn := strings.TrimSpace(r.URL.Query().Get("isbn"))
	if isbn == "" {
		writeError(w, r, h.Log, apperror.Validation("isbn is required"))
		return
	}
	if h.Lookup == nil {
		writeError(w, r, h.Log, apperror.Internal(errors.New("metadata lookup not configured")))
		return
	}
	meta, err := h.Lookup(r.Context(), isbn)
	if err != nil {
		if errors.Is(err, service.ErrMetadataNotFound) {
			writeError(w, r, h.Log, apperror.NotFound(apperror.CodeBookNotFound, "No metadata found for this ISBN"))
			return
		}
		h.Log.WithError(err).WithField("isbn", isbn).Warn("metadata lookup failed")
		writeError(w, r, h.Log, apperror.Conflict("LOOKUP_FAILED", "Metadata service unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

var allowedCoverTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// UploadCover stores a multipart "file" image as the book's cover.
func (h *BooksHandler) UploadCover(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	if !a.IsStaff() {
		writeError(w, r, h.Log, apperror.Forbidden("Only library staff can do this"))
		return
	}
	if h.Covers == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "cover upload not configured", Code: "COVERS_DISABLED"})
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := h.Svc.GetBook(r.Context(), id); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	maxBytes := h.MaxCoverBytes
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		writeError(w, r, h.Log, apperror.Validation("failed to parse multipart form"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, h.Log, apperror.Validation("missing file"))
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	contentType, ok := allowedCoverTypes[ext]
	if !ok {
		writeError(w, r, h.Log, apperror.Validation("only jpeg, png and webp covers are allowed"))
		return
	}
	key, err := h.Covers.Upload(r.Context(), "covers/"+id+"/", header.Filename, file, contentType)
	if err != nil {
		writeError(w, r, h.Log, apperror.Internal(err))
		return
	}
	previous, err := h.Svc.SetBookCover(r.Context(), a, id, "/api/books/"+id+"/cover", key)
	if err != nil {
		_ = h.Covers.Delete(r.Context(), key)
		writeError(w, r, h.Log, err)
		return
	}
	if previous != "" && previous != key {
		if err := h.Covers.Delete(r.Context(), previous); err != nil {
			h.Log.WithError(err).WithField("key", previous).Warn("old cover delete failed")
		}
	}
	book, err := h.Svc.GetBook(r.Context(), id)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// Cover streams an uploaded cover, or redirects to an external cover URL.
func (h *BooksHandler) Cover(w http.ResponseWriter, r *http.Request) {
	book, err := h.Svc.GetBook(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if book.CoverS3Key == "" || h.Covers == nil {
		if book.CoverURL != "" && !strings.HasPrefix(book.CoverURL, "/api/") {
			http.Redirect(w, r, book.CoverURL, http.StatusFound)
			return
		}
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no cover", Code: "COVER_NOT_FOUND"})
		return
	}
	if r.URL.Query().Get("redirect") == "1" {
		url, err := h.Covers.PresignedGetURL(r.Context(), book.CoverS3Key, 15*time.Minute, "")
		if err != nil {
			writeError(w, r, h.Log, apperror.Internal(err))
			return
		}
		http.Redirect(w, r, url, http.StatusFound)
		return
	}
	body, contentType, err := h.Covers.GetObject(r.Context(), book.CoverS3Key)
	if err != nil {
		writeError(w, r, h.Log, apperror.Internal(err))
		return
	}
	defer body.Close()
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = io.Copy(w, body)
}
