package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/kevinaaaquil/library/backend/apperror"
	"github.com/kevinaaaquil/library/backend/library"
	"github.com/kevinaaaquil/library/backend/middleware"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto its HTTP status. Causes of internal errors are
// logged and never sent to the client.
func writeError(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger, err error) {
	e := apperror.As(err)
	if e.Kind == apperror.KindInternal {
		log.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
	}
	writeJSON(w, e.Kind.HTTPStatus(), errorResponse{Error: e.Message, Code: e.Code})
}

// decode reads a JSON body into v. An empty body is invalid.
func decode(r *http.Request, v any) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.Validation("request body is required")
		}
		return apperror.Validation("invalid json")
	}
	return nil
}

// actor builds the caller from the token claims set by middleware.Auth.
func actor(r *http.Request) library.Actor {
	c, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return library.Actor{}
	}
	return library.Actor{UserID: c.UserID, Role: c.Role, ReaderID: c.ReaderID}
}

// parseDate accepts YYYY-MM-DD (midnight UTC) or RFC 3339.
func parseDate(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, apperror.Validationf("%s is required", field)
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, apperror.Validationf("%s must be YYYY-MM-DD or RFC 3339", field)
	}
	return t.UTC(), nil
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apperror.Validationf("%s must be a non-negative integer", key)
	}
	return n, nil
}

func queryBool(r *http.Request, key string) (*bool, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, apperror.Validationf("%s must be true or false", key)
	}
	return &b, nil
}

// list keeps empty results as [] rather than null.
func list[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
