package handlers

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kevinaaaquil/library/backend/apperror"
	"github.com/kevinaaaquil/library/backend/library"
	"github.com/kevinaaaquil/library/backend/middleware"
	"github.com/kevinaaaquil/library/backend/models"
	"github.com/kevinaaaquil/library/backend/session"
)

const DefaultTokenTTL = 7 * 24 * time.Hour

type AuthHandler struct {
	Svc       *library.Service
	JWTSecret string
	TokenTTL  time.Duration
	Revoker   session.Revoker
	Log       logrus.FieldLogger
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	FullName  string    `json:"fullName,omitempty"`
	Role      string    `json:"role"`
	ReaderID  *string   `json:"readerId"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, r, h.Log, apperror.Validation("username and password required"))
		return
	}
	user, err := h.Svc.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	h.respondWithToken(w, r, http.StatusOK, user)
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req library.RegisterInput
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	user, err := h.Svc.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	h.respondWithToken(w, r, http.StatusCreated, user)
}

// Logout revokes the presented token until it would have expired anyway.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, h.Log, apperror.Unauthorized(apperror.CodeUnauthorized, "not authenticated"))
		return
	}
	if h.Revoker != nil && claims.ID != "" {
		expires := time.Now().Add(h.ttl())
		if claims.ExpiresAt != nil {
			expires = claims.ExpiresAt.Time
		}
		if err := h.Revoker.Revoke(r.Context(), claims.ID, expires); err != nil {
			writeError(w, r, h.Log, apperror.Internal(err))
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.Svc.GetUser(r.Context(), actor(r).UserID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) ttl() time.Duration {
	if h.TokenTTL > 0 {
		return h.TokenTTL
	}
	return DefaultTokenTTL
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, r *http.Request, status int, user *models.User) {
	token, expires, err := h.createToken(user)
	if err != nil {
		writeError(w, r, h.Log, apperror.Internal(err))
		return
	}
	writeJSON(w, status, LoginResponse{
		Token:     token,
		ExpiresAt: expires,
		ID:        user.ID,
		Username:  user.Username,
		FullName:  user.FullName,
		Role:      user.Role,
		ReaderID:  user.ReaderID,
	})
}

func (h *AuthHandler) createToken(user *models.User) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(h.ttl())
	claims := &middleware.Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	if user.ReaderID != nil {
		claims.ReaderID = *user.ReaderID
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(h.JWTSecret))
	return signed, expires, err
}
