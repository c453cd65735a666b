package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevinaaaquil/library/backend/middleware"
	"github.com/kevinaaaquil/library/backend/session"
)

const secret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key any, claims *middleware.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func claims(role string, ttl time.Duration) *middleware.Claims {
	return &middleware.Claims{
		UserID:   "u1",
		Username: "alice",
		Role:     role,
		ReaderID: "r1",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
}

var echoClaims = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	c, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	w.Write([]byte(c.UserID + "/" + c.Role + "/" + c.ReaderID))
})

func call(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuth_AcceptsValidToken(t *testing.T) {
	h := middleware.Auth(secret, nil, logrus.New())(echoClaims)

	rec := call(h, sign(t, jwt.SigningMethodHS256, []byte(secret), claims("reader", time.Hour)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1/reader/r1", rec.Body.String())
}

func TestAuth_RejectsBadTokens(t *testing.T) {
	h := middleware.Auth(secret, nil, logrus.New())(echoClaims)
	cases := map[string]string{
		"missing":      "",
		"expired":      sign(t, jwt.SigningMethodHS256, []byte(secret), claims("reader", -time.Minute)),
		"wrong secret": sign(t, jwt.SigningMethodHS256, []byte("other"), claims("reader", time.Hour)),
		"wrong alg":    sign(t, jwt.SigningMethodHS512, []byte(secret), claims("reader", time.Hour)),
		"garbage":      "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			rec := call(h, token)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), `"code":"UNAUTHORIZED"`)
		})
	}
}

func TestAuth_RejectsRevokedToken(t *testing.T) {
	revoker := session.NewMemoryRevoker()
	h := middleware.Auth(secret, revoker, logrus.New())(echoClaims)
	token := sign(t, jwt.SigningMethodHS256, []byte(secret), claims("reader", time.Hour))
	require.Equal(t, http.StatusOK, call(h, token).Code)

	require.NoError(t, revoker.Revoke(context.Background(), "jti-1", time.Now().Add(time.Hour)))

	rec := call(h, token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "revoked")
}

func TestRequireRole(t *testing.T) {
	h := middleware.Auth(secret, nil, logrus.New())(middleware.RequireRole("admin")(echoClaims))

	assert.Equal(t, http.StatusForbidden, call(h, sign(t, jwt.SigningMethodHS256, []byte(secret), claims("reader", time.Hour))).Code)
	assert.Equal(t, http.StatusOK, call(h, sign(t, jwt.SigningMethodHS256, []byte(secret), claims("admin", time.Hour))).Code)
}

func TestRateLimiter_PerClient(t *testing.T) {
	rl := middleware.NewRateLimiter(1, logrus.New())
	h := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	from := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, from("10.0.0.1:1000"))
	assert.Equal(t, http.StatusTooManyRequests, from("10.0.0.1:2000"))
	assert.Equal(t, http.StatusOK, from("10.0.0.2:1000"))

	rl.Cleanup(0)
	assert.Equal(t, http.StatusOK, from("10.0.0.1:3000"))
}

func TestRequestLogger_WritesOneEntry(t *testing.T) {
	log, hook := test.NewNullLogger()
	h := middleware.RequestLogger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/books/x", nil))

	require.Len(t, hook.AllEntries(), 1)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, 404, entry.Data["status"])
	assert.Equal(t, "/api/books/x", entry.Data["path"])
}

func TestCORS(t *testing.T) {
	h := middleware.CORS([]string{"https://desk.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	get := func(method, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/api/books", nil)
		req.Header.Set("Origin", origin)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, "https://desk.example.com", get(http.MethodGet, "https://desk.example.com").Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, get(http.MethodGet, "https://evil.example.com").Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusNoContent, get(http.MethodOptions, "https://desk.example.com").Code)

	rec := httptest.NewRecorder()
	middleware.CORS(nil)(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
