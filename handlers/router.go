package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/kevinaaaquil/library/backend/library"
	"github.com/kevinaaaquil/library/backend/metrics"
	"github.com/kevinaaaquil/library/backend/middleware"
	"github.com/kevinaaaquil/library/backend/models"
	"github.com/kevinaaaquil/library/backend/session"
)

type RouterConfig struct {
	Svc           *library.Service
	Log           logrus.FieldLogger
	JWTSecret     string
	TokenTTL      time.Duration
	Revoker       session.Revoker
	Covers        CoverStore
	Lookup        MetadataLookup
	MaxCoverBytes int64
	CORSOrigins   []string
	// AuthLimiter throttles login and register; nil leaves them unlimited.
	AuthLimiter *middleware.RateLimiter
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	authHandler := &AuthHandler{Svc: cfg.Svc, JWTSecret: cfg.JWTSecret, TokenTTL: cfg.TokenTTL, Revoker: cfg.Revoker, Log: log}
	booksHandler := &BooksHandler{Svc: cfg.Svc, Covers: cfg.Covers, Lookup: cfg.Lookup, MaxCoverBytes: cfg.MaxCoverBytes, Log: log}
	readersHandler := &ReadersHandler{Svc: cfg.Svc, Log: log}
	txHandler := &TransactionsHandler{Svc: cfg.Svc, Log: log}
	resHandler := &ReservationsHandler{Svc: cfg.Svc, Log: log}
	finesHandler := &FinesHandler{Svc: cfg.Svc, Log: log}
	notifHandler := &NotificationsHandler{Svc: cfg.Svc, Log: log}
	statsHandler := &StatsHandler{Svc: cfg.Svc, Log: log}
	usersHandler := &UsersHandler{Svc: cfg.Svc, Log: log}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.RequestLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(metrics.InstrumentHandler)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "welcome to the library."})
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Svc.Ping(r.Context()); err != nil {
			log.WithError(err).Warn("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if cfg.AuthLimiter != nil {
				r.Use(cfg.AuthLimiter.Handler)
			}
			r.Post("/auth/login", authHandler.Login)
			r.Post("/auth/register", authHandler.Register)
		})
		r.Get("/books/{id}/cover", booksHandler.Cover)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTSecret, cfg.Revoker, log))

			r.Post("/auth/logout", authHandler.Logout)
			r.Get("/auth/me", authHandler.Me)

			r.Get("/books", booksHandler.List)
			r.Get("/books/categories", booksHandler.Categories)
			r.Get("/books/lookup", booksHandler.LookupISBN)
			r.Post("/books", booksHandler.Create)
			r.Post("/books/import", booksHandler.Import)
			r.Get("/books/{id}", booksHandler.Get)
			r.Put("/books/{id}", booksHandler.Update)
			r.Delete("/books/{id}", booksHandler.Delete)
			r.Put("/books/{id}/cover", booksHandler.UploadCover)

			r.Get("/readers", readersHandler.List)
			r.Post("/readers", readersHandler.Create)
			r.Get("/readers/{id}", readersHandler.Get)
			r.Put("/readers/{id}", readersHandler.Update)
			r.Delete("/readers/{id}", readersHandler.Delete)

			r.Get("/transactions", txHandler.List)
			r.Get("/transactions/{id}", txHandler.Get)
			r.Post("/borrow", txHandler.Borrow)
			r.Post("/return", txHandler.Return)
			r.Post("/extend", txHandler.Extend)

			r.Get("/reservations", resHandler.List)
			r.Post("/reservations", resHandler.Create)
			r.Put("/reservations/{id}/cancel", resHandler.Cancel)
			r.Put("/reservations/{id}/approve", resHandler.Approve)

			r.Get("/fines", finesHandler.List)
			r.Put("/fines/{id}/pay", finesHandler.Pay)

			r.Get("/stats", statsHandler.Get)

			r.Get("/notifications", notifHandler.List)
			r.Put("/notifications/{id}/read", notifHandler.MarkRead)
			r.Post("/notifications/read-all", notifHandler.MarkAllRead)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleAdmin))
				r.Get("/users", usersHandler.List)
				r.Post("/users", usersHandler.Create)
				r.Put("/users/{id}", usersHandler.Update)
				r.Delete("/users/{id}", usersHandler.Delete)
			})
		})
	})
	return r
}
