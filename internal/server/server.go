// Package server exposes the management API: account listings, active
// account switching, forced refreshes and the audit trail. Interactive
// logins stay in the CLI; the API only manages what is already stored.
package server

import (
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/pysugar/llm-auth-hub/internal/hub"
	"github.com/pysugar/llm-auth-hub/internal/logging"
)

// Server wraps the chi router around a hub service.
type Server struct {
	service *hub.Service
	log     zerolog.Logger
}

// New builds the management API server.
func New(service *hub.Service, logger zerolog.Logger) *Server {
	return &Server{service: service, log: logger}
}

// Router assembles all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(s.requestID)
	r.Use(s.requestLogger)

	adminPassword := os.Getenv("AUTHHUB_ADMIN_PASSWORD")
	adminAuth := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminPassword == "" {
				next.ServeHTTP(w, r)
				return
			}
			_, pass, ok := r.BasicAuth()
			if !ok || pass != adminPassword {
				w.Header().Set("WWW-Authenticate", `Basic realm="Auth Hub"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(adminAuth)
		r.Get("/status", s.handleStatus)
		r.Get("/events", s.handleEvents)

		r.Route("/providers/{provider}", func(r chi.Router) {
			r.Get("/accounts", s.handleListAccounts)
			r.Post("/accounts/{id}/activate", s.handleActivate)
			r.Post("/accounts/{id}/refresh", s.handleRefresh)
			r.Delete("/accounts/{id}", s.handleRemove)
			r.Post("/validate", s.handleValidate)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}

// requestID tags every request with a short id for log correlation.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = logging.NewRequestID()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log := logging.FromContext(r.Context(), s.log)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
