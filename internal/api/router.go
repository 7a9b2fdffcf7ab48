package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"visitor-router/internal/observability"
)

func Router(h *Handler, logger zerolog.Logger, timeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(observability.Measure)
	r.Use(hlog.NewHandler(logger))
	r.Use(hlog.RequestIDHandler("req_id", "Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Accept", "Content-Type"},
	}))

	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": http.StatusText(http.StatusMethodNotAllowed)})
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": http.StatusText(http.StatusNotFound)})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/targets", h.AddTarget)
		r.Get("/targets", h.ListTargets)
		r.Get("/target/{id}", h.GetTarget)
		r.Post("/target/{id}", h.UpdateTarget)
		r.Put("/target/{id}", h.UpdateTarget)
	})
	r.Post("/route", h.Route)
	r.Get("/health", h.Health)
	r.Handle("/metrics", observability.MetricsHandler())
	return r
}
