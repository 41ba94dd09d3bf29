package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the collaborator endpoints. metrics may be nil.
func NewRouter(h *Handler, metrics http.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.HandleHealth)
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/latest", h.HandleLatest)
		r.Get("/status", h.HandleStatus)
		r.Get("/log", h.HandleLog)
		r.Get("/schedules", h.HandleListSchedules)
		r.Post("/schedules", h.HandleAddSchedules)
	})

	return r
}
