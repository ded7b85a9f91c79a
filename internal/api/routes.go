package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/actions/bulk", h.ApplyBulk)
		r.Post("/tokens/{token}/actions", func(w http.ResponseWriter, r *http.Request) {
			h.ApplyWithToken(w, r, chi.URLParam(r, "token"))
		})
		r.Route("/documents/{documentId}", func(r chi.Router) {
			r.Post("/actions", func(w http.ResponseWriter, r *http.Request) {
				h.ApplyAction(w, r, chi.URLParam(r, "documentId"))
			})
			r.Get("/actions", func(w http.ResponseWriter, r *http.Request) {
				h.PossibleActions(w, r, chi.URLParam(r, "documentId"))
			})
			r.Post("/resubmit", func(w http.ResponseWriter, r *http.Request) {
				h.Resubmit(w, r, chi.URLParam(r, "documentId"))
			})
			r.Get("/history", func(w http.ResponseWriter, r *http.Request) {
				h.History(w, r, chi.URLParam(r, "documentId"))
			})
			r.Get("/audit", func(w http.ResponseWriter, r *http.Request) {
				h.Audit(w, r, chi.URLParam(r, "documentId"))
			})
		})
	})

	return r
}
