package handlers

import (
	"github.com/aristath/minerva/internal/apiutil"
	"github.com/aristath/minerva/internal/auth"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all assistance routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/aid", func(r chi.Router) {
		r.Use(auth.RequireAuth)
		r.Route("/aid", func(r chi.Router) {
			apiutil.MountCRUD(r, h.crud())
		})
	})
}
