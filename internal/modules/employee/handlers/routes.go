package handlers

import (
	"github.com/aristath/minerva/internal/apiutil"
	"github.com/aristath/minerva/internal/auth"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all employee routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/employee", func(r chi.Router) {
		r.Use(auth.RequireAuth)

		apiutil.MountCRUD(r, h.crud())
		r.Get("/{id}/aids", h.HandleAids)
		r.Get("/{id}/contracts", h.HandleContracts)
	})
}
