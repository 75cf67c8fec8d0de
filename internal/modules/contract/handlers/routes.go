package handlers

import (
	"github.com/aristath/minerva/internal/apiutil"
	"github.com/aristath/minerva/internal/auth"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all contract routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/contract", func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.Route("/contracts", func(r chi.Router) {
			apiutil.MountCRUD(r, h.contracts())
		})
		r.Route("/contract-installments", func(r chi.Router) {
			apiutil.MountCRUD(r, h.installments())
		})
		r.Route("/contract-amendments", func(r chi.Router) {
			apiutil.MountCRUD(r, h.amendments())
		})
	})
}
