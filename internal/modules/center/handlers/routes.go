package handlers

import (
	"github.com/aristath/minerva/internal/apiutil"
	"github.com/aristath/minerva/internal/auth"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all center routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/center", func(r chi.Router) {
		r.Use(auth.RequireAuth)
		r.Use(auth.RequireStaffForWrites)

		r.Route("/management-centers", func(r chi.Router) {
			apiutil.MountCRUD(r, h.managementCenters())
		})
		r.Route("/requesting-centers", func(r chi.Router) {
			apiutil.MountCRUD(r, h.requestingCenters())
		})
		r.Route("/hierarchies", func(r chi.Router) {
			apiutil.MountCRUD(r, h.hierarchies())
		})
	})
}
