package handlers

import (
	"github.com/aristath/minerva/internal/apiutil"
	"github.com/aristath/minerva/internal/auth"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all sector routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/sector", func(r chi.Router) {
		r.Use(auth.RequireAuth)
		r.Use(auth.RequireStaffForWrites)

		r.Route("/directions", func(r chi.Router) {
			apiutil.MountCRUD(r, apiutil.CRUD{
				List:   h.HandleListDirections,
				Create: h.HandleCreateDirection,
				Get:    h.HandleGetDirection,
				Update: h.HandleUpdateDirection,
				Delete: h.HandleDeleteDirection,
			})
		})
		r.Route("/managements", func(r chi.Router) {
			apiutil.MountCRUD(r, apiutil.CRUD{
				List:   h.HandleListManagements,
				Create: h.HandleCreateManagement,
				Get:    h.HandleGetManagement,
				Update: h.HandleUpdateManagement,
				Delete: h.HandleDeleteManagement,
			})
		})
		r.Route("/coordinations", func(r chi.Router) {
			apiutil.MountCRUD(r, apiutil.CRUD{
				List:   h.HandleListCoordinations,
				Create: h.HandleCreateCoordination,
				Get:    h.HandleGetCoordination,
				Update: h.HandleUpdateCoordination,
				Delete: h.HandleDeleteCoordination,
			})
		})
	})
}
