package handlers

import (
	"github.com/aristath/minerva/internal/apiutil"
	"github.com/aristath/minerva/internal/auth"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all budget line routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/budgetline", func(r chi.Router) {
		r.Use(auth.RequireAuth)

		// budgetslines is the historical spelling; budgetlines is an alias.
		for _, prefix := range []string{"/budgetslines", "/budgetlines"} {
			r.Route(prefix, func(r chi.Router) {
				r.Get("/{id}/versions", h.HandleVersions)
				apiutil.MountCRUD(r, h.lines())
			})
		}
		r.Route("/budgetlinemovements", func(r chi.Router) {
			apiutil.MountCRUD(r, h.movements())
		})
	})
}
