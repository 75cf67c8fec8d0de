package handlers

import (
	"github.com/aristath/minerva/internal/apiutil"
	"github.com/aristath/minerva/internal/auth"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all budget routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/budget", func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.Route("/budgets", func(r chi.Router) {
			r.Get("/summary", h.HandleSummary)
			r.Get("/{id}/movements", h.HandleBudgetMovements)
			apiutil.MountCRUD(r, h.budgets())
		})
		r.Route("/movements", func(r chi.Router) {
			apiutil.MountCRUD(r, h.movements())
		})
	})
}
