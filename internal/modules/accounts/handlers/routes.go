package handlers

import (
	"github.com/aristath/minerva/internal/apiutil"
	"github.com/aristath/minerva/internal/auth"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all account routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/accounts", func(r chi.Router) {
		r.Post("/login", h.HandleLogin)
		r.Post("/token", h.HandleLogin)
		r.Post("/token/refresh", h.HandleRefresh)
		r.Post("/register", h.HandleRegister)
		r.Post("/password-reset", h.HandlePasswordReset)
		r.Post("/password-reset-confirm", h.HandlePasswordResetConfirm)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth)
			r.Post("/logout", h.HandleLogout)
			r.Post("/change-password", h.HandleChangePassword)
			r.Put("/profile", h.HandleProfile)
			r.Patch("/profile", h.HandleProfile)
			r.Get("/me", h.HandleMe)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(auth.RequireStaff)
			apiutil.MountCRUD(r, h.users())
			r.Put("/{id}/groups", h.HandleSetGroups)
		})
	})
}
