package handlers

import (
	"github.com/aristath/minerva/internal/access"
	"github.com/aristath/minerva/internal/auth"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all assistant routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/alice", func(r chi.Router) {
		r.Use(auth.RequireAuth)
		r.Use(access.RequireFullScope)

		r.Post("/chat", h.HandleChat)
		r.Post("/quick", h.HandleQuick)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.HandleSessions)
			r.Get("/{sid}", h.HandleSession)
			r.Delete("/{sid}", h.HandleDeleteSession)
			r.Post("/{sid}/send", h.HandleSend)
			r.Post("/{sid}/clear", h.HandleClear)
		})

		r.Get("/stats", h.HandleStats)
		r.Get("/schema", h.HandleSchema)
		r.Get("/schema/tables", h.HandleSchemaTables)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireStaff)
			r.Get("/config", h.HandleGetConfig)
			r.Put("/config", h.HandleUpdateConfig)
		})
	})
}
