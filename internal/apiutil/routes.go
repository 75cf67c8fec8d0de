package apiutil

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// CRUD groups the handlers of a resource.
type CRUD struct {
	List   http.HandlerFunc
	Create http.HandlerFunc
	Get    http.HandlerFunc
	Update http.HandlerFunc
	Delete http.HandlerFunc
}

// MountCRUD registers the REST routes plus the legacy action-style aliases
// (create, {id}/update, update/{id}, {id}/delete, delete/{id}) still used by clients.
func MountCRUD(r chi.Router, c CRUD) {
	if c.List != nil {
		r.Get("/", c.List)
	}
	if c.Create != nil {
		r.Post("/", c.Create)
		r.Post("/create", c.Create)
	}
	if c.Get != nil {
		r.Get("/{id}", c.Get)
	}
	if c.Update != nil {
		for _, pattern := range []string{"/{id}", "/{id}/update", "/update/{id}"} {
			r.Put(pattern, c.Update)
			r.Patch(pattern, c.Update)
		}
	}
	if c.Delete != nil {
		for _, pattern := range []string{"/{id}", "/{id}/delete", "/delete/{id}"} {
			r.Delete(pattern, c.Delete)
		}
	}
}
