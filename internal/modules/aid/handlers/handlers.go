// Package handlers provides HTTP handlers for assistance benefits.
package handlers

import (
	"net/http"
	"strings"

	"github.com/aristath/minerva/internal/access"
	"github.com/aristath/minerva/internal/apiutil"
	"github.com/aristath/minerva/internal/auth"
	"github.com/aristath/minerva/internal/domain"
	"github.com/aristath/minerva/internal/modules/aid"
	"github.com/rs/zerolog"
)

// Handler provides HTTP handlers for assistance endpoints
type Handler struct {
	service   *aid.Service
	repo      *aid.Repository
	paginator apiutil.Paginator
	log       zerolog.Logger
}

// NewHandler creates a new assistance handler
func NewHandler(service *aid.Service, paginator apiutil.Paginator, log zerolog.Logger) *Handler {
	return &Handler{
		service:   service,
		repo:      service.Repository(),
		paginator: paginator,
		log:       log.With().Str("handler", "aid").Logger(),
	}
}

func (h *Handler) crud() apiutil.CRUD {
	return apiutil.CRUD{
		List: apiutil.ListHandler(h.paginator, h.log, func(r *http.Request, p domain.ListParams) ([]aid.Assistance, int, error) {
			q := r.URL.Query()
			f := aid.ListFilter{Status: strings.ToUpper(q.Get("status")), Type: strings.ToUpper(q.Get("type"))}
			var err error
			if f.EmployeeID, err = apiutil.QueryInt64(r, "employee"); err != nil {
				return nil, 0, err
			}
			if f.BudgetLineID, err = apiutil.QueryInt64(r, "budget_line"); err != nil {
				return nil, 0, err
			}
			return h.repo.List(r.Context(), access.FromContext(r.Context()), p, f)
		}),
		Get: apiutil.GetHandler(h.log, func(r *http.Request, id int64) (*aid.Assistance, error) {
			return h.repo.Get(r.Context(), access.FromContext(r.Context()), id)
		}),
		Create: apiutil.CreateHandler(h.log, "Assistance created successfully.",
			func(r *http.Request, in aid.Input) (*aid.Assistance, error) {
				return h.service.Save(r.Context(), access.FromContext(r.Context()), 0, in, auth.UserID(r.Context()))
			}),
		Update: apiutil.UpdateHandler(h.log, "Assistance updated successfully.",
			func(r *http.Request, id int64) (aid.Input, error) {
				a, err := h.repo.Get(r.Context(), access.FromContext(r.Context()), id)
				if err != nil {
					return aid.Input{}, err
				}
				return aid.UpdateInputOf(a), nil
			},
			func(r *http.Request, id int64, in aid.Input) (*aid.Assistance, error) {
				return h.service.Save(r.Context(), access.FromContext(r.Context()), id, in, auth.UserID(r.Context()))
			}),
		Delete: apiutil.DeleteHandler(h.log, func(r *http.Request, id int64) error {
			return h.service.Delete(r.Context(), access.FromContext(r.Context()), id)
		}),
	}
}
