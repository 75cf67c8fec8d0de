// Package handlers provides HTTP handlers for budgets and budget movements.
package handlers

import (
	"net/http"
	"strings"

	"github.com/aristath/minerva/internal/access"
	"github.com/aristath/minerva/internal/apiutil"
	"github.com/aristath/minerva/internal/auth"
	"github.com/aristath/minerva/internal/domain"
	"github.com/aristath/minerva/internal/modules/budget"
	"github.com/rs/zerolog"
)

// Handler provides HTTP handlers for budget endpoints
type Handler struct {
	service   *budget.Service
	repo      *budget.Repository
	paginator apiutil.Paginator
	log       zerolog.Logger
}

// NewHandler creates a new budget handler
func NewHandler(service *budget.Service, paginator apiutil.Paginator, log zerolog.Logger) *Handler {
	return &Handler{
		service:   service,
		repo:      service.Repository(),
		paginator: paginator,
		log:       log.With().Str("handler", "budget").Logger(),
	}
}

func (h *Handler) budgets() apiutil.CRUD {
	return apiutil.CRUD{
		List: apiutil.ListHandler(h.paginator, h.log, func(r *http.Request, p domain.ListParams) ([]budget.Budget, int, error) {
			f, err := parseFilter(r)
			if err != nil {
				return nil, 0, err
			}
			return h.repo.List(r.Context(), access.FromContext(r.Context()), p, f)
		}),
		Get: apiutil.GetHandler(h.log, func(r *http.Request, id int64) (*budget.Budget, error) {
			return h.repo.Get(r.Context(), access.FromContext(r.Context()), id)
		}),
		Create: apiutil.CreateHandler(h.log, "Budget created successfully.",
			func(r *http.Request, in budget.Input) (*budget.Budget, error) {
				return h.service.Save(r.Context(), access.FromContext(r.Context()), 0, in, auth.UserID(r.Context()))
			}),
		Update: apiutil.UpdateHandler(h.log, "Budget updated successfully.",
			func(r *http.Request, id int64) (budget.Input, error) {
				b, err := h.repo.Get(r.Context(), access.FromContext(r.Context()), id)
				if err != nil {
					return budget.Input{}, err
				}
				return budget.InputOf(b), nil
			},
			func(r *http.Request, id int64, in budget.Input) (*budget.Budget, error) {
				return h.service.Save(r.Context(), access.FromContext(r.Context()), id, in, auth.UserID(r.Context()))
			}),
		Delete: apiutil.DeleteHandler(h.log, func(r *http.Request, id int64) error {
			return h.service.Delete(r.Context(), access.FromContext(r.Context()), id, auth.UserID(r.Context()))
		}),
	}
}

func (h *Handler) movements() apiutil.CRUD {
	return apiutil.CRUD{
		List: apiutil.ListHandler(h.paginator, h.log, func(r *http.Request, p domain.ListParams) ([]budget.Movement, int, error) {
			f, err := parseMovementFilter(r)
			if err != nil {
				return nil, 0, err
			}
			return h.repo.ListMovements(r.Context(), access.FromContext(r.Context()), p, f)
		}),
		Get: apiutil.GetHandler(h.log, func(r *http.Request, id int64) (*budget.Movement, error) {
			return h.repo.GetMovement(r.Context(), access.FromContext(r.Context()), id)
		}),
		Create: apiutil.CreateHandler(h.log, "Movement created successfully.",
			func(r *http.Request, in budget.MovementInput) (*budget.Movement, error) {
				return h.service.SaveMovement(r.Context(), access.FromContext(r.Context()), 0, in, auth.UserID(r.Context()))
			}),
		Update: apiutil.UpdateHandler(h.log, "Movement updated successfully.",
			func(r *http.Request, id int64) (budget.MovementInput, error) {
				m, err := h.repo.GetMovement(r.Context(), access.FromContext(r.Context()), id)
				if err != nil {
					return budget.MovementInput{}, err
				}
				return budget.MovementInput{SourceID: m.Source.ID, DestinationID: m.Destination.ID, Amount: m.Amount, Notes: m.Notes}, nil
			},
			func(r *http.Request, id int64, in budget.MovementInput) (*budget.Movement, error) {
				return h.service.SaveMovement(r.Context(), access.FromContext(r.Context()), id, in, auth.UserID(r.Context()))
			}),
		Delete: apiutil.DeleteHandler(h.log, func(r *http.Request, id int64) error {
			return h.service.DeleteMovement(r.Context(), access.FromContext(r.Context()), id)
		}),
	}
}

// HandleBudgetMovements handles GET /budget/budgets/{id}/movements
func (h *Handler) HandleBudgetMovements(w http.ResponseWriter, r *http.Request) {
	id, err := apiutil.IDParam(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	scope := access.FromContext(r.Context())
	if _, err := h.repo.Get(r.Context(), scope, id); err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	params, err := h.paginator.Parse(r)
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	items, total, err := h.repo.ListMovements(r.Context(), scope, params, budget.MovementFilter{BudgetID: &id})
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, apiutil.NewPage(r, params, total, items))
}

// HandleSummary handles GET /budget/budgets/summary
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	year, err := apiutil.QueryInt64(r, "year")
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	summary, err := h.service.Summary(r.Context(), access.FromContext(r.Context()), year)
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, summary)
}

func parseFilter(r *http.Request) (budget.ListFilter, error) {
	q := r.URL.Query()
	f := budget.ListFilter{
		Category: strings.ToUpper(q.Get("category")),
		Status:   strings.ToUpper(q.Get("status")),
	}
	var err error
	if f.Year, err = apiutil.QueryInt64(r, "year"); err != nil {
		return f, err
	}
	if f.ManagementCenterID, err = apiutil.QueryInt64(r, "management_center"); err != nil {
		return f, err
	}
	return f, nil
}

func parseMovementFilter(r *http.Request) (budget.MovementFilter, error) {
	var f budget.MovementFilter
	var err error
	if f.SourceID, err = apiutil.QueryInt64(r, "source"); err != nil {
		return f, err
	}
	if f.DestinationID, err = apiutil.QueryInt64(r, "destination"); err != nil {
		return f, err
	}
	if f.BudgetID, err = apiutil.QueryInt64(r, "budget"); err != nil {
		return f, err
	}
	return f, nil
}
