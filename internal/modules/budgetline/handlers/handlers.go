// Package handlers provides HTTP handlers for budget lines.
package handlers

import (
	"net/http"

	"github.com/aristath/minerva/internal/access"
	"github.com/aristath/minerva/internal/apiutil"
	"github.com/aristath/minerva/internal/auth"
	"github.com/aristath/minerva/internal/domain"
	"github.com/aristath/minerva/internal/modules/budgetline"
	"github.com/rs/zerolog"
)

// Handler provides HTTP handlers for budget line endpoints
type Handler struct {
	service   *budgetline.Service
	repo      *budgetline.Repository
	paginator apiutil.Paginator
	log       zerolog.Logger
}

// NewHandler creates a new budget line handler
func NewHandler(service *budgetline.Service, paginator apiutil.Paginator, log zerolog.Logger) *Handler {
	return &Handler{
		service:   service,
		repo:      service.Repository(),
		paginator: paginator,
		log:       log.With().Str("handler", "budgetline").Logger(),
	}
}

func (h *Handler) lines() apiutil.CRUD {
	return apiutil.CRUD{
		List: apiutil.ListHandler(h.paginator, h.log, func(r *http.Request, p domain.ListParams) ([]budgetline.BudgetLine, int, error) {
			f, err := parseFilter(r)
			if err != nil {
				return nil, 0, err
			}
			return h.repo.List(r.Context(), access.FromContext(r.Context()), p, f)
		}),
		Get: apiutil.GetHandler(h.log, func(r *http.Request, id int64) (*budgetline.BudgetLine, error) {
			return h.repo.Get(r.Context(), access.FromContext(r.Context()), id)
		}),
		Create: apiutil.CreateHandler(h.log, "Budget line created successfully.",
			func(r *http.Request, in budgetline.Input) (*budgetline.BudgetLine, error) {
				return h.service.Save(r.Context(), access.FromContext(r.Context()), 0, in, auth.UserID(r.Context()))
			}),
		Update: apiutil.UpdateHandler(h.log, "Budget line updated successfully.",
			func(r *http.Request, id int64) (budgetline.Input, error) {
				l, err := h.repo.Get(r.Context(), access.FromContext(r.Context()), id)
				if err != nil {
					return budgetline.Input{}, err
				}
				return budgetline.InputOf(l), nil
			},
			func(r *http.Request, id int64, in budgetline.Input) (*budgetline.BudgetLine, error) {
				return h.service.Save(r.Context(), access.FromContext(r.Context()), id, in, auth.UserID(r.Context()))
			}),
		Delete: apiutil.DeleteHandler(h.log, func(r *http.Request, id int64) error {
			return h.service.Delete(r.Context(), access.FromContext(r.Context()), id)
		}),
	}
}

func (h *Handler) movements() apiutil.CRUD {
	return apiutil.CRUD{
		List: apiutil.ListHandler(h.paginator, h.log, func(r *http.Request, p domain.ListParams) ([]budgetline.Movement, int, error) {
			lineID, err := apiutil.QueryInt64(r, "line")
			if err != nil {
				return nil, 0, err
			}
			return h.repo.ListMovements(r.Context(), access.FromContext(r.Context()), p, budgetline.MovementFilter{LineID: lineID})
		}),
		Get: apiutil.GetHandler(h.log, func(r *http.Request, id int64) (*budgetline.Movement, error) {
			return h.repo.GetMovement(r.Context(), access.FromContext(r.Context()), id)
		}),
		Create: apiutil.CreateHandler(h.log, "Budget line movement created successfully.",
			func(r *http.Request, in budgetline.MovementInput) (*budgetline.Movement, error) {
				return h.service.SaveMovement(r.Context(), access.FromContext(r.Context()), 0, in, auth.UserID(r.Context()))
			}),
		Update: apiutil.UpdateHandler(h.log, "Budget line movement updated successfully.",
			func(r *http.Request, id int64) (budgetline.MovementInput, error) {
				m, err := h.repo.GetMovement(r.Context(), access.FromContext(r.Context()), id)
				if err != nil {
					return budgetline.MovementInput{}, err
				}
				in := budgetline.MovementInput{MovementAmount: m.MovementAmount, MovementNotes: m.MovementNotes}
				if m.SourceLine != nil {
					in.SourceLineID = &m.SourceLine.ID
				}
				if m.DestinationLine != nil {
					in.DestinationLineID = &m.DestinationLine.ID
				}
				return in, nil
			},
			func(r *http.Request, id int64, in budgetline.MovementInput) (*budgetline.Movement, error) {
				return h.service.SaveMovement(r.Context(), access.FromContext(r.Context()), id, in, auth.UserID(r.Context()))
			}),
		Delete: apiutil.DeleteHandler(h.log, func(r *http.Request, id int64) error {
			return h.service.DeleteMovement(r.Context(), access.FromContext(r.Context()), id)
		}),
	}
}

// HandleVersions handles GET /budgetline/budgetslines/{id}/versions
func (h *Handler) HandleVersions(w http.ResponseWriter, r *http.Request) {
	id, err := apiutil.IDParam(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	versions, err := h.service.Versions(r.Context(), access.FromContext(r.Context()), id)
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, versions)
}

func parseFilter(r *http.Request) (budgetline.ListFilter, error) {
	q := r.URL.Query()
	f := budgetline.ListFilter{
		Category:       q.Get("category"),
		ExpenseType:    q.Get("expense_type"),
		ContractStatus: q.Get("contract_status"),
		ProcessStatus:  q.Get("process_status"),
	}
	var err error
	for name, dst := range map[string]**int64{
		"budget":            &f.BudgetID,
		"management_center": &f.ManagementCenterID,
		"requesting_center": &f.RequestingCenterID,
		"main_fiscal":       &f.MainFiscalID,
	} {
		if *dst, err = apiutil.QueryInt64(r, name); err != nil {
			return f, err
		}
	}
	return f, nil
}
