// Package handlers provides HTTP handlers for employees.
package handlers

import (
	"context"
	"net/http"

	"github.com/aristath/minerva/internal/access"
	"github.com/aristath/minerva/internal/apiutil"
	"github.com/aristath/minerva/internal/auth"
	"github.com/aristath/minerva/internal/domain"
	"github.com/aristath/minerva/internal/modules/aid"
	"github.com/aristath/minerva/internal/modules/contract"
	"github.com/aristath/minerva/internal/modules/employee"
	"github.com/rs/zerolog"
)

// AidLister lists the aid granted to an employee.
type AidLister interface {
	ListForEmployee(ctx context.Context, scope *access.Scope, employeeID int64) ([]aid.Assistance, error)
}

// ContractLister lists the contracts an employee inspects.
type ContractLister interface {
	ListForInspector(ctx context.Context, scope *access.Scope, employeeID int64) ([]contract.Contract, error)
}

// Handler provides HTTP handlers for employee endpoints
type Handler struct {
	service   *employee.Service
	repo      *employee.Repository
	aids      AidLister
	contracts ContractLister
	paginator apiutil.Paginator
	log       zerolog.Logger
}

// NewHandler creates a new employee handler
func NewHandler(service *employee.Service, paginator apiutil.Paginator, log zerolog.Logger) *Handler {
	return &Handler{
		service:   service,
		repo:      service.Repository(),
		paginator: paginator,
		log:       log.With().Str("handler", "employee").Logger(),
	}
}

// SetAidLister sets the aid lister (for dependency injection)
func (h *Handler) SetAidLister(l AidLister) {
	h.aids = l
}

// SetContractLister sets the contract lister (for dependency injection)
func (h *Handler) SetContractLister(l ContractLister) {
	h.contracts = l
}

func (h *Handler) crud() apiutil.CRUD {
	return apiutil.CRUD{
		List: apiutil.ListHandler(h.paginator, h.log, func(r *http.Request, p domain.ListParams) ([]employee.Employee, int, error) {
			f, err := parseFilter(r)
			if err != nil {
				return nil, 0, err
			}
			return h.repo.List(r.Context(), access.FromContext(r.Context()), p, f)
		}),
		Get: apiutil.GetHandler(h.log, func(r *http.Request, id int64) (*employee.Employee, error) {
			return h.repo.Get(r.Context(), access.FromContext(r.Context()), id)
		}),
		Create: apiutil.CreateHandler(h.log, "Employee created successfully.",
			func(r *http.Request, in employee.Input) (*employee.Employee, error) {
				return h.service.Save(r.Context(), access.FromContext(r.Context()), 0, in, auth.UserID(r.Context()))
			}),
		Update: apiutil.UpdateHandler(h.log, "Employee updated successfully.",
			func(r *http.Request, id int64) (employee.Input, error) {
				e, err := h.repo.Get(r.Context(), access.FromContext(r.Context()), id)
				if err != nil {
					return employee.Input{}, err
				}
				return employee.InputOf(e), nil
			},
			func(r *http.Request, id int64, in employee.Input) (*employee.Employee, error) {
				return h.service.Save(r.Context(), access.FromContext(r.Context()), id, in, auth.UserID(r.Context()))
			}),
		Delete: apiutil.DeleteHandler(h.log, func(r *http.Request, id int64) error {
			if _, err := h.repo.Get(r.Context(), access.FromContext(r.Context()), id); err != nil {
				return err
			}
			if err := h.repo.Delete(r.Context(), id); err != nil {
				return err
			}
			h.log.Info().Int64("employee_id", id).Msg("Employee deleted")
			return nil
		}),
	}
}

// HandleAids handles GET /employee/{id}/aids
func (h *Handler) HandleAids(w http.ResponseWriter, r *http.Request) {
	id, scope, ok := h.visibleEmployee(w, r)
	if !ok {
		return
	}
	items := []aid.Assistance{}
	if h.aids != nil {
		var err error
		if items, err = h.aids.ListForEmployee(r.Context(), scope, id); err != nil {
			apiutil.WriteError(w, r, h.log, err)
			return
		}
	}
	apiutil.WriteJSON(w, http.StatusOK, items)
}

// HandleContracts handles GET /employee/{id}/contracts
func (h *Handler) HandleContracts(w http.ResponseWriter, r *http.Request) {
	id, scope, ok := h.visibleEmployee(w, r)
	if !ok {
		return
	}
	items := []contract.Contract{}
	if h.contracts != nil {
		var err error
		if items, err = h.contracts.ListForInspector(r.Context(), scope, id); err != nil {
			apiutil.WriteError(w, r, h.log, err)
			return
		}
	}
	apiutil.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) visibleEmployee(w http.ResponseWriter, r *http.Request) (int64, *access.Scope, bool) {
	id, err := apiutil.IDParam(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return 0, nil, false
	}
	scope := access.FromContext(r.Context())
	if _, err := h.repo.Get(r.Context(), scope, id); err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return 0, nil, false
	}
	return id, scope, true
}

func parseFilter(r *http.Request) (employee.ListFilter, error) {
	f := employee.ListFilter{Status: r.URL.Query().Get("status")}
	var err error
	if f.DirectionID, err = apiutil.QueryInt64(r, "direction"); err != nil {
		return f, err
	}
	if f.ManagementID, err = apiutil.QueryInt64(r, "management"); err != nil {
		return f, err
	}
	if f.CoordinationID, err = apiutil.QueryInt64(r, "coordination"); err != nil {
		return f, err
	}
	return f, nil
}
