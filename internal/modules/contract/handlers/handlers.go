// Package handlers provides HTTP handlers for contracts, installments and
// amendments.
package handlers

import (
	"net/http"
	"strings"

	"github.com/aristath/minerva/internal/access"
	"github.com/aristath/minerva/internal/apiutil"
	"github.com/aristath/minerva/internal/auth"
	"github.com/aristath/minerva/internal/domain"
	"github.com/aristath/minerva/internal/modules/contract"
	"github.com/rs/zerolog"
)

// Handler provides HTTP handlers for contract endpoints
type Handler struct {
	service   *contract.Service
	repo      *contract.Repository
	paginator apiutil.Paginator
	log       zerolog.Logger
}

// NewHandler creates a new contract handler
func NewHandler(service *contract.Service, paginator apiutil.Paginator, log zerolog.Logger) *Handler {
	return &Handler{
		service:   service,
		repo:      service.Repository(),
		paginator: paginator,
		log:       log.With().Str("handler", "contract").Logger(),
	}
}

func (h *Handler) contracts() apiutil.CRUD {
	return apiutil.CRUD{
		List: apiutil.ListHandler(h.paginator, h.log, func(r *http.Request, p domain.ListParams) ([]contract.Contract, int, error) {
			f := contract.ListFilter{
				Status:        strings.ToUpper(r.URL.Query().Get("status")),
				PaymentNature: r.URL.Query().Get("payment_nature"),
			}
			var err error
			if f.BudgetLineID, err = apiutil.QueryInt64(r, "budget_line"); err != nil {
				return nil, 0, err
			}
			if f.InspectorID, err = apiutil.QueryInt64(r, "inspector"); err != nil {
				return nil, 0, err
			}
			return h.repo.List(r.Context(), access.FromContext(r.Context()), p, f)
		}),
		Get: apiutil.GetHandler(h.log, func(r *http.Request, id int64) (*contract.Contract, error) {
			return h.repo.Get(r.Context(), access.FromContext(r.Context()), id)
		}),
		Create: apiutil.CreateHandler(h.log, "Contract created successfully.",
			func(r *http.Request, in contract.Input) (*contract.Contract, error) {
				return h.service.Save(r.Context(), access.FromContext(r.Context()), 0, in, auth.UserID(r.Context()))
			}),
		Update: apiutil.UpdateHandler(h.log, "Contract updated successfully.",
			func(r *http.Request, id int64) (contract.Input, error) {
				c, err := h.repo.Get(r.Context(), access.FromContext(r.Context()), id)
				if err != nil {
					return contract.Input{}, err
				}
				return contract.InputOf(c), nil
			},
			func(r *http.Request, id int64, in contract.Input) (*contract.Contract, error) {
				return h.service.Save(r.Context(), access.FromContext(r.Context()), id, in, auth.UserID(r.Context()))
			}),
		Delete: apiutil.DeleteHandler(h.log, func(r *http.Request, id int64) error {
			return h.service.Delete(r.Context(), access.FromContext(r.Context()), id)
		}),
	}
}

func childFilter(r *http.Request) (contract.ChildFilter, error) {
	f := contract.ChildFilter{
		Status: strings.ToUpper(r.URL.Query().Get("status")),
		Type:   r.URL.Query().Get("type"),
	}
	var err error
	f.ContractID, err = apiutil.QueryInt64(r, "contract")
	return f, err
}

func (h *Handler) installments() apiutil.CRUD {
	return apiutil.CRUD{
		List: apiutil.ListHandler(h.paginator, h.log, func(r *http.Request, p domain.ListParams) ([]contract.Installment, int, error) {
			f, err := childFilter(r)
			if err != nil {
				return nil, 0, err
			}
			return h.repo.ListInstallments(r.Context(), access.FromContext(r.Context()), p, f)
		}),
		Get: apiutil.GetHandler(h.log, func(r *http.Request, id int64) (*contract.Installment, error) {
			return h.repo.GetInstallment(r.Context(), access.FromContext(r.Context()), id)
		}),
		Create: apiutil.CreateHandler(h.log, "Contract installment created successfully.",
			func(r *http.Request, in contract.InstallmentInput) (*contract.Installment, error) {
				return h.service.SaveInstallment(r.Context(), access.FromContext(r.Context()), 0, in, auth.UserID(r.Context()))
			}),
		Update: apiutil.UpdateHandler(h.log, "Contract installment updated successfully.",
			func(r *http.Request, id int64) (contract.InstallmentInput, error) {
				i, err := h.repo.GetInstallment(r.Context(), access.FromContext(r.Context()), id)
				if err != nil {
					return contract.InstallmentInput{}, err
				}
				return contract.InstallmentInputOf(i), nil
			},
			func(r *http.Request, id int64, in contract.InstallmentInput) (*contract.Installment, error) {
				return h.service.SaveInstallment(r.Context(), access.FromContext(r.Context()), id, in, auth.UserID(r.Context()))
			}),
		Delete: apiutil.DeleteHandler(h.log, func(r *http.Request, id int64) error {
			return h.service.DeleteInstallment(r.Context(), access.FromContext(r.Context()), id)
		}),
	}
}

func (h *Handler) amendments() apiutil.CRUD {
	return apiutil.CRUD{
		List: apiutil.ListHandler(h.paginator, h.log, func(r *http.Request, p domain.ListParams) ([]contract.Amendment, int, error) {
			f, err := childFilter(r)
			if err != nil {
				return nil, 0, err
			}
			return h.repo.ListAmendments(r.Context(), access.FromContext(r.Context()), p, f)
		}),
		Get: apiutil.GetHandler(h.log, func(r *http.Request, id int64) (*contract.Amendment, error) {
			return h.repo.GetAmendment(r.Context(), access.FromContext(r.Context()), id)
		}),
		Create: apiutil.CreateHandler(h.log, "Contract amendment created successfully.",
			func(r *http.Request, in contract.AmendmentInput) (*contract.Amendment, error) {
				return h.service.SaveAmendment(r.Context(), access.FromContext(r.Context()), 0, in, auth.UserID(r.Context()))
			}),
		Update: apiutil.UpdateHandler(h.log, "Contract amendment updated successfully.",
			func(r *http.Request, id int64) (contract.AmendmentInput, error) {
				a, err := h.repo.GetAmendment(r.Context(), access.FromContext(r.Context()), id)
				if err != nil {
					return contract.AmendmentInput{}, err
				}
				return contract.AmendmentInputOf(a), nil
			},
			func(r *http.Request, id int64, in contract.AmendmentInput) (*contract.Amendment, error) {
				return h.service.SaveAmendment(r.Context(), access.FromContext(r.Context()), id, in, auth.UserID(r.Context()))
			}),
		Delete: apiutil.DeleteHandler(h.log, func(r *http.Request, id int64) error {
			return h.service.DeleteAmendment(r.Context(), access.FromContext(r.Context()), id)
		}),
	}
}
