// Package handlers provides HTTP handlers for cost centers.
package handlers

import (
	"net/http"

	"github.com/aristath/minerva/internal/access"
	"github.com/aristath/minerva/internal/apiutil"
	"github.com/aristath/minerva/internal/auth"
	"github.com/aristath/minerva/internal/domain"
	"github.com/aristath/minerva/internal/modules/center"
	"github.com/rs/zerolog"
)

// Handler provides HTTP handlers for center endpoints
type Handler struct {
	service   *center.Service
	repo      *center.Repository
	paginator apiutil.Paginator
	log       zerolog.Logger
}

// NewHandler creates a new center handler
func NewHandler(service *center.Service, paginator apiutil.Paginator, log zerolog.Logger) *Handler {
	return &Handler{
		service:   service,
		repo:      service.Repository(),
		paginator: paginator,
		log:       log.With().Str("handler", "center").Logger(),
	}
}

func (h *Handler) managementCenters() apiutil.CRUD {
	return apiutil.CRUD{
		List: apiutil.ListHandler(h.paginator, h.log, func(r *http.Request, p domain.ListParams) ([]center.ManagementCenter, int, error) {
			return h.repo.ListManagementCenters(r.Context(), access.FromContext(r.Context()), p)
		}),
		Get: apiutil.GetHandler(h.log, func(r *http.Request, id int64) (*center.ManagementCenter, error) {
			return h.repo.GetManagementCenter(r.Context(), access.FromContext(r.Context()), id)
		}),
		Create: apiutil.CreateHandler(h.log, "Management center created successfully.",
			func(r *http.Request, in center.ManagementCenterInput) (*center.ManagementCenter, error) {
				return h.service.SaveManagementCenter(r.Context(), access.FromContext(r.Context()), 0, in, auth.UserID(r.Context()))
			}),
		Update: apiutil.UpdateHandler(h.log, "Management center updated successfully.",
			func(r *http.Request, id int64) (center.ManagementCenterInput, error) {
				mc, err := h.repo.GetManagementCenter(r.Context(), access.FromContext(r.Context()), id)
				if err != nil {
					return center.ManagementCenterInput{}, err
				}
				return center.ManagementCenterInput{Name: mc.Name, Description: mc.Description}, nil
			},
			func(r *http.Request, id int64, in center.ManagementCenterInput) (*center.ManagementCenter, error) {
				return h.service.SaveManagementCenter(r.Context(), access.FromContext(r.Context()), id, in, auth.UserID(r.Context()))
			}),
		Delete: apiutil.DeleteHandler(h.log, func(r *http.Request, id int64) error {
			if _, err := h.repo.GetManagementCenter(r.Context(), access.FromContext(r.Context()), id); err != nil {
				return err
			}
			return h.repo.DeleteManagementCenter(r.Context(), id)
		}),
	}
}

func (h *Handler) requestingCenters() apiutil.CRUD {
	return apiutil.CRUD{
		List: apiutil.ListHandler(h.paginator, h.log, func(r *http.Request, p domain.ListParams) ([]center.RequestingCenter, int, error) {
			f, err := parseFilter(r)
			if err != nil {
				return nil, 0, err
			}
			return h.repo.ListRequestingCenters(r.Context(), access.FromContext(r.Context()), p, f)
		}),
		Get: apiutil.GetHandler(h.log, func(r *http.Request, id int64) (*center.RequestingCenter, error) {
			return h.repo.GetRequestingCenter(r.Context(), access.FromContext(r.Context()), id)
		}),
		Create: apiutil.CreateHandler(h.log, "Requesting center created successfully.",
			func(r *http.Request, in center.RequestingCenterInput) (*center.RequestingCenter, error) {
				return h.service.SaveRequestingCenter(r.Context(), access.FromContext(r.Context()), 0, in, auth.UserID(r.Context()))
			}),
		Update: apiutil.UpdateHandler(h.log, "Requesting center updated successfully.",
			func(r *http.Request, id int64) (center.RequestingCenterInput, error) {
				rc, err := h.repo.GetRequestingCenter(r.Context(), access.FromContext(r.Context()), id)
				if err != nil {
					return center.RequestingCenterInput{}, err
				}
				return center.RequestingCenterInput{Name: rc.Name, Description: rc.Description, ManagementCenterID: rc.ManagementCenter.ID}, nil
			},
			func(r *http.Request, id int64, in center.RequestingCenterInput) (*center.RequestingCenter, error) {
				return h.service.SaveRequestingCenter(r.Context(), access.FromContext(r.Context()), id, in, auth.UserID(r.Context()))
			}),
		Delete: apiutil.DeleteHandler(h.log, func(r *http.Request, id int64) error {
			if _, err := h.repo.GetRequestingCenter(r.Context(), access.FromContext(r.Context()), id); err != nil {
				return err
			}
			return h.repo.DeleteRequestingCenter(r.Context(), id)
		}),
	}
}

func (h *Handler) hierarchies() apiutil.CRUD {
	return apiutil.CRUD{
		List: apiutil.ListHandler(h.paginator, h.log, func(r *http.Request, p domain.ListParams) ([]center.Hierarchy, int, error) {
			f, err := parseFilter(r)
			if err != nil {
				return nil, 0, err
			}
			return h.repo.ListHierarchies(r.Context(), access.FromContext(r.Context()), p, f)
		}),
		Get: apiutil.GetHandler(h.log, func(r *http.Request, id int64) (*center.Hierarchy, error) {
			return h.repo.GetHierarchy(r.Context(), access.FromContext(r.Context()), id)
		}),
		Create: apiutil.CreateHandler(h.log, "Hierarchy created successfully.",
			func(r *http.Request, in center.HierarchyInput) (*center.Hierarchy, error) {
				return h.service.SaveHierarchy(r.Context(), access.FromContext(r.Context()), 0, in, auth.UserID(r.Context()))
			}),
		Update: apiutil.UpdateHandler(h.log, "Hierarchy updated successfully.",
			func(r *http.Request, id int64) (center.HierarchyInput, error) {
				hi, err := h.repo.GetHierarchy(r.Context(), access.FromContext(r.Context()), id)
				if err != nil {
					return center.HierarchyInput{}, err
				}
				return center.HierarchyInput{
					ManagementCenterID: hi.ManagementCenter.ID,
					DirectionID:        refID(hi.Direction),
					ManagementID:       refID(hi.Management),
					CoordinationID:     refID(hi.Coordination),
				}, nil
			},
			func(r *http.Request, id int64, in center.HierarchyInput) (*center.Hierarchy, error) {
				return h.service.SaveHierarchy(r.Context(), access.FromContext(r.Context()), id, in, auth.UserID(r.Context()))
			}),
		Delete: apiutil.DeleteHandler(h.log, func(r *http.Request, id int64) error {
			if _, err := h.repo.GetHierarchy(r.Context(), access.FromContext(r.Context()), id); err != nil {
				return err
			}
			return h.repo.DeleteHierarchy(r.Context(), id)
		}),
	}
}

func refID(ref *domain.Ref) *int64 {
	if ref == nil {
		return nil
	}
	id := ref.ID
	return &id
}

func parseFilter(r *http.Request) (center.ListFilter, error) {
	var f center.ListFilter
	var err error
	for name, dst := range map[string]**int64{
		"management_center": &f.ManagementCenterID,
		"direction":         &f.DirectionID,
		"management":        &f.ManagementID,
		"coordination":      &f.CoordinationID,
	} {
		if *dst, err = apiutil.QueryInt64(r, name); err != nil {
			return f, err
		}
	}
	return f, nil
}
