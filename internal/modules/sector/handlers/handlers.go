// Package handlers provides HTTP handlers for directions, managements and coordinations.
package handlers

import (
	"context"
	"net/http"

	"github.com/aristath/minerva/internal/apiutil"
	"github.com/aristath/minerva/internal/auth"
	"github.com/aristath/minerva/internal/modules/sector"
	"github.com/rs/zerolog"
)

// Handler provides HTTP handlers for sector endpoints
type Handler struct {
	service   *sector.Service
	repo      *sector.Repository
	paginator apiutil.Paginator
	log       zerolog.Logger
}

// NewHandler creates a new sector handler
func NewHandler(service *sector.Service, paginator apiutil.Paginator, log zerolog.Logger) *Handler {
	return &Handler{
		service:   service,
		repo:      service.Repository(),
		paginator: paginator,
		log:       log.With().Str("handler", "sector").Logger(),
	}
}

// HandleListDirections handles GET /sector/directions
func (h *Handler) HandleListDirections(w http.ResponseWriter, r *http.Request) {
	params, err := h.paginator.Parse(r)
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	items, total, err := h.repo.ListDirections(r.Context(), params)
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, apiutil.NewPage(r, params, total, items))
}

// HandleGetDirection handles GET /sector/directions/{id}
func (h *Handler) HandleGetDirection(w http.ResponseWriter, r *http.Request) {
	id, err := apiutil.IDParam(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	d, err := h.repo.GetDirection(r.Context(), id)
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, d)
}

// HandleCreateDirection handles POST /sector/directions
func (h *Handler) HandleCreateDirection(w http.ResponseWriter, r *http.Request) {
	var in sector.DirectionInput
	if err := apiutil.DecodeJSON(r, &in); err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	d, err := h.service.SaveDirection(r.Context(), 0, in, auth.UserID(r.Context()))
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	h.log.Info().Int64("direction_id", d.ID).Msg("Direction created")
	apiutil.WriteCreated(w, "Direction created successfully.", d)
}

// HandleUpdateDirection handles PUT/PATCH /sector/directions/{id}
func (h *Handler) HandleUpdateDirection(w http.ResponseWriter, r *http.Request) {
	id, err := apiutil.IDParam(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	existing, err := h.repo.GetDirection(r.Context(), id)
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	in := sector.DirectionInput{Name: existing.Name}
	if err := apiutil.DecodeJSON(r, &in); err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	d, err := h.service.SaveDirection(r.Context(), id, in, auth.UserID(r.Context()))
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	apiutil.WriteUpdated(w, "Direction updated successfully.", d)
}

// HandleDeleteDirection handles DELETE /sector/directions/{id}
func (h *Handler) HandleDeleteDirection(w http.ResponseWriter, r *http.Request) {
	h.handleDelete(w, r, h.repo.DeleteDirection)
}

// HandleListManagements handles GET /sector/managements
func (h *Handler) HandleListManagements(w http.ResponseWriter, r *http.Request) {
	params, err := h.paginator.Parse(r)
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	items, total, err := h.repo.ListManagements(r.Context(), params, filter)
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, apiutil.NewPage(r, params, total, items))
}

// HandleGetManagement handles GET /sector/managements/{id}
func (h *Handler) HandleGetManagement(w http.ResponseWriter, r *http.Request) {
	id, err := apiutil.IDParam(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	m, err := h.repo.GetManagement(r.Context(), id)
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, m)
}

// HandleCreateManagement handles POST /sector/managements
func (h *Handler) HandleCreateManagement(w http.ResponseWriter, r *http.Request) {
	var in sector.ManagementInput
	if err := apiutil.DecodeJSON(r, &in); err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	m, err := h.service.SaveManagement(r.Context(), 0, in, auth.UserID(r.Context()))
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	apiutil.WriteCreated(w, "Management created successfully.", m)
}

// HandleUpdateManagement handles PUT/PATCH /sector/managements/{id}
func (h *Handler) HandleUpdateManagement(w http.ResponseWriter, r *http.Request) {
	id, err := apiutil.IDParam(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	existing, err := h.repo.GetManagement(r.Context(), id)
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	in := sector.ManagementInput{Name: existing.Name, DirectionID: existing.Direction.ID}
	if err := apiutil.DecodeJSON(r, &in); err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	m, err := h.service.SaveManagement(r.Context(), id, in, auth.UserID(r.Context()))
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	apiutil.WriteUpdated(w, "Management updated successfully.", m)
}

// HandleDeleteManagement handles DELETE /sector/managements/{id}
func (h *Handler) HandleDeleteManagement(w http.ResponseWriter, r *http.Request) {
	h.handleDelete(w, r, h.repo.DeleteManagement)
}

// HandleListCoordinations handles GET /sector/coordinations
func (h *Handler) HandleListCoordinations(w http.ResponseWriter, r *http.Request) {
	params, err := h.paginator.Parse(r)
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	items, total, err := h.repo.ListCoordinations(r.Context(), params, filter)
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, apiutil.NewPage(r, params, total, items))
}

// HandleGetCoordination handles GET /sector/coordinations/{id}
func (h *Handler) HandleGetCoordination(w http.ResponseWriter, r *http.Request) {
	id, err := apiutil.IDParam(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	c, err := h.repo.GetCoordination(r.Context(), id)
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, c)
}

// HandleCreateCoordination handles POST /sector/coordinations
func (h *Handler) HandleCreateCoordination(w http.ResponseWriter, r *http.Request) {
	var in sector.CoordinationInput
	if err := apiutil.DecodeJSON(r, &in); err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	c, err := h.service.SaveCoordination(r.Context(), 0, in, auth.UserID(r.Context()))
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	apiutil.WriteCreated(w, "Coordination created successfully.", c)
}

// HandleUpdateCoordination handles PUT/PATCH /sector/coordinations/{id}
func (h *Handler) HandleUpdateCoordination(w http.ResponseWriter, r *http.Request) {
	id, err := apiutil.IDParam(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	existing, err := h.repo.GetCoordination(r.Context(), id)
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	in := sector.CoordinationInput{Name: existing.Name, ManagementID: existing.Management.ID}
	if err := apiutil.DecodeJSON(r, &in); err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	c, err := h.service.SaveCoordination(r.Context(), id, in, auth.UserID(r.Context()))
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	apiutil.WriteUpdated(w, "Coordination updated successfully.", c)
}

// HandleDeleteCoordination handles DELETE /sector/coordinations/{id}
func (h *Handler) HandleDeleteCoordination(w http.ResponseWriter, r *http.Request) {
	h.handleDelete(w, r, h.repo.DeleteCoordination)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, del func(ctx context.Context, id int64) error) {
	id, err := apiutil.IDParam(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	if err := del(r.Context(), id); err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	apiutil.WriteNoContent(w)
}

func parseFilter(r *http.Request) (sector.ListFilter, error) {
	var f sector.ListFilter
	var err error
	if f.DirectionID, err = apiutil.QueryInt64(r, "direction"); err != nil {
		return f, err
	}
	if f.ManagementID, err = apiutil.QueryInt64(r, "management"); err != nil {
		return f, err
	}
	return f, nil
}
