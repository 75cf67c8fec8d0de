// Package handlers provides HTTP handlers for the Alice assistant.
package handlers

import (
	"net/http"

	"github.com/aristath/minerva/internal/apiutil"
	"github.com/aristath/minerva/internal/auth"
	"github.com/aristath/minerva/internal/modules/assistant"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler provides HTTP handlers for assistant endpoints
type Handler struct {
	service *assistant.Service
	repo    *assistant.Repository
	log     zerolog.Logger
}

// NewHandler creates a new assistant handler
func NewHandler(service *assistant.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		repo:    service.Repository(),
		log:     log.With().Str("handler", "assistant").Logger(),
	}
}

// HandleChat handles POST /alice/chat
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req assistant.ChatRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	resp, err := h.service.Chat(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, resp)
}

// HandleQuick handles POST /alice/quick
func (h *Handler) HandleQuick(w http.ResponseWriter, r *http.Request) {
	var req assistant.ChatRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	question := req.Question
	if question == "" {
		question = req.Message
	}
	resp, err := h.service.Quick(r.Context(), auth.UserID(r.Context()), question)
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, resp)
}

// HandleSessions handles GET /alice/sessions
func (h *Handler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.service.Sessions(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, sessions)
}

// HandleSession handles GET /alice/sessions/{sid}
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.Session(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "sid"))
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, detail)
}

// HandleSend handles POST /alice/sessions/{sid}/send
func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req assistant.ChatRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	text := req.Message
	if text == "" {
		text = req.Question
	}
	resp, err := h.service.Send(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "sid"), text)
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, resp)
}

// HandleClear handles POST /alice/sessions/{sid}/clear
func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Clear(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "sid")); err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Session cleared successfully."})
}

// HandleDeleteSession handles DELETE /alice/sessions/{sid}
func (h *Handler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "sid")); err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	apiutil.WriteNoContent(w)
}

// HandleStats handles GET /alice/stats
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, stats)
}

// HandleSchema handles GET /alice/schema
func (h *Handler) HandleSchema(w http.ResponseWriter, r *http.Request) {
	apiutil.WriteJSON(w, http.StatusOK, map[string]string{
		"schema": h.service.Schema().Describe(r.Context()),
	})
}

// HandleSchemaTables handles GET /alice/schema/tables
func (h *Handler) HandleSchemaTables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.service.Schema().Tables(r.Context())
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, tables)
}

// HandleGetConfig handles GET /alice/config
func (h *Handler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.repo.ListConfig(r.Context())
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, cfg)
}

// HandleUpdateConfig handles PUT /alice/config
func (h *Handler) HandleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var in assistant.ConfigurationInput
	if err := apiutil.DecodeJSON(r, &in); err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	if err := h.service.SaveConfig(r.Context(), in); err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	cfg, err := h.repo.ListConfig(r.Context())
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	apiutil.WriteUpdated(w, "Configuration updated successfully.", cfg)
}
