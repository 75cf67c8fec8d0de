// Package apiutil holds the JSON request/response helpers shared by every
// module's HTTP handlers.
package apiutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/aristath/minerva/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

// Message is the {"message", "data"} envelope returned by create and update.
type Message struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// WriteCreated writes 201 with a message envelope.
func WriteCreated(w http.ResponseWriter, message string, data interface{}) {
	WriteJSON(w, http.StatusCreated, Message{Message: message, Data: data})
}

// WriteUpdated writes 200 with a message envelope.
func WriteUpdated(w http.ResponseWriter, message string, data interface{}) {
	WriteJSON(w, http.StatusOK, Message{Message: message, Data: data})
}

// WriteNoContent writes 204.
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteDetail writes {"detail": msg} with status.
func WriteDetail(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"detail": msg})
}

// WriteError maps domain errors onto HTTP statuses.
func WriteError(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error) {
	if v, ok := domain.AsValidation(err); ok {
		WriteJSON(w, http.StatusBadRequest, v.Fields)
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		WriteDetail(w, http.StatusNotFound, "Not found.")
	case errors.Is(err, domain.ErrForbidden):
		WriteDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
	case errors.Is(err, domain.ErrUnauthorized):
		WriteDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
	case errors.Is(err, domain.ErrConflict):
		WriteDetail(w, http.StatusConflict, conflictMessage(err))
	default:
		log.Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Request failed")
		WriteDetail(w, http.StatusInternalServerError, "Internal server error.")
	}
}

// conflictMessage strips the sentinel suffix from a wrapped conflict.
func conflictMessage(err error) string {
	msg := err.Error()
	suffix := ": " + domain.ErrConflict.Error()
	if len(msg) > len(suffix) && msg[len(msg)-len(suffix):] == suffix {
		return msg[:len(msg)-len(suffix)]
	}
	return msg
}

// DecodeJSON decodes the request body into dst, rejecting unknown shapes with a validation error.
func DecodeJSON(r *http.Request, dst interface{}) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NewValidationError(domain.NonFieldErrors, "Request body is empty.")
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return domain.NewValidationError(typeErr.Field, fmt.Sprintf("Invalid value: expected %s.", typeErr.Type))
		}
		return domain.NewValidationError(domain.NonFieldErrors, "Malformed JSON: "+err.Error())
	}
	return nil
}

// IDParam parses a positive integer URL parameter.
func IDParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NotFoundf("invalid %s %q", name, raw)
	}
	return id, nil
}

// QueryInt64 parses an optional integer query parameter.
func QueryInt64(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, domain.NewValidationError(name, "Enter a whole number.")
	}
	return &v, nil
}
