package apiutil

import (
	"net/http"

	"github.com/aristath/minerva/internal/domain"
	"github.com/rs/zerolog"
)

// ListHandler serves a paginated list produced by fetch.
func ListHandler[T any](p Paginator, log zerolog.Logger, fetch func(r *http.Request, params domain.ListParams) ([]T, int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := p.Parse(r)
		if err != nil {
			WriteError(w, r, log, err)
			return
		}
		items, total, err := fetch(r, params)
		if err != nil {
			WriteError(w, r, log, err)
			return
		}
		WriteJSON(w, http.StatusOK, NewPage(r, params, total, items))
	}
}

// GetHandler serves the object identified by the {id} URL parameter.
func GetHandler[T any](log zerolog.Logger, fetch func(r *http.Request, id int64) (*T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := IDParam(r, "id")
		if err != nil {
			WriteError(w, r, log, err)
			return
		}
		obj, err := fetch(r, id)
		if err != nil {
			WriteError(w, r, log, err)
			return
		}
		WriteJSON(w, http.StatusOK, obj)
	}
}

// CreateHandler decodes an input, saves it and answers 201.
func CreateHandler[In, Out any](log zerolog.Logger, message string, save func(r *http.Request, in In) (*Out, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in In
		if err := DecodeJSON(r, &in); err != nil {
			WriteError(w, r, log, err)
			return
		}
		out, err := save(r, in)
		if err != nil {
			WriteError(w, r, log, err)
			return
		}
		WriteCreated(w, message, out)
	}
}

// UpdateHandler loads the current input of {id}, decodes the body over it
// (so PUT and PATCH both accept partial bodies), saves it and answers 200.
func UpdateHandler[In, Out any](log zerolog.Logger, message string, load func(r *http.Request, id int64) (In, error), save func(r *http.Request, id int64, in In) (*Out, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := IDParam(r, "id")
		if err != nil {
			WriteError(w, r, log, err)
			return
		}
		in, err := load(r, id)
		if err != nil {
			WriteError(w, r, log, err)
			return
		}
		if err := DecodeJSON(r, &in); err != nil {
			WriteError(w, r, log, err)
			return
		}
		out, err := save(r, id, in)
		if err != nil {
			WriteError(w, r, log, err)
			return
		}
		WriteUpdated(w, message, out)
	}
}

// DeleteHandler deletes {id} and answers 204.
func DeleteHandler(log zerolog.Logger, del func(r *http.Request, id int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := IDParam(r, "id")
		if err != nil {
			WriteError(w, r, log, err)
			return
		}
		if err := del(r, id); err != nil {
			WriteError(w, r, log, err)
			return
		}
		WriteNoContent(w)
	}
}
