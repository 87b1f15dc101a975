package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/clefworks/studio-billing/internal/httpx"
	"github.com/clefworks/studio-billing/internal/services"
)

// writeServiceError maps the service error taxonomy onto HTTP responses.
// Public token failures already collapse to ErrNotFound inside the services,
// so this mapping leaks nothing extra.
func writeServiceError(w http.ResponseWriter, err error) {
	if ve, ok := services.AsValidation(err); ok {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", ve.Fields)
		return
	}
	switch {
	case errors.Is(err, services.ErrNotFound):
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
	case errors.Is(err, services.ErrExpired):
		httpx.JSONError(w, http.StatusGone, "expired", nil)
	case errors.Is(err, services.ErrAlreadySettled):
		httpx.JSONError(w, http.StatusConflict, "already_settled", nil)
	case errors.Is(err, services.ErrConflict):
		httpx.JSONError(w, http.StatusConflict, "conflict", nil)
	default:
		log.Printf("[http] internal error: %v", err)
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
	}
}

// queryID reads an unsigned id from a query parameter, 0 when absent/garbage.
func queryID(r *http.Request, name string) uint {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0
	}
	id, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}

// pagination reads limit/offset with defaults.
func pagination(r *http.Request) (limit, offset int) {
	limit = 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.Decode(r, dst); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return false
	}
	return true
}

func methodNotAllowed(w http.ResponseWriter) {
	httpx.JSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
}
