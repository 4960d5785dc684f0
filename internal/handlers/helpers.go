package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/somexchange/backend/internal/middleware"
	"github.com/somexchange/backend/internal/models"
	"github.com/somexchange/backend/internal/services"
)

const maxBodyBytes = 1_048_576

// decodeJSON reads exactly one JSON object into dst. On failure the error
// response has been written and false is returned.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		log.Printf("[HTTP] Decode error on %s: %v", r.URL.Path, err)
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] Failed to encode response: %v", err)
	}
}

// writeError maps a service error onto a status code.
func writeError(w http.ResponseWriter, err error) {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		services.SendErrorResponse(w, ve.Message, http.StatusBadRequest, ve)
	case errors.Is(err, services.ErrValidation):
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, services.ErrInsufficientFunds):
		services.SendErrorResponse(w, err.Error(), http.StatusUnprocessableEntity, nil)
	case errors.Is(err, services.ErrCurrencyNotFound), errors.Is(err, services.ErrEntryNotFound):
		services.SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
	case errors.Is(err, services.ErrTransactionConflict):
		services.SendErrorResponse(w, "Concurrent modification, please retry", http.StatusConflict, nil)
	case errors.Is(err, services.ErrForbidden):
		services.SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
	case errors.Is(err, services.ErrInvalidCredentials):
		services.SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
	default:
		log.Printf("[HTTP] Internal error: %v", err)
		services.SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
	}
}

func identity(w http.ResponseWriter, r *http.Request) (models.Identity, bool) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
	}
	return id, ok
}

// parseRange reads the from and to query parameters as inclusive calendar
// days in loc.
func parseRange(q url.Values, loc *time.Location) (models.DateRange, error) {
	r, err := models.ParseDayRange(q.Get("from"), q.Get("to"), loc)
	var re *models.RangeError
	if errors.As(err, &re) {
		return r, &services.ValidationError{Message: "Validation failed", Fields: map[string]string{re.Field: re.Reason}}
	}
	return r, err
}
