// Package response writes the JSON bodies shared by handlers and
// middleware. Every error the API emits goes through WriteError so the
// body shape and status mapping stay uniform across the surface.
package response

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/mzaikin/dbportal/internal/model"
)

// Error is the uniform JSON error body.
type Error struct {
	Errors            []string `json:"errors"`
	RetryAfterSeconds int      `json:"retry_after_seconds,omitempty"`
	Attempts          int      `json:"attempts,omitempty"`
	Remaining         int      `json:"remaining,omitempty"`
}

// WriteError maps the service error taxonomy onto HTTP statuses. Auth and
// rate-limit responses stay information-minimal; validation and conflict
// messages surface verbatim.
func WriteError(w http.ResponseWriter, err error) {
	var (
		status = http.StatusInternalServerError
		body   = Error{Errors: []string{"internal server error"}}
	)

	var verr *model.ValidationError
	var limited *model.RateLimitedError
	var denied *model.VaultDeniedError
	var provErr *model.ProvisioningError

	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
		body = Error{Errors: verr.Fields}
	case errors.Is(err, model.ErrConflict):
		status = http.StatusConflict
		body = Error{Errors: []string{model.ErrConflict.Error()}}
	case errors.As(err, &limited):
		status = http.StatusTooManyRequests
		retryAfter := int(math.Ceil(limited.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		body = Error{
			Errors:            []string{"too many attempts"},
			RetryAfterSeconds: retryAfter,
		}
	case errors.As(err, &denied):
		status = http.StatusUnauthorized
		body = Error{
			Errors:    []string{denied.Error()},
			Attempts:  denied.Attempts,
			Remaining: denied.Remaining,
		}
	case errors.Is(err, model.ErrInvalidCredentials):
		status = http.StatusUnauthorized
		body = Error{Errors: []string{model.ErrInvalidCredentials.Error()}}
	case errors.Is(err, model.ErrInvalidRequest):
		status = http.StatusBadRequest
		body = Error{Errors: []string{"invalid request, please try again"}}
	case errors.As(err, &provErr):
		status = http.StatusBadGateway
		body = Error{Errors: []string{"failed to prepare your database, please try again"}}
	case errors.Is(err, model.ErrSessionExpired):
		status = http.StatusUnauthorized
		body = Error{Errors: []string{"session expired"}}
	case errors.Is(err, model.ErrUnauthenticated):
		status = http.StatusUnauthorized
		body = Error{Errors: []string{model.ErrUnauthenticated.Error()}}
	case errors.Is(err, model.ErrVaultLocked):
		status = http.StatusLocked
		body = Error{Errors: []string{"vault is locked"}}
	case errors.Is(err, model.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
		body = Error{Errors: []string{"temporarily unavailable, please retry"}}
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
		body = Error{Errors: []string{"not found"}}
	}

	WriteJSON(w, status, body)
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
