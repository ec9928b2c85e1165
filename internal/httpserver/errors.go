package httpserver

import (
	"errors"
	"net/http"

	"telepost/internal/domain"
)

const (
	ErrInvalidJSON = "invalid json"
	ErrDependency  = "dependency error"
)

// statusFor maps the tagged error taxonomy onto status codes so callers
// can tell "log in again" (401) from "server lacks api credentials" (501)
// from plain validation failures. Unrecognized errors are dependency
// failures.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrMissingFields):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotConfigured):
		return http.StatusNotImplemented
	case errors.Is(err, domain.ErrSecondFactorRequired):
		return http.StatusPreconditionRequired
	case errors.Is(err, domain.ErrLoginExpired):
		return http.StatusGone
	case errors.Is(err, domain.ErrPostNotFound),
		errors.Is(err, domain.ErrChannelNotTracked):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoCredential),
		errors.Is(err, domain.ErrEmptyContent),
		errors.Is(err, domain.ErrChannelNotConfigured),
		errors.Is(err, domain.ErrChannelUnreachable):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}
