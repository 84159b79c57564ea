package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/poiesic/semindex/core"
)

// ErrSearcherRequired is returned when a searcher is not provided.
var ErrSearcherRequired = errors.New("searcher required")

// statusFor maps an error class onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrProvider):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// httpError converts a domain error into an echo error with a JSON message.
func httpError(err error) *echo.HTTPError {
	return echo.NewHTTPError(statusFor(err), err.Error()).SetInternal(err)
}
