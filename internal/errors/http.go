package errors

import (
	"errors"
	"net/http"
)

// HTTPStatus maps an error to the HTTP status code the API surface reports
// for it. Validation problems are the caller's fault, a disconnected session
// is unavailability for lookups, and everything else is a server-side
// failure.
func HTTPStatus(err error, notConnectedStatus int) int {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}

	switch appErr.Code {
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeNotConnected:
		return notConnectedStatus
	default:
		return http.StatusInternalServerError
	}
}
