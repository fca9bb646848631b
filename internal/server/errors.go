// Package server exposes script execution over HTTP. Every request runs one
// connector lifecycle of its own; errors are reported with the codes of the
// database package and mapped to HTTP status codes.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/vibesql/sqlrun/internal/database"
)

// NewInvalidRequestError creates an error for a request body that cannot be
// turned into parameters.
func NewInvalidRequestError(detail string) *database.Error {
	return database.NewError(
		database.ErrorCodeValidation,
		"Invalid request body",
		detail,
	)
}

// NewInternalError creates an error for internal server errors
func NewInternalError(detail string) *database.Error {
	return database.NewError(
		database.ErrorCodeInternalError,
		"An internal error occurred",
		detail,
	)
}

// asCodedError returns err as a coded error. Uncoded errors are internal.
func asCodedError(err error) *database.Error {
	var coded *database.Error
	if errors.As(err, &coded) {
		return coded
	}
	return NewInternalError(err.Error())
}

// HTTPErrorCodeMapping lists the status every error code is served with.
var HTTPErrorCodeMapping = map[string]int{
	database.ErrorCodeValidation:     http.StatusBadRequest,            // 400
	database.ErrorCodeQuery:          http.StatusBadRequest,            // 400
	database.ErrorCodeQueryTimeout:   http.StatusRequestTimeout,        // 408
	database.ErrorCodeQueryTooLarge:  http.StatusRequestEntityTooLarge, // 413
	database.ErrorCodeResultTooLarge: http.StatusRequestEntityTooLarge, // 413
	database.ErrorCodeShape:          http.StatusUnprocessableEntity,   // 422
	database.ErrorCodeInternalError:  http.StatusInternalServerError,   // 500
	database.ErrorCodeConnection:     http.StatusServiceUnavailable,    // 503
}

// ValidateHTTPStatusMapping checks HTTPErrorCodeMapping against the
// database package.
func ValidateHTTPStatusMapping() error {
	for code, expectedStatus := range HTTPErrorCodeMapping {
		actualStatus := database.GetHTTPStatusCode(code)
		if actualStatus != expectedStatus {
			return fmt.Errorf("HTTP status mismatch for %s: expected %d, got %d", code, expectedStatus, actualStatus)
		}
	}
	return nil
}
