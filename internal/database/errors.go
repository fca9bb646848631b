package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Error codes
const (
	ErrorCodeValidation     = "VALIDATION_FAILED"
	ErrorCodeConnection     = "CONNECTION_FAILED"
	ErrorCodeQuery          = "QUERY_FAILED"
	ErrorCodeQueryTimeout   = "QUERY_TIMEOUT"
	ErrorCodeQueryTooLarge  = "QUERY_TOO_LARGE"
	ErrorCodeShape          = "SHAPE_MISMATCH"
	ErrorCodeResultTooLarge = "RESULT_TOO_LARGE"
	ErrorCodeInternalError  = "INTERNAL_ERROR"
)

// HTTP status codes for error codes
const (
	HTTPStatusValidation     = 400
	HTTPStatusQuery          = 400
	HTTPStatusQueryTimeout   = 408
	HTTPStatusQueryTooLarge  = 413
	HTTPStatusResultTooLarge = 413
	HTTPStatusShape          = 422
	HTTPStatusInternalError  = 500
	HTTPStatusConnection     = 503
)

// Error is the single error type surfaced by the script runner. Code selects
// the taxonomy member; Messages is only filled for validation failures.
type Error struct {
	Code     string
	Message  string
	Detail   string
	Messages []string
	Err      error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code, so errors.Is(err, ErrShape)
// works whatever the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrValidation     = &Error{Code: ErrorCodeValidation}
	ErrConnection     = &Error{Code: ErrorCodeConnection}
	ErrQuery          = &Error{Code: ErrorCodeQuery}
	ErrQueryTimeout   = &Error{Code: ErrorCodeQueryTimeout}
	ErrShape          = &Error{Code: ErrorCodeShape}
	ErrResultTooLarge = &Error{Code: ErrorCodeResultTooLarge}
)

// NewError creates a new coded error
func NewError(code, message, detail string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Detail:  detail,
	}
}

// NewValidationError carries every validation message at once.
func NewValidationError(messages []string) *Error {
	return &Error{
		Code:     ErrorCodeValidation,
		Message:  "Invalid input parameters",
		Detail:   strings.Join(messages, "; "),
		Messages: messages,
	}
}

// NewConnectionError wraps a failure to acquire or release a session.
func NewConnectionError(message string, err error) *Error {
	return &Error{
		Code:    ErrorCodeConnection,
		Message: message,
		Detail:  describe(err),
		Err:     err,
	}
}

// NewShapeError reports a cursor whose shape does not fit the output mode.
func NewShapeError(message string) *Error {
	return &Error{
		Code:    ErrorCodeShape,
		Message: message,
	}
}

// NewResultTooLargeError reports a materialized result over the row cap.
func NewResultTooLargeError(maxRows int) *Error {
	return &Error{
		Code:    ErrorCodeResultTooLarge,
		Message: "Result set too large",
		Detail:  fmt.Sprintf("Query returned more than the maximum allowed %d rows", maxRows),
	}
}

// NewQueryTooLargeError reports a script over the accepted size.
func NewQueryTooLargeError(actualSize, maxSize int) *Error {
	return &Error{
		Code:    ErrorCodeQueryTooLarge,
		Message: "Query too large",
		Detail:  fmt.Sprintf("Script size (%d bytes) exceeds maximum allowed size (%d bytes)", actualSize, maxSize),
	}
}

// SQLSTATE classes that mean the session itself is gone rather than the
// statement being wrong.
var sqlStateToCode = map[string]string{
	"57014": ErrorCodeQueryTimeout, // query_canceled

	"08000": ErrorCodeConnection, // connection_exception
	"08003": ErrorCodeConnection, // connection_does_not_exist
	"08006": ErrorCodeConnection, // connection_failure
	"08001": ErrorCodeConnection, // sqlclient_unable_to_establish_sqlconnection
	"08004": ErrorCodeConnection, // sqlserver_rejected_establishment_of_sqlconnection
	"53300": ErrorCodeConnection, // too_many_connections
}

// TranslateError turns a failure of the underlying executor into a
// QueryError. Errors that already carry a code pass through unchanged.
func TranslateError(err error) *Error {
	if err == nil {
		return nil
	}

	var coded *Error
	if errors.As(err, &coded) {
		return coded
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{
			Code:    ErrorCodeQueryTimeout,
			Message: "Query execution timeout",
			Detail:  "Statement exceeded the deadline of its context",
			Err:     err,
		}
	}

	if errors.Is(err, context.Canceled) {
		return &Error{
			Code:    ErrorCodeQueryTimeout,
			Message: "Query execution canceled",
			Detail:  "Statement was canceled before completion",
			Err:     err,
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code, found := sqlStateToCode[string(pqErr.Code)]
		if !found {
			code = ErrorCodeQuery
		}
		return &Error{
			Code:    code,
			Message: buildErrorMessage(code),
			Detail:  describe(err),
			Err:     err,
		}
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		code := ErrorCodeQuery
		switch liteErr.Code {
		case sqlite3.ErrInterrupt:
			code = ErrorCodeQueryTimeout
		case sqlite3.ErrCantOpen, sqlite3.ErrNotADB:
			code = ErrorCodeConnection
		}
		return &Error{
			Code:    code,
			Message: buildErrorMessage(code),
			Detail:  describe(err),
			Err:     err,
		}
	}

	return &Error{
		Code:    ErrorCodeQuery,
		Message: buildErrorMessage(ErrorCodeQuery),
		Detail:  describe(err),
		Err:     err,
	}
}

func buildErrorMessage(code string) string {
	switch code {
	case ErrorCodeQueryTimeout:
		return "Query execution timeout"
	case ErrorCodeConnection:
		return "Database is unavailable"
	default:
		return "Statement execution failed"
	}
}

// describe renders driver specific error information.
func describe(err error) string {
	if err == nil {
		return ""
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		detail := fmt.Sprintf("PostgreSQL error %s: %s", pqErr.Code, pqErr.Message)
		if pqErr.Detail != "" {
			detail += fmt.Sprintf(" | Detail: %s", pqErr.Detail)
		}
		if pqErr.Hint != "" {
			detail += fmt.Sprintf(" | Hint: %s", pqErr.Hint)
		}
		if pqErr.Position != "" {
			detail += fmt.Sprintf(" | Position: %s", pqErr.Position)
		}
		return detail
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return fmt.Sprintf("SQLite error: %s | Code: %d | Extended: %d",
			liteErr.Error(), int(liteErr.Code), int(liteErr.ExtendedCode))
	}

	return err.Error()
}

// GetHTTPStatusCode returns the HTTP status code for an error code
func GetHTTPStatusCode(errorCode string) int {
	switch errorCode {
	case ErrorCodeValidation:
		return HTTPStatusValidation
	case ErrorCodeQuery:
		return HTTPStatusQuery
	case ErrorCodeQueryTimeout:
		return HTTPStatusQueryTimeout
	case ErrorCodeQueryTooLarge:
		return HTTPStatusQueryTooLarge
	case ErrorCodeResultTooLarge:
		return HTTPStatusResultTooLarge
	case ErrorCodeShape:
		return HTTPStatusShape
	case ErrorCodeConnection:
		return HTTPStatusConnection
	default:
		return HTTPStatusInternalError
	}
}
