package server

import (
	"encoding/json"
	"net/http"

	"github.com/vibesql/sqlrun/internal/database"
)

// ExecuteResponse represents an execution response (success or error)
type ExecuteResponse struct {
	Success       bool           `json:"success"`
	Result        map[string]any `json:"result,omitempty"`
	Columns       []string       `json:"columns,omitempty"`
	RowCount      int            `json:"rowCount"`
	ExecutionTime float64        `json:"executionTime,omitempty"`
	Error         *ErrorDetail   `json:"error,omitempty"`
}

// ErrorDetail represents error information in the response
type ErrorDetail struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Detail   string   `json:"detail,omitempty"`
	Messages []string `json:"messages,omitempty"`
}

// HealthResponse is served by the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// NewSuccessResponse creates a successful execution response. result is nil
// for a batch.
func NewSuccessResponse(result *RenderedResult, executionTime float64) *ExecuteResponse {
	response := &ExecuteResponse{
		Success:       true,
		ExecutionTime: executionTime,
	}

	if result != nil {
		response.Result = result.Values
		response.Columns = result.Columns
		response.RowCount = result.RowCount
	}

	return response
}

// NewErrorResponse creates an error response from a coded error
func NewErrorResponse(err *database.Error) *ExecuteResponse {
	if err == nil {
		return &ExecuteResponse{
			Success: false,
			Error: &ErrorDetail{
				Code:    database.ErrorCodeInternalError,
				Message: "Unknown error occurred",
			},
		}
	}

	return &ExecuteResponse{
		Success: false,
		Error: &ErrorDetail{
			Code:     err.Code,
			Message:  err.Message,
			Detail:   err.Detail,
			Messages: err.Messages,
		},
	}
}

// WriteJSON writes v as JSON with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	encoder := json.NewEncoder(w)
	return encoder.Encode(v)
}

// WriteSuccess writes a successful execution response with 200 OK status
func WriteSuccess(w http.ResponseWriter, result *RenderedResult, executionTime float64) error {
	return WriteJSON(w, http.StatusOK, NewSuccessResponse(result, executionTime))
}

// WriteError writes an error response with appropriate HTTP status code
func WriteError(w http.ResponseWriter, err *database.Error) error {
	response := NewErrorResponse(err)
	// Use response.Error.Code instead of err.Code to safely handle nil errors
	statusCode := database.GetHTTPStatusCode(response.Error.Code)
	return WriteJSON(w, statusCode, response)
}
