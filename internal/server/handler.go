package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/vibesql/sqlrun/internal/connector"
	"github.com/vibesql/sqlrun/internal/database"
	"github.com/vibesql/sqlrun/internal/version"
)

const (
	// MaxScriptSize is the largest script accepted, in bytes.
	MaxScriptSize = 10 * 1024
	// MaxRequestSize bounds the whole request body: the script plus the
	// connection parameters around it, JSON escaped.
	MaxRequestSize = 64 * 1024
	// MaxResultRows caps the records a raw cursor is rendered into.
	MaxResultRows = 1000
	// ExecutionTimeout bounds one request's connector lifecycle.
	ExecutionTimeout = 5 * time.Second
)

type Handler struct {
	log          logrus.FieldLogger
	newConnector func() connector.Connector
	timeout      time.Duration
}

func NewHandler(log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.New()
	}

	return &Handler{
		log: log,
		newConnector: func() connector.Connector {
			return connector.New(connector.WithLogger(log))
		},
		timeout: ExecutionTimeout,
	}
}

func (h *Handler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestSize))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		WriteError(w, database.NewError(database.ErrorCodeQueryTooLarge, "Request too large",
			fmt.Sprintf("Request body exceeds maximum allowed size (%d bytes)", tooLarge.Limit)))
		h.log.Errorf("Request body too large: over %d bytes", tooLarge.Limit)
		return
	}
	if err != nil {
		WriteError(w, NewInternalError("Failed to read request body: "+err.Error()))
		h.log.Errorf("Failed to read request body: %v", err)
		return
	}

	var params connector.Parameters
	if err := json.Unmarshal(body, &params); err != nil {
		WriteError(w, NewInvalidRequestError("Request body must be a JSON object of parameters"))
		h.log.Errorf("Invalid JSON: %v", err)
		return
	}

	if script, ok := params[connector.ParamScript].(string); ok && len(script) > MaxScriptSize {
		WriteError(w, database.NewQueryTooLargeError(len(script), MaxScriptSize))
		h.log.Errorf("Script too large: %d bytes", len(script))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	start := time.Now()

	var rendered *RenderedResult
	err = connector.Run(ctx, h.newConnector(), params, func(result connector.Result) error {
		var renderErr error
		rendered, renderErr = Render(result, MaxResultRows)
		return renderErr
	})
	if err != nil {
		WriteError(w, asCodedError(err))
		h.log.Errorf("Execution failed: %v", err)
		return
	}

	executionTimeMs := float64(time.Since(start).Microseconds()) / 1000.0

	if err := WriteSuccess(w, rendered, executionTimeMs); err != nil {
		h.log.Errorf("Failed to write response: %v", err)
		return
	}

	rowCount := 0
	if rendered != nil {
		rowCount = rendered.RowCount
	}
	h.log.WithField("rows", rowCount).Infof("Execution succeeded in %.2fms", executionTimeMs)
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := WriteJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: version.Get().Short()}); err != nil {
		h.log.Errorf("Failed to write response: %v", err)
	}
}

func (h *Handler) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	response := NewErrorResponse(NewInvalidRequestError("Method " + r.Method + " is not supported for " + r.URL.Path))
	_ = WriteJSON(w, http.StatusMethodNotAllowed, response)
	h.log.Errorf("Method not allowed: %s %s", r.Method, r.URL.Path)
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.MethodNotAllowed(h.handleMethodNotAllowed)
	r.Post("/v1/execute", h.HandleExecute)
	r.Get("/v1/health", h.HandleHealth)
}
