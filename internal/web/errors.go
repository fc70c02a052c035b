package web

// errors.go provides unified error response handling for the web layer.
//
// Two shapes leave this package:
//   - connector run failures: 500 with {"detail": message, "status": kind}
//   - everything else (unknown connector, busy, bad request): an
//     ErrorResponse built from core.MapError, logged with the request id

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"

	"github.com/JonMunkholm/connectorgw/internal/connector"
	"github.com/JonMunkholm/connectorgw/internal/core"
	"github.com/JonMunkholm/connectorgw/internal/pipeline"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// FailureResponse is the body of a failed connector run.
type FailureResponse struct {
	Detail string `json:"detail"`
	Status string `json:"status"`
}

// respondError logs the technical error server-side and writes a
// user-friendly JSON error.
func respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)

	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	writeJSONStatus(w, statusCode, ErrorResponse{
		Error:   err.Error(),
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// statusFor maps executor errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, connector.ErrConnectorNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrTooManyRuns):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeEnvelope writes a run outcome: the data for ok, otherwise 500 with
// the failure body. Partial data is never written.
func writeEnvelope(w http.ResponseWriter, env pipeline.Envelope) {
	if env.OK() {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(env.Data)
		return
	}
	writeJSONStatus(w, http.StatusInternalServerError, FailureResponse{Detail: env.Message, Status: env.Status})
}

// writeJSON encodes v as JSON with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus encodes v as JSON. Encoding errors are logged since
// headers are already sent.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
