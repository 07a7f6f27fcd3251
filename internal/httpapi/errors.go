package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"modelbridge/internal/engine"
	"modelbridge/internal/queue"
	"modelbridge/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg, Code: status})
}

// statusFor maps an engine client error to the status returned to callers.
func statusFor(err error) (int, string) {
	var he HTTPError
	switch {
	case engine.IsInvalidArgument(err):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, queue.ErrClosed):
		return http.StatusServiceUnavailable, "closed"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.As(err, &he) && he.StatusCode() >= 400:
		return he.StatusCode(), "engine_status"
	default:
		return http.StatusBadGateway, "unreachable"
	}
}

// writeEngineError writes err using statusFor. An engine error body carried
// by a *engine.BackendError is forwarded verbatim.
func writeEngineError(w http.ResponseWriter, err error) int {
	status, reason := statusFor(err)
	IncrementUpstreamError(reason)
	var be *engine.BackendError
	if errors.As(err, &be) && len(be.Body) > 0 && be.Code >= 400 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(be.Code)
		_, _ = w.Write(be.Body)
		return be.Code
	}
	writeJSONError(w, status, err.Error())
	return status
}
