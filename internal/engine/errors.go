package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"modelbridge/internal/transport"
)

// invalidArgumentError signals a caller error detected before anything is queued.
type invalidArgumentError struct{ msg string }

func (e invalidArgumentError) Error() string { return "invalid argument: " + e.msg }

// StatusCode maps to 400 in HTTP layers.
func (e invalidArgumentError) StatusCode() int { return http.StatusBadRequest }

// IsInvalidArgument reports whether err was caused by bad caller input.
func IsInvalidArgument(err error) bool {
	var ia invalidArgumentError
	return errors.As(err, &ia)
}

func errRequired(field string) error { return invalidArgumentError{msg: field + " is required"} }

// BackendError carries the engine's own error body for a failed pull, so
// callers see the engine's error shape rather than a generic transport error.
type BackendError struct {
	Code int
	// Body is the engine's JSON error object, verbatim.
	Body json.RawMessage
	// Message is the engine's human-readable message when one was found.
	Message string
}

func (e *BackendError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("engine error (%d): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("engine error (%d): %s", e.Code, string(e.Body))
}

// StatusCode returns the engine's HTTP status.
func (e *BackendError) StatusCode() int { return e.Code }

// backendErrorFrom unwraps a parsed JSON error body from a transport error.
// It returns err unchanged when there is no JSON body to surface.
func backendErrorFrom(err error) error {
	var se *transport.StatusError
	if !errors.As(err, &se) || len(se.Body) == 0 {
		return err
	}
	var probe any
	if json.Unmarshal(se.Body, &probe) != nil || probe == nil {
		return err
	}
	be := &BackendError{Code: se.Code, Body: json.RawMessage(se.Body)}
	if obj, ok := probe.(map[string]any); ok {
		be.Message = messageOf(obj)
	}
	return be
}

// messageOf finds a message in the common error shapes engines return:
// {"message": ...}, {"error": "..."} and {"error": {"message": ...}}.
func messageOf(obj map[string]any) string {
	if s, ok := obj["message"].(string); ok {
		return s
	}
	switch v := obj["error"].(type) {
	case string:
		return v
	case map[string]any:
		if s, ok := v["message"].(string); ok {
			return s
		}
	}
	return ""
}

// IsBackendError reports whether err carries an engine error body.
func IsBackendError(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}
