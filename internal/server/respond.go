package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ryhazerus/apiwatch"
)

// Error codes returned in the envelope.
const (
	codeNotFound     = "NOT_FOUND"
	codeValidation   = "VALIDATION_ERROR"
	codeConflict     = "CONFLICT"
	codeRetry        = "RETRY"
	codeUnauthorized = "UNAUTHORIZED"
	codeInternal     = "INTERNAL_SERVER_ERROR"
)

const maxBodyBytes = 1 << 20

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Message string    `json:"message,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeMessage(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: msg})
}

func writeFailure(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, envelope{Error: &apiError{Code: code, Message: msg}})
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	writeFailure(w, http.StatusNotFound, codeNotFound, "Endpoint not found")
}

// writeError maps a tracker error onto a status code and envelope.
// Internal details are logged, not returned.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *apiwatch.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, envelope{Error: &apiError{
			Code:    codeValidation,
			Message: verr.Error(),
			Field:   verr.Field,
		}})
	case errors.Is(err, apiwatch.ErrValidation):
		writeFailure(w, http.StatusBadRequest, codeValidation, err.Error())
	case errors.Is(err, apiwatch.ErrNotFound):
		writeFailure(w, http.StatusNotFound, codeNotFound, "Resource not found")
	case errors.Is(err, apiwatch.ErrConflict):
		writeFailure(w, http.StatusConflict, codeConflict, "Resource already exists")
	case errors.Is(err, apiwatch.ErrTransient):
		w.Header().Set("Retry-After", "1")
		writeFailure(w, http.StatusServiceUnavailable, codeRetry, "Storage busy, retry the request")
	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeFailure(w, http.StatusInternalServerError, codeInternal, "Internal server error")
	}
}

// decode reads a JSON request body into v.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return &apiwatch.ValidationError{Field: "body", Reason: "invalid JSON: " + err.Error()}
	}
	return nil
}
