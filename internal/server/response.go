package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/agentd-ai/agentd/internal/logging"
	"github.com/agentd-ai/agentd/internal/session"
)

// Error codes returned in the body of failed requests.
const (
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeDirectoryNotFound = "DIRECTORY_NOT_FOUND"
	ErrCodeNotTrusted        = "NOT_TRUSTED"
	ErrCodeWarmingUp         = "SERVICE_WARMING_UP"
	ErrCodeInitFailed        = "INITIALIZATION_FAILED"
	ErrCodeApprovalRequired  = "TOOL_APPROVAL_REQUIRED"
	ErrCodeModelRuntime      = "MODEL_RUNTIME_ERROR"
	ErrCodeEmptyResponse     = "EMPTY_RESPONSE"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log := logging.Component("server")
		log.Error().Err(err).Msg("encoding response")
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// errorCode maps a session-layer error to its code and HTTP status.
func errorCode(err error) (string, int) {
	var rtErr *session.RuntimeError
	switch {
	case errors.Is(err, session.ErrDirectoryNotFound):
		return ErrCodeDirectoryNotFound, http.StatusNotFound
	case errors.Is(err, session.ErrSessionNotFound):
		return ErrCodeNotFound, http.StatusNotFound
	case errors.Is(err, session.ErrNotTrusted):
		return ErrCodeNotTrusted, http.StatusForbidden
	case errors.Is(err, session.ErrWarmingUp):
		return ErrCodeWarmingUp, http.StatusServiceUnavailable
	case errors.Is(err, session.ErrInitializationFailed):
		return ErrCodeInitFailed, http.StatusInternalServerError
	case errors.Is(err, session.ErrApprovalRequired):
		return ErrCodeApprovalRequired, http.StatusConflict
	case errors.Is(err, session.ErrEmptyResponse):
		return ErrCodeEmptyResponse, http.StatusBadGateway
	case errors.Is(err, session.ErrNoPendingCalls):
		return ErrCodeInvalidRequest, http.StatusBadRequest
	case errors.Is(err, session.ErrEmptyPrompt):
		return ErrCodeInvalidRequest, http.StatusBadRequest
	case errors.As(err, &rtErr):
		return ErrCodeModelRuntime, http.StatusBadGateway
	default:
		return ErrCodeInternal, http.StatusInternalServerError
	}
}

// writeSessionError maps err through errorCode and writes it.
func writeSessionError(w http.ResponseWriter, err error) {
	code, status := errorCode(err)
	writeError(w, status, code, err.Error())
}
