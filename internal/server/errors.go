package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lowks/discovery/internal/model"
)

// ErrorCode identifies an API error class.
type ErrorCode string

const (
	ErrorCodeInvalidRequest  ErrorCode = "INVALID_REQUEST"
	ErrorCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	ErrorCodeNoServers       ErrorCode = "NO_SERVERS"
	ErrorCodeRingRejected    ErrorCode = "RING_REJECTED"
	ErrorCodeNodeNotFound    ErrorCode = "NODE_NOT_FOUND"
	ErrorCodeRateLimited     ErrorCode = "RATE_LIMITED"
	ErrorCodeInternalError   ErrorCode = "INTERNAL_ERROR"
)

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Status    string    `json:"status"`
	ErrorCode ErrorCode `json:"error_code"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id,omitempty"`
}

// writeError writes the standard error envelope.
func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code ErrorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Status:    "error",
		ErrorCode: code,
		Message:   message,
		RequestID: r.Header.Get("X-Request-ID"),
	})
}

// writeDomainError maps a core error to its HTTP status and error code.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidArgument):
		writeError(w, r, http.StatusBadRequest, ErrorCodeInvalidArgument, err.Error())
	case errors.Is(err, model.ErrNoServers):
		writeError(w, r, http.StatusNotFound, ErrorCodeNoServers, err.Error())
	case errors.Is(err, model.ErrRingRejected):
		writeError(w, r, http.StatusConflict, ErrorCodeRingRejected, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, ErrorCodeInternalError, err.Error())
	}
}
