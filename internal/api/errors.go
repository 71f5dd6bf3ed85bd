package api

import (
	"errors"
	"net/http"

	"github.com/radio-control/rigd/internal/adapter"
)

// APIError represents an API-layer error with HTTP status code.
type APIError struct {
	Code       string
	Message    string
	Details    interface{}
	StatusCode int
}

// NewAPIError creates a new API error.
func NewAPIError(code, message string, statusCode int, details interface{}) *APIError {
	return &APIError{Code: code, Message: message, Details: details, StatusCode: statusCode}
}

// Error implements the error interface for APIError.
func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// statusFor maps normalized failure codes to HTTP status.
var statusFor = map[error]int{
	adapter.ErrInvalidArgument: http.StatusBadRequest,
	adapter.ErrBusy:            http.StatusServiceUnavailable,
	adapter.ErrTimeout:         http.StatusGatewayTimeout,
	adapter.ErrDevice:          http.StatusBadGateway,
	adapter.ErrLaunch:          http.StatusInternalServerError,
	adapter.ErrProtocol:        http.StatusBadGateway,
	adapter.ErrAlreadyRunning:  http.StatusConflict,
	adapter.ErrNotRunning:      http.StatusConflict,
}

// ToAPIError converts err to an HTTP status and envelope fields.
func ToAPIError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	code := adapter.CodeOf(err)
	if code == nil {
		return NewAPIError("INTERNAL", "Internal server error", http.StatusInternalServerError,
			map[string]interface{}{"original": err.Error()})
	}

	var details interface{}
	var ae *adapter.Error
	if errors.As(err, &ae) {
		details = ae.Details
	}
	message := adapter.DetailOf(err)
	if message == "" {
		message = code.Error()
	}
	return NewAPIError(code.Error(), message, statusFor[code], details)
}

// writeAPIError writes err in the envelope with its mapped status.
func writeAPIError(w http.ResponseWriter, err error) {
	e := ToAPIError(err)
	WriteError(w, e.StatusCode, e.Code, e.Message, e.Details)
}
