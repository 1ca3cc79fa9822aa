package hostfuncs

import (
	"encoding/json"
)

// ErrorResponse is a structured error returned as JSON to modules, so a
// failing host call never traps the guest.
type ErrorResponse struct {
	// Error is a machine-readable error type identifier (e.g. "NOT_FOUND").
	Error string `json:"error"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Code is a numeric error code (e.g. 400, 500).
	Code int `json:"code"`
}

// ToJSON serializes the ErrorResponse to JSON bytes.
func (e ErrorResponse) ToJSON() []byte {
	data, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	return data
}

// NewValidationError creates an error response for bad input.
func NewValidationError(message string) ErrorResponse {
	return ErrorResponse{Error: "VALIDATION_ERROR", Message: message, Code: 400}
}

// NewNotFoundError creates an error response for unknown handler names.
func NewNotFoundError(name string) ErrorResponse {
	return ErrorResponse{Error: "NOT_FOUND", Message: "unknown host function: " + name, Code: 404}
}

// NewInternalError creates an error response for unexpected failures.
func NewInternalError(message string) ErrorResponse {
	return ErrorResponse{Error: "INTERNAL_ERROR", Message: message, Code: 500}
}

// NewPanicError creates an error response for recovered panics.
func NewPanicError(panicValue any) ErrorResponse {
	msg := "panic recovered"
	switch v := panicValue.(type) {
	case error:
		msg = v.Error()
	case string:
		msg = v
	}
	return ErrorResponse{Error: "INTERNAL_ERROR", Message: "panic: " + msg, Code: 500}
}
