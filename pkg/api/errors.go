package api

import "fmt"

// ErrorType represents the category of an API error.
type ErrorType string

const (
	ErrorTypeServerError     ErrorType = "server_error"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeUnauthenticated ErrorType = "unauthenticated"
	ErrorTypeNotFound        ErrorType = "not_found"
)

// APIError is a structured error carrying a category and a short
// machine-readable message. It is the only error shape ever serialized
// to clients; internal causes stay server-side.
type APIError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorResponse wraps an APIError for JSON serialization as the top-level
// error response.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// NewInvalidRequestError creates an APIError for malformed requests,
// including malformed Authorization headers.
func NewInvalidRequestError(message string) *APIError {
	return &APIError{Type: ErrorTypeInvalidRequest, Message: message}
}

// NewUnauthenticatedError creates an APIError for requests that are missing
// required credentials.
func NewUnauthenticatedError(message string) *APIError {
	return &APIError{Type: ErrorTypeUnauthenticated, Message: message}
}

// NewNotFoundError creates an APIError for resources that do not exist or
// that the caller is not allowed to see. The two cases are deliberately
// indistinguishable to clients.
func NewNotFoundError(message string) *APIError {
	return &APIError{Type: ErrorTypeNotFound, Message: message}
}

// NewServerError creates an APIError for internal failures. The message
// should be generic; the underlying cause is logged, never returned.
func NewServerError(message string) *APIError {
	return &APIError{Type: ErrorTypeServerError, Message: message}
}
