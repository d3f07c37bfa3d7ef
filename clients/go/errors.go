package lmsgo

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType int

const (
	// ErrorTypeUnknown represents an unknown error
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeNetwork represents transport-level failures
	ErrorTypeNetwork
	// ErrorTypeDecode represents a response body that is not valid JSON
	ErrorTypeDecode
	// ErrorTypeAuthentication represents a rejected login
	ErrorTypeAuthentication
	// ErrorTypeState represents an operation that is invalid for the current session
	ErrorTypeState
	// ErrorTypeSessionExpired represents a failed token refresh
	ErrorTypeSessionExpired
	// ErrorTypeAuthFailed represents a request whose 401 could not be recovered by a refresh
	ErrorTypeAuthFailed
	// ErrorTypeAPI represents a failure reported by the server
	ErrorTypeAPI
	// ErrorTypeValidation represents a client-side validation failure
	ErrorTypeValidation
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeDecode:
		return "decode"
	case ErrorTypeAuthentication:
		return "authentication"
	case ErrorTypeState:
		return "state"
	case ErrorTypeSessionExpired:
		return "session_expired"
	case ErrorTypeAuthFailed:
		return "auth_failed"
	case ErrorTypeAPI:
		return "api"
	case ErrorTypeValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error represents a structured error with type information
type Error struct {
	Type    ErrorType
	Message string
	// StatusCode is the HTTP status of the final response, 0 when no
	// response was received.
	StatusCode int
	// Body is the parsed response body of an API error.
	Body interface{}
	// Field names the missing or invalid input of a validation error.
	Field string
	Cause error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsType checks if the error is of a specific type
func (e *Error) IsType(errorType ErrorType) bool {
	return e.Type == errorType
}

// FieldErrors returns the per-field messages of a validation failure
// reported by the server (the "errors" object of a 422 body).
func (e *Error) FieldErrors() map[string][]string {
	body, ok := e.Body.(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := body["errors"].(map[string]interface{})
	if !ok {
		return nil
	}
	out := make(map[string][]string, len(raw))
	for field, v := range raw {
		switch msgs := v.(type) {
		case []interface{}:
			for _, m := range msgs {
				out[field] = append(out[field], fmt.Sprint(m))
			}
		case string:
			out[field] = []string{msgs}
		}
	}
	return out
}

// NewError creates a new Error with the specified type and message
func NewError(errorType ErrorType, message string) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
	}
}

// NewErrorWithCause creates a new Error with the specified type, message, and underlying cause
func NewErrorWithCause(errorType ErrorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewNetworkError creates a network-related error
func NewNetworkError(message string, cause error) *Error {
	return NewErrorWithCause(ErrorTypeNetwork, message, cause)
}

// NewDecodeError creates an error for a response body that could not be parsed
func NewDecodeError(statusCode int, cause error) *Error {
	return &Error{
		Type:       ErrorTypeDecode,
		Message:    "invalid JSON response from server",
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// NewAuthenticationError creates an authentication-related error
func NewAuthenticationError(message string) *Error {
	return NewError(ErrorTypeAuthentication, message)
}

// NewStateError creates an error for an operation the session state does not allow
func NewStateError(message string) *Error {
	return NewError(ErrorTypeState, message)
}

// NewSessionExpiredError creates the error returned by a failed refresh
func NewSessionExpiredError(cause error) *Error {
	return NewErrorWithCause(ErrorTypeSessionExpired, "session expired, please login again", cause)
}

// NewAuthFailedError creates the error returned when a 401 could not be recovered
func NewAuthFailedError(cause error) *Error {
	return NewErrorWithCause(ErrorTypeAuthFailed, "authentication failed, please login again", cause)
}

// NewAPIError creates an API-related error with status code and parsed body
func NewAPIError(message string, statusCode int, body interface{}) *Error {
	return &Error{
		Type:       ErrorTypeAPI,
		Message:    message,
		StatusCode: statusCode,
		Body:       body,
	}
}

// NewRequiredFieldError creates a validation error naming a missing field
func NewRequiredFieldError(field string) *Error {
	return &Error{
		Type:    ErrorTypeValidation,
		Message: field + " is required",
		Field:   field,
	}
}

func isType(err error, t ErrorType) bool {
	var lErr *Error
	if errors.As(err, &lErr) {
		return lErr.IsType(t)
	}
	return false
}

// IsNetworkError checks if an error is network-related
func IsNetworkError(err error) bool { return isType(err, ErrorTypeNetwork) }

// IsDecodeError checks if an error comes from an unparseable response body
func IsDecodeError(err error) bool { return isType(err, ErrorTypeDecode) }

// IsAuthenticationError checks if an error is a rejected login
func IsAuthenticationError(err error) bool { return isType(err, ErrorTypeAuthentication) }

// IsStateError checks if an error is a session state violation
func IsStateError(err error) bool { return isType(err, ErrorTypeState) }

// IsSessionExpiredError checks if an error comes from a failed refresh
func IsSessionExpiredError(err error) bool { return isType(err, ErrorTypeSessionExpired) }

// IsAuthFailedError checks if an error is an unrecoverable 401
func IsAuthFailedError(err error) bool { return isType(err, ErrorTypeAuthFailed) }

// IsAPIError checks if an error is API-related
func IsAPIError(err error) bool { return isType(err, ErrorTypeAPI) }

// IsValidationError checks if an error is validation-related
func IsValidationError(err error) bool { return isType(err, ErrorTypeValidation) }

// StatusCode returns the HTTP status of the first API error in err's
// chain, or 0.
func StatusCode(err error) int {
	for err != nil {
		if lErr, ok := err.(*Error); ok && lErr.Type == ErrorTypeAPI {
			return lErr.StatusCode
		}
		err = errors.Unwrap(err)
	}
	return 0
}

// newAPIErrorFromResponse builds the APIError for a non-2xx response,
// preferring the server's message.
func newAPIErrorFromResponse(resp *Response) *Error {
	msg := resp.Message()
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return NewAPIError(msg, resp.StatusCode, resp.Body)
}
