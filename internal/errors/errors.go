package errors

import (
	"errors"
	"net/http"
)

// Error classes. Every error that reaches the HTTP boundary should wrap one of
// these so it can be mapped to a status code.
var (
	// ErrConfiguration is returned for missing or malformed secret material.
	ErrConfiguration = errors.New("configuration error")
	// ErrValidation is returned for malformed or missing request fields.
	ErrValidation = errors.New("validation error")
	// ErrAuthentication is returned for bad credentials or invalid tokens.
	ErrAuthentication = errors.New("authentication error")
	// ErrAuthorization is returned when the caller lacks the required role.
	ErrAuthorization = errors.New("authorization error")
	// ErrConflict is returned when a unique key already exists.
	ErrConflict = errors.New("conflict")
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrCrypto is returned when encryption or decryption fails.
	ErrCrypto = errors.New("crypto error")
	// ErrRateLimited is returned when too many attempts were made.
	ErrRateLimited = errors.New("rate limited")
)

var (
	// ErrInvalidCredentials is returned for both unknown emails and wrong passwords.
	ErrInvalidCredentials = New(ErrAuthentication, "invalid email or password")
	// ErrInvalidToken is returned when a token fails verification.
	ErrInvalidToken = New(ErrAuthentication, "invalid or expired token")
	// ErrAuthenticationRequired is returned when no credentials were presented.
	ErrAuthenticationRequired = New(ErrAuthentication, "authentication required")
	// ErrForbidden is returned when the caller's role does not grant the permission.
	ErrForbidden = New(ErrAuthorization, "forbidden")
	// ErrEmailTaken is returned when signing up with a registered email.
	ErrEmailTaken = New(ErrConflict, "email already registered")
	// ErrUserNotFound is returned when a user record does not exist.
	ErrUserNotFound = New(ErrNotFound, "user not found")
	// ErrSecretNotFound is returned when no secret exists for a name and environment.
	ErrSecretNotFound = New(ErrNotFound, "secret not found")
	// ErrDecryption is returned for malformed or tampered ciphertext.
	ErrDecryption = New(ErrCrypto, "decryption failed")
	// ErrTooManyAttempts is returned when login is throttled.
	ErrTooManyAttempts = New(ErrRateLimited, "too many attempts, try again later")
)

// Error is a classified error. Message is safe to show to callers; it must
// never contain secrets, passwords or key material.
type Error struct {
	Class   error
	Message string
}

// New creates an error of the given class with a caller-safe message.
func New(class error, message string) error {
	return &Error{Class: class, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes the class to errors.Is.
func (e *Error) Unwrap() error {
	return e.Class
}

// Validation creates a validation error.
func Validation(message string) error {
	return New(ErrValidation, message)
}

// Configuration creates a configuration error.
func Configuration(message string) error {
	return New(ErrConfiguration, message)
}

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, message, code string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Code:       code,
	}
}

// ToErrorResponse converts an HTTPError to ErrorResponse.
func (e *HTTPError) ToErrorResponse() ErrorResponse {
	return ErrorResponse{
		Success: false,
		Error:   e.Message,
		Code:    e.Code,
	}
}

// MapErrorToHTTP maps domain errors to HTTP errors. Anything unclassified,
// crypto and configuration failures included, becomes a generic 500.
func MapErrorToHTTP(err error) *HTTPError {
	switch {
	case errors.Is(err, ErrValidation):
		return NewHTTPError(http.StatusBadRequest, safeMessage(err, "invalid request"), "VALIDATION_FAILED")
	case errors.Is(err, ErrAuthentication):
		return NewHTTPError(http.StatusUnauthorized, safeMessage(err, "unauthorized"), "UNAUTHORIZED")
	case errors.Is(err, ErrAuthorization):
		return NewHTTPError(http.StatusForbidden, "forbidden", "FORBIDDEN")
	case errors.Is(err, ErrNotFound):
		return NewHTTPError(http.StatusNotFound, safeMessage(err, "not found"), "NOT_FOUND")
	case errors.Is(err, ErrConflict):
		return NewHTTPError(http.StatusConflict, safeMessage(err, "conflict"), "CONFLICT")
	case errors.Is(err, ErrRateLimited):
		return NewHTTPError(http.StatusTooManyRequests, safeMessage(err, "too many requests"), "RATE_LIMITED")
	default:
		return NewHTTPError(http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}

// safeMessage returns the message of the outermost classified error, never
// the text of wrapped causes.
func safeMessage(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}
