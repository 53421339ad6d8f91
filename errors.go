package oauth

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is an RFC 6749 error code. The set is closed: only the
// constants below are valid, see Valid.
type ErrorCode string

// OAuth error codes as constants
const (
	ErrorCodeInvalidRequest          ErrorCode = "invalid_request"
	ErrorCodeUnauthorizedClient      ErrorCode = "unauthorized_client"
	ErrorCodeAccessDenied            ErrorCode = "access_denied"
	ErrorCodeUnsupportedResponseType ErrorCode = "unsupported_response_type"
	ErrorCodeInvalidScope            ErrorCode = "invalid_scope"
	ErrorCodeServerError             ErrorCode = "server_error"
	ErrorCodeTemporarilyUnavailable  ErrorCode = "temporarily_unavailable"
	ErrorCodeInvalidClient           ErrorCode = "invalid_client"
	ErrorCodeInvalidGrant            ErrorCode = "invalid_grant"
	ErrorCodeUnsupportedGrantType    ErrorCode = "unsupported_grant_type"
)

// ErrorCodes lists every valid error code.
var ErrorCodes = []ErrorCode{
	ErrorCodeInvalidRequest,
	ErrorCodeUnauthorizedClient,
	ErrorCodeAccessDenied,
	ErrorCodeUnsupportedResponseType,
	ErrorCodeInvalidScope,
	ErrorCodeServerError,
	ErrorCodeTemporarilyUnavailable,
	ErrorCodeInvalidClient,
	ErrorCodeInvalidGrant,
	ErrorCodeUnsupportedGrantType,
}

// Valid reports whether c is one of the defined error codes.
func (c ErrorCode) Valid() bool {
	switch c {
	case ErrorCodeInvalidRequest,
		ErrorCodeUnauthorizedClient,
		ErrorCodeAccessDenied,
		ErrorCodeUnsupportedResponseType,
		ErrorCodeInvalidScope,
		ErrorCodeServerError,
		ErrorCodeTemporarilyUnavailable,
		ErrorCodeInvalidClient,
		ErrorCodeInvalidGrant,
		ErrorCodeUnsupportedGrantType:
		return true
	}
	return false
}

// HTTPStatus returns the HTTP status the transport layer should use for c.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrorCodeInvalidClient:
		return http.StatusUnauthorized
	case ErrorCodeAccessDenied:
		return http.StatusForbidden
	case ErrorCodeServerError:
		return http.StatusInternalServerError
	case ErrorCodeTemporarilyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

// OAuthError represents an OAuth 2.0 error response
type OAuthError struct {
	Code        ErrorCode `json:"error"`
	Description string    `json:"error_description,omitempty"`
	URI         string    `json:"error_uri,omitempty"`

	// cause is the internal failure behind a server_error. It is never
	// serialized.
	cause error
}

// Error implements the error interface
func (e *OAuthError) Error() string {
	if e.Description == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Unwrap returns the internal cause, if any.
func (e *OAuthError) Unwrap() error {
	return e.cause
}

// Status returns the HTTP status code for the error.
func (e *OAuthError) Status() int {
	return e.Code.HTTPStatus()
}

// NewOAuthError creates a new OAuth error. Codes outside the closed set are
// reported as server_error so that an unknown code never reaches the wire.
func NewOAuthError(code ErrorCode, description string) *OAuthError {
	if !code.Valid() {
		return &OAuthError{
			Code:        ErrorCodeServerError,
			Description: description,
			cause:       fmt.Errorf("undefined oauth error code %q", string(code)),
		}
	}
	return &OAuthError{
		Code:        code,
		Description: description,
	}
}

// AsOAuthError extracts an *OAuthError from err. Any other non-nil error is
// converted to a generic server_error wrapping it.
func AsOAuthError(err error) *OAuthError {
	if err == nil {
		return nil
	}
	var oauthErr *OAuthError
	if errors.As(err, &oauthErr) {
		return oauthErr
	}
	return ErrServerErrorCause("internal error", err)
}

// Common OAuth errors as reusable instances
var (
	// ErrInvalidRequest indicates the request is malformed or missing required parameters
	ErrInvalidRequest = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeInvalidRequest, desc)
	}

	// ErrUnauthorizedClient indicates the client is not authorized to use this flow
	ErrUnauthorizedClient = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeUnauthorizedClient, desc)
	}

	// ErrAccessDenied indicates the resource owner or server denied the request
	ErrAccessDenied = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeAccessDenied, desc)
	}

	// ErrUnsupportedResponseType indicates the response_type is not supported
	ErrUnsupportedResponseType = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeUnsupportedResponseType, desc)
	}

	// ErrInvalidScope indicates the requested scope is invalid or exceeds what the client may request
	ErrInvalidScope = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeInvalidScope, desc)
	}

	// ErrServerError indicates an internal server error occurred
	ErrServerError = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeServerError, desc)
	}

	// ErrTemporarilyUnavailable indicates the server cannot handle the request right now
	ErrTemporarilyUnavailable = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeTemporarilyUnavailable, desc)
	}

	// ErrInvalidClient indicates client authentication failed
	ErrInvalidClient = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeInvalidClient, desc)
	}

	// ErrInvalidGrant indicates the authorization code or refresh token is invalid or expired
	ErrInvalidGrant = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeInvalidGrant, desc)
	}

	// ErrUnsupportedGrantType indicates the grant type is not supported
	ErrUnsupportedGrantType = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeUnsupportedGrantType, desc)
	}
)

// ErrServerErrorCause returns a server_error whose Unwrap yields cause.
func ErrServerErrorCause(desc string, cause error) *OAuthError {
	e := ErrServerError(desc)
	e.cause = cause
	return e
}
