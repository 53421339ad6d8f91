package storage

import "errors"

// ErrNotFound is wrapped by every entity-specific not-found error.
var ErrNotFound = errors.New("not found")

// Entity-specific not-found errors. Match with errors.Is.
var (
	ErrClientNotFound        = notFound("client not found")
	ErrAuthCodeNotFound      = notFound("authorization code not found")
	ErrAccessTokenNotFound   = notFound("access token not found")
	ErrRefreshTokenNotFound  = notFound("refresh token not found")
	ErrAuthorizationNotFound = notFound("user authorization not found")
)

// ErrAlreadyExists is returned when saving a record whose key is taken.
var ErrAlreadyExists = errors.New("already exists")

type notFoundError struct{ msg string }

func notFound(msg string) error { return &notFoundError{msg: msg} }

func (e *notFoundError) Error() string { return e.msg }

func (e *notFoundError) Unwrap() error { return ErrNotFound }

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
