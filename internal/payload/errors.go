package payload

import (
	"errors"
	"net/http"
)

// InvalidInputError is a request-level validation failure.
type InvalidInputError struct{ msg string }

func (e *InvalidInputError) Error() string { return e.msg }

// StatusCode maps input errors to 400.
func (e *InvalidInputError) StatusCode() int { return http.StatusBadRequest }

func invalidInput(msg string) error { return &InvalidInputError{msg: msg} }

var (
	// ErrInvalidPayload is returned for bodies that are not an object with "instances".
	ErrInvalidPayload = invalidInput("invalid payload")
	// ErrUnsupportedProtocol is returned for structured v2 inference requests.
	ErrUnsupportedProtocol = invalidInput("v2 protocol not implemented")
)

// IsInvalidInput reports whether err is a request validation error.
func IsInvalidInput(err error) bool {
	var ie *InvalidInputError
	return errors.As(err, &ie)
}
