package model

import (
	"errors"
	"net/http"
)

// notReadyError signals that the pipeline has not finished loading (503).
type notReadyError struct{}

func (notReadyError) Error() string { return "model is not ready" }

func (notReadyError) StatusCode() int { return http.StatusServiceUnavailable }

// ErrNotReady is returned by Predict before Load succeeds.
var ErrNotReady error = notReadyError{}

// IsNotReady reports whether err is ErrNotReady.
func IsNotReady(err error) bool {
	return errors.Is(err, ErrNotReady)
}

// MissingPromptError is returned when the first instance has no string "prompt".
type MissingPromptError struct{}

func (*MissingPromptError) Error() string { return `instance is missing a string "prompt"` }

func (*MissingPromptError) StatusCode() int { return http.StatusBadRequest }
