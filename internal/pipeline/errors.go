package pipeline

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoImages is returned when the pipeline produced no image.
var ErrNoImages = errors.New("pipeline returned no images")

// LoadError records which load stage failed.
type LoadError struct {
	Stage string
	Err   error
}

func (e *LoadError) Error() string { return "load " + e.Stage + ": " + e.Err.Error() }

func (e *LoadError) Unwrap() error { return e.Err }

// RuntimeError is a non-success answer from a worker.
type RuntimeError struct {
	Op     string
	Status int
	Body   string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime %s: %d %s: %s", e.Op, e.Status, http.StatusText(e.Status), e.Body)
}

// dependencyUnavailableError signals the worker could not be reached
// so the HTTP layer can return 503 Service Unavailable instead of 500.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

func (e dependencyUnavailableError) StatusCode() int { return http.StatusServiceUnavailable }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates an unreachable worker.
func IsDependencyUnavailable(err error) bool {
	var de dependencyUnavailableError
	return errors.As(err, &de)
}
