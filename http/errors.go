// Package http is the shared HTTP plumbing for the pipeline's external
// service adapters.
package http

import (
	"errors"
	"fmt"
)

// Sentinel errors adapters match against with errors.Is.
var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrUnauthorized indicates invalid or missing authentication.
	ErrUnauthorized = errors.New("authentication failed")

	// ErrRateLimited indicates the API rate limit was exceeded after all
	// retries.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrServerError indicates a persistent server-side failure.
	ErrServerError = errors.New("server error")
)

// APIError is an error response from an external API.
type APIError struct {
	Service    string
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (%d) at %s: %s",
		e.Service, e.StatusCode, e.Endpoint, e.Message)
}

// Unwrap maps the status code onto a sentinel so callers can classify
// without inspecting codes themselves.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == 401 || e.StatusCode == 403:
		return ErrUnauthorized
	case e.StatusCode == 404:
		return ErrNotFound
	case e.StatusCode == 429:
		return ErrRateLimited
	case e.StatusCode >= 500:
		return ErrServerError
	default:
		return nil
	}
}

// IsNotFound reports whether the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
