package riot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// API error types
var (
	ErrNotFound     = errors.New("riot: resource not found (404)")
	ErrUnauthorized = errors.New("riot: api key rejected (401/403)")
	ErrRateLimited  = errors.New("riot: rate limited (429)")
	ErrUnavailable  = errors.New("riot: service unavailable (5xx)")
	ErrBadRequest   = errors.New("riot: bad request (400)")
)

// APIError carries the HTTP status and endpoint of a failed Riot call.
type APIError struct {
	StatusCode int
	Endpoint   string
	Err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status %d: %v", e.Endpoint, e.StatusCode, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Transient reports whether the status is worth retrying (429 or 5xx).
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// WrapHTTPError maps an HTTP status code onto the matching sentinel.
func WrapHTTPError(statusCode int, endpoint string) error {
	var sentinel error
	switch {
	case statusCode == http.StatusNotFound:
		sentinel = ErrNotFound
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		sentinel = ErrUnauthorized
	case statusCode == http.StatusTooManyRequests:
		sentinel = ErrRateLimited
	case statusCode >= 500:
		sentinel = ErrUnavailable
	case statusCode == http.StatusBadRequest:
		sentinel = ErrBadRequest
	default:
		sentinel = fmt.Errorf("unexpected status %d", statusCode)
	}
	return &APIError{StatusCode: statusCode, Endpoint: endpoint, Err: sentinel}
}

// IsAPIKeyError checks if an error indicates the API key was rejected (401 or 403)
func IsAPIKeyError(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsPermanent reports errors that retrying cannot fix: not-found, rejected
// credentials and malformed requests.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrBadRequest)
}

// IsTransient reports errors worth retrying: rate limiting, upstream
// outages and network failures. Context cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable) {
		return true
	}
	// Anything else came from the transport layer
	return !IsPermanent(err)
}
