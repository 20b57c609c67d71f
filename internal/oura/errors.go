package oura

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrInvalidWindow is wrapped by fetch errors caused by a bad date range.
var ErrInvalidWindow = errors.New("invalid date window")

// EndpointFetchError reports a failed collection request: a transport error,
// a non-2xx status, or a body that is not the expected JSON shape.
type EndpointFetchError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *EndpointFetchError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err == nil:
		return fmt.Sprintf("fetch %s: status %d: %s", e.Endpoint, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: status %d: %v", e.Endpoint, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %v", e.Endpoint, e.Err)
	}
}

func (e *EndpointFetchError) Unwrap() error { return e.Err }

// Transient reports whether repeating the request could succeed.
func (e *EndpointFetchError) Transient() bool {
	if e.Err != nil && (errors.Is(e.Err, context.Canceled) || errors.Is(e.Err, context.DeadlineExceeded) || errors.Is(e.Err, ErrInvalidWindow)) {
		return false
	}
	if e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError {
		return true
	}
	return e.StatusCode == 0 && e.Err != nil
}

// IsTransient reports whether err wraps a transient EndpointFetchError.
func IsTransient(err error) bool {
	var fetchErr *EndpointFetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Transient()
	}
	return false
}
