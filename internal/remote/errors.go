package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// TimeoutError indicates the call exceeded the client timeout or its
// context deadline.
type TimeoutError struct {
	Cause error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out: %v", e.Cause)
}

func (e *TimeoutError) Unwrap() error { return e.Cause }

// NetworkError indicates the call failed before an HTTP status was
// received (connection refused, DNS failure, reset).
type NetworkError struct {
	Cause error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("request failed: %v", e.Cause)
}

func (e *NetworkError) Unwrap() error { return e.Cause }

// HTTPError represents a non-2xx HTTP response.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// IsTimeout returns true for timeout failures.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsOverload returns true for 503 and 504 responses, the remote
// service's overload signals.
func IsOverload(err error) bool {
	var he *HTTPError
	if !errors.As(err, &he) {
		return false
	}
	return he.StatusCode == 503 || he.StatusCode == 504
}

// StatusCode returns the HTTP status code, or 0 if err is not an HTTPError.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
