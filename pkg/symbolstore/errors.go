package symbolstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
)

// FetchError reports a transport failure or an unexpected HTTP status while
// fetching an artifact.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected HTTP status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports whether the same request may succeed later.
func (e *FetchError) Retryable() bool {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	case e.StatusCode != 0:
		return false
	}
	if errors.Is(e.Err, ErrBodyTooLarge) || errors.Is(e.Err, context.Canceled) {
		return false
	}
	return true
}

// ErrBodyTooLarge is wrapped by FetchError when a response exceeds the
// configured size limit.
var ErrBodyTooLarge = errors.New("response body too large")

// ForbiddenDestinationError is returned when a fetch would reach a destination
// that the configuration does not allow.
type ForbiddenDestinationError struct {
	URL  string
	Addr string
}

func (e *ForbiddenDestinationError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("forbidden destination %s (%s)", e.URL, e.Addr)
	}
	return fmt.Sprintf("forbidden destination %s", e.URL)
}

// ParseError is returned when fetched content could not be parsed.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a failure that may go away on its own.
// Policy and parse failures are not retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var forbidden *ForbiddenDestinationError
	if errors.As(err, &forbidden) {
		return false
	}
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return false
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Retryable()
	}
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return true
	}
	return !errors.Is(err, context.Canceled)
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
