package source

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorType classifies page failures.
type ErrorType string

const (
	ErrTypeRateLimited ErrorType = "rate_limited"
	ErrTypeForbidden   ErrorType = "forbidden"
	ErrTypeNotFound    ErrorType = "not_found"
	ErrTypeUpstream    ErrorType = "upstream_failure"
	ErrTypeNetwork     ErrorType = "network"
	ErrTypeTimeout     ErrorType = "timeout"
	ErrTypeParse       ErrorType = "parse_error"
	ErrTypeUnexpected  ErrorType = "unexpected"
)

// LogLevel determines whether a PageError is logged at WARN or ERROR.
type LogLevel int

const (
	LevelWarn LogLevel = iota
	LevelError
)

// PageError is a classified page request failure.
type PageError struct {
	Type       ErrorType
	Level      LogLevel
	StatusCode int
	URL        string
	Cause      error
}

func (e *PageError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("page %s: HTTP %d for %s", e.Type, e.StatusCode, e.URL)
	}
	return fmt.Sprintf("page %s: %v for %s", e.Type, e.Cause, e.URL)
}

func (e *PageError) Unwrap() error { return e.Cause }

// Transient reports whether the failure is a timeout, reset or throttle.
func (e *PageError) Transient() bool {
	switch e.Type {
	case ErrTypeNetwork, ErrTypeTimeout, ErrTypeRateLimited, ErrTypeUpstream:
		return true
	default:
		return false
	}
}

// IsTransient reports whether err is a transient PageError.
func IsTransient(err error) bool {
	var pe *PageError
	if errors.As(err, &pe) {
		return pe.Transient()
	}
	return false
}

const (
	statusForbidden       = 403
	statusNotFound        = 404
	statusTooManyRequests = 429
	statusServerErrorLow  = 500
	statusServerErrorHigh = 599
)

// ClassifyHTTPStatus creates a PageError from a non-2xx status code.
func ClassifyHTTPStatus(statusCode int, url string) *PageError {
	cause := fmt.Errorf("HTTP %d", statusCode)

	switch {
	case statusCode == statusTooManyRequests:
		return &PageError{Type: ErrTypeRateLimited, Level: LevelWarn, StatusCode: statusCode, URL: url, Cause: cause}
	case statusCode == statusForbidden:
		return &PageError{Type: ErrTypeForbidden, Level: LevelWarn, StatusCode: statusCode, URL: url, Cause: cause}
	case statusCode == statusNotFound:
		return &PageError{Type: ErrTypeNotFound, Level: LevelWarn, StatusCode: statusCode, URL: url, Cause: cause}
	case statusCode >= statusServerErrorLow && statusCode <= statusServerErrorHigh:
		return &PageError{Type: ErrTypeUpstream, Level: LevelWarn, StatusCode: statusCode, URL: url, Cause: cause}
	default:
		return &PageError{Type: ErrTypeUnexpected, Level: LevelError, StatusCode: statusCode, URL: url, Cause: cause}
	}
}

// ClassifyNetworkError creates a PageError for transport failures such as
// resets and refused connections. Deadline failures are typed as timeouts.
func ClassifyNetworkError(cause error, url string) *PageError {
	var netErr net.Error
	if errors.Is(cause, context.DeadlineExceeded) || (errors.As(cause, &netErr) && netErr.Timeout()) {
		return &PageError{Type: ErrTypeTimeout, Level: LevelWarn, URL: url, Cause: cause}
	}
	return &PageError{Type: ErrTypeNetwork, Level: LevelWarn, URL: url, Cause: cause}
}

// ClassifyParseError creates a PageError for payloads that cannot be decoded.
func ClassifyParseError(cause error, url string) *PageError {
	return &PageError{Type: ErrTypeParse, Level: LevelError, URL: url, Cause: cause}
}

// ExtractionError reports one record that could not be turned into a Question.
type ExtractionError struct {
	Index int
	Field string
	Cause error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("record %d: invalid %s: %v", e.Index, e.Field, e.Cause)
}

func (e *ExtractionError) Unwrap() error { return e.Cause }
