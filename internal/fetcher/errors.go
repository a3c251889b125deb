package fetcher

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of error that occurred during a fetch attempt
type ErrorType string

const (
	// ErrorTypeRateLimit indicates the request was rejected due to rate limiting (HTTP 429)
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeTransient indicates any other non-2xx status or a network-level failure
	ErrorTypeTransient ErrorType = "transient"
	// ErrorTypeDecode indicates a 2xx response whose body was not the expected JSON
	ErrorTypeDecode ErrorType = "decode"
)

// ErrFetchExhausted is matched by errors.Is for every *ExhaustedError
var ErrFetchExhausted = errors.New("fetch retries exhausted")

// FetchError represents a structured error from a single fetch attempt
type FetchError struct {
	Type       ErrorType
	Retryable  bool
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface
func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Type, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *FetchError) Unwrap() error {
	return e.Cause
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError() *FetchError {
	return &FetchError{
		Type:       ErrorTypeRateLimit,
		Retryable:  true,
		StatusCode: http.StatusTooManyRequests,
		Message:    "rate limit exceeded",
	}
}

// NewStatusError creates a transient error for a non-2xx status
func NewStatusError(statusCode int) *FetchError {
	return &FetchError{
		Type:       ErrorTypeTransient,
		Retryable:  true,
		StatusCode: statusCode,
		Message:    fmt.Sprintf("unexpected HTTP status %d", statusCode),
	}
}

// NewNetworkError creates a transient error for a failed round trip
func NewNetworkError(cause error) *FetchError {
	return &FetchError{
		Type:      ErrorTypeTransient,
		Retryable: true,
		Message:   "network request failed",
		Cause:     cause,
	}
}

// NewDecodeError creates a non-retryable error for an unparseable body
func NewDecodeError(cause error) *FetchError {
	return &FetchError{
		Type:    ErrorTypeDecode,
		Message: "response body is not valid JSON",
		Cause:   cause,
	}
}

// ClassifyStatus classifies a non-2xx HTTP status code into a FetchError
func ClassifyStatus(statusCode int) *FetchError {
	if statusCode == http.StatusTooManyRequests {
		return NewRateLimitError()
	}
	return NewStatusError(statusCode)
}

// IsRateLimited reports whether err came from an HTTP 429
func IsRateLimited(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Type == ErrorTypeRateLimit
}

// ExhaustedError is returned once every allowed attempt has failed
type ExhaustedError struct {
	URL      string
	Attempts int
	Last     error
}

// Error implements the error interface
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Last)
}

// Unwrap exposes the last attempt's error
func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Is makes errors.Is(err, ErrFetchExhausted) hold
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrFetchExhausted
}
