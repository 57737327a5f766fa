package fetcher

import (
	"fmt"
)

// ErrorType categorizes a failed fetch. The cache core never inspects these;
// they exist so batch tooling can separate retryable failures (network,
// rate limit, server) from permanent ones when deciding what to re-run.
type ErrorType string

const (
	// ErrorTypeNetwork indicates a network-level failure (DNS, connection
	// refused, TLS).
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeRateLimit indicates the source rejected the request with
	// HTTP 429.
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeServer indicates an HTTP 5xx from the source.
	ErrorTypeServer ErrorType = "server"
	// ErrorTypeClient indicates an HTTP 4xx other than 429, e.g. an unknown
	// ISIN producing a 404 profile page.
	ErrorTypeClient ErrorType = "client"
	// ErrorTypeTimeout indicates the request exceeded its deadline.
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeUnknown covers everything else.
	ErrorTypeUnknown ErrorType = "unknown"
)

// FetchError is a structured error from a fetch collaborator.
type FetchError struct {
	Type       ErrorType
	Retryable  bool
	StatusCode int
	Message    string
	Cause      error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Type, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// NewNetworkError wraps a transport-level failure.
func NewNetworkError(cause error) *FetchError {
	return &FetchError{
		Type:      ErrorTypeNetwork,
		Retryable: true,
		Message:   "network request failed",
		Cause:     cause,
	}
}

// NewTimeoutError wraps a deadline failure.
func NewTimeoutError(cause error) *FetchError {
	return &FetchError{
		Type:      ErrorTypeTimeout,
		Retryable: true,
		Message:   "request timed out",
		Cause:     cause,
	}
}

// ClassifyHTTPError maps a non-success HTTP status onto a FetchError.
func ClassifyHTTPError(statusCode int) *FetchError {
	switch {
	case statusCode == 429:
		return &FetchError{
			Type:       ErrorTypeRateLimit,
			Retryable:  true,
			StatusCode: statusCode,
			Message:    "rate limit exceeded",
		}
	case statusCode >= 500:
		return &FetchError{
			Type:       ErrorTypeServer,
			Retryable:  true,
			StatusCode: statusCode,
			Message:    "server returned an error",
		}
	case statusCode >= 400:
		return &FetchError{
			Type:       ErrorTypeClient,
			Retryable:  false,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("client error: HTTP %d", statusCode),
		}
	default:
		return &FetchError{
			Type:       ErrorTypeUnknown,
			Retryable:  false,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("unexpected status code: %d", statusCode),
		}
	}
}
