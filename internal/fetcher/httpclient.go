package fetcher

import (
	"log/slog"
	"time"

	"resty.dev/v3"
)

const (
	defaultRetryCount       = 3
	defaultRetryWaitTime    = 1 * time.Second
	defaultRetryMaxWaitTime = 10 * time.Second
)

// NewHTTPClient creates the HTTP client used by source fetchers, with retry
// logic and exponential backoff. Retries here cover transient transport
// failures only; once a response reaches the snapshot session there are no
// further retries in this process.
func NewHTTPClient(baseURL string) *resty.Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetRetryCount(defaultRetryCount).
		SetRetryWaitTime(defaultRetryWaitTime).
		SetRetryMaxWaitTime(defaultRetryMaxWaitTime).
		AddRetryConditions(retryCondition).
		AddRetryHooks(retryHook)

	return client
}

// retryCondition retries on network errors, 5xx, 429 and 408.
func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}

	switch {
	case r.StatusCode() >= 500:
		return true
	case r.StatusCode() == 429:
		return true
	case r.StatusCode() == 408:
		return true
	default:
		return false
	}
}

// retryHook logs retry attempts for observability.
func retryHook(r *resty.Response, err error) {
	if err != nil {
		slog.Debug("retrying request due to error",
			"url", r.Request.URL,
			"attempt", r.Request.Attempt,
			"error", err.Error())
		return
	}

	slog.Debug("retrying request due to status code",
		"url", r.Request.URL,
		"attempt", r.Request.Attempt,
		"status_code", r.StatusCode())
}
