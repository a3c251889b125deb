package fetcher

import (
	"time"

	"resty.dev/v3"
)

const (
	defaultRequestTimeout = 10 * time.Second
)

// NewHTTPClient creates the resty client shared by every upstream call.
// Retries are not configured here: RetryingFetcher owns the retry policy
// so each call site has exactly one retry budget.
func NewHTTPClient(baseURL string, timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)
}
