package fetcher

import "time"

// Outcome is the terminal state of a single fetch attempt
type Outcome string

const (
	// OutcomeSuccess means the attempt returned a decoded 2xx payload
	OutcomeSuccess Outcome = "success"
	// OutcomeRateLimitedRetry means the attempt got HTTP 429 and another attempt follows
	OutcomeRateLimitedRetry Outcome = "rate_limited_retry"
	// OutcomeTransientRetry means the attempt failed for another reason and another attempt follows
	OutcomeTransientRetry Outcome = "transient_error_retry"
	// OutcomeExhausted means the attempt failed and no attempts remain
	OutcomeExhausted Outcome = "exhausted_failure"
	// OutcomeFailed means the attempt failed with an error that is never retried
	OutcomeFailed Outcome = "failed"
)

// Attempt describes one try made by a RetryingFetcher.
// Attempts are reported to an optional observer and never stored.
type Attempt struct {
	// Path is the request path relative to the client's base URL
	Path string

	// Index is zero-based
	Index int

	// Delay is how long the fetcher waited before starting this attempt
	Delay time.Duration

	Outcome Outcome

	// Err is nil for OutcomeSuccess
	Err error
}
