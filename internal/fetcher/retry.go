package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"resty.dev/v3"

	"cryptodash/internal/ratelimit"
)

const (
	// Default retry configuration
	defaultMaxRetries = 3
	defaultBaseDelay  = 1 * time.Second
	defaultMaxDelay   = 30 * time.Second
)

// Policy is the retry budget for a single call site
type Policy struct {
	// MaxRetries is the total number of attempts, not the number of re-tries
	MaxRetries int
	BaseDelay  time.Duration
	// MaxDelay caps a single backoff; zero means uncapped
	MaxDelay time.Duration
}

// DefaultPolicy returns three attempts with 1s, 2s backoff capped at 30s
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: defaultMaxRetries,
		BaseDelay:  defaultBaseDelay,
		MaxDelay:   defaultMaxDelay,
	}
}

// Backoff returns BaseDelay * 2^attempt, capped at MaxDelay
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	// 2^30 seconds is far beyond any sane cap; avoid shifting into overflow
	if attempt > 30 {
		if p.MaxDelay > 0 {
			return p.MaxDelay
		}
		attempt = 30
	}

	backoff := p.BaseDelay * time.Duration(1<<attempt)
	if p.MaxDelay > 0 && backoff > p.MaxDelay {
		return p.MaxDelay
	}
	return backoff
}

func (p Policy) attempts() int {
	if p.MaxRetries < 1 {
		return 1
	}
	return p.MaxRetries
}

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc backed by a timer
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Option configures a RetryingFetcher
type Option func(*RetryingFetcher)

// WithLimiter makes every attempt wait on the limiter for api first
func WithLimiter(l *ratelimit.Limiter, api ratelimit.API) Option {
	return func(f *RetryingFetcher) {
		f.limiter = l
		f.api = api
	}
}

// WithSleep replaces the backoff sleeper, mainly for tests
func WithSleep(sleep SleepFunc) Option {
	return func(f *RetryingFetcher) {
		f.sleep = sleep
	}
}

// WithObserver registers a callback invoked after every attempt
func WithObserver(observe func(Attempt)) Option {
	return func(f *RetryingFetcher) {
		f.observe = observe
	}
}

// RetryingFetcher performs JSON GET requests with bounded retries and
// exponential backoff. HTTP 429 and transient failures are retried alike;
// a body that fails to decode is returned immediately.
type RetryingFetcher struct {
	client  *resty.Client
	policy  Policy
	limiter *ratelimit.Limiter
	api     ratelimit.API
	sleep   SleepFunc
	observe func(Attempt)
}

// NewRetryingFetcher wraps client with the given retry policy
func NewRetryingFetcher(client *resty.Client, policy Policy, opts ...Option) *RetryingFetcher {
	f := &RetryingFetcher{
		client: client,
		policy: policy,
		sleep:  Sleep,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// GetJSON implements Getter
func (f *RetryingFetcher) GetJSON(ctx context.Context, path string, query map[string]string, out any) error {
	attempts := f.policy.attempts()

	var (
		lastErr error
		delay   time.Duration
	)

	for i := 0; i < attempts; i++ {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, f.api); err != nil {
				return err
			}
		}

		err := f.do(ctx, path, query, out)
		if err == nil {
			f.record(Attempt{Path: path, Index: i, Delay: delay, Outcome: OutcomeSuccess})
			return nil
		}

		// Cancellation is the caller's decision, not a failed attempt
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		var fe *FetchError
		if errors.As(err, &fe) && !fe.Retryable {
			f.record(Attempt{Path: path, Index: i, Delay: delay, Outcome: OutcomeFailed, Err: err})
			return err
		}

		lastErr = err
		if i == attempts-1 {
			f.record(Attempt{Path: path, Index: i, Delay: delay, Outcome: OutcomeExhausted, Err: err})
			break
		}

		outcome := OutcomeTransientRetry
		if IsRateLimited(err) {
			outcome = OutcomeRateLimitedRetry
		}
		f.record(Attempt{Path: path, Index: i, Delay: delay, Outcome: outcome, Err: err})

		delay = f.policy.Backoff(i)
		slog.Debug("retrying request",
			"path", path,
			"attempt", i+1,
			"delay", delay,
			"error", err.Error())

		if err := f.sleep(ctx, delay); err != nil {
			return err
		}
	}

	return &ExhaustedError{URL: path, Attempts: attempts, Last: lastErr}
}

// do performs a single attempt
func (f *RetryingFetcher) do(ctx context.Context, path string, query map[string]string, out any) error {
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetResult(out).
		Get(path)
	if err != nil {
		// resty only decodes 2xx bodies, so an error on a success is a bad payload
		if resp != nil && resp.IsSuccess() {
			return NewDecodeError(err)
		}
		return NewNetworkError(err)
	}

	if !resp.IsSuccess() {
		return ClassifyStatus(resp.StatusCode())
	}

	return nil
}

func (f *RetryingFetcher) record(a Attempt) {
	if f.observe != nil {
		f.observe(a)
	}
}
