package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// recordingSleeper returns immediately and remembers every requested delay
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleeper) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

// sequenceServer answers each request with the next status in statuses,
// repeating the last one once the list is exhausted
func sequenceServer(t *testing.T, statuses []int, body string) (*httptest.Server, *int32) {
	t.Helper()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&calls, 1)) - 1
		if n >= len(statuses) {
			n = len(statuses) - 1
		}

		status := statuses[n]
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status == http.StatusOK {
			w.Write([]byte(body))
		}
	}))
	t.Cleanup(server.Close)

	return server, &calls
}

func newTestFetcher(baseURL string, sleeper *recordingSleeper, attempts *[]Attempt) *RetryingFetcher {
	var mu sync.Mutex
	return NewRetryingFetcher(
		NewHTTPClient(baseURL, time.Second),
		DefaultPolicy(),
		WithSleep(sleeper.Sleep),
		WithObserver(func(a Attempt) {
			mu.Lock()
			defer mu.Unlock()
			*attempts = append(*attempts, a)
		}),
	)
}

func TestPolicy_Backoff(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		attempt int
		want    time.Duration
	}{
		{"first retry", DefaultPolicy(), 0, 1 * time.Second},
		{"second retry", DefaultPolicy(), 1, 2 * time.Second},
		{"third retry", DefaultPolicy(), 2, 4 * time.Second},
		{"capped", DefaultPolicy(), 5, 30 * time.Second},
		{"negative attempt", DefaultPolicy(), -1, 1 * time.Second},
		{"huge attempt capped", DefaultPolicy(), 64, 30 * time.Second},
		{"uncapped", Policy{MaxRetries: 3, BaseDelay: time.Second}, 6, 64 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Backoff(tt.attempt); got != tt.want {
				t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestGetJSON_SuccessFirstAttempt(t *testing.T) {
	server, calls := sequenceServer(t, []int{http.StatusOK}, `{"value": 42}`)
	sleeper := &recordingSleeper{}
	var attempts []Attempt
	f := newTestFetcher(server.URL, sleeper, &attempts)

	var out struct {
		Value int `json:"value"`
	}
	if err := f.GetJSON(context.Background(), "/thing", nil, &out); err != nil {
		t.Fatalf("GetJSON() returned unexpected error: %v", err)
	}

	if out.Value != 42 {
		t.Errorf("Value = %d, want 42", out.Value)
	}
	if got := atomic.LoadInt32(calls); got != 1 {
		t.Errorf("server saw %d requests, want 1", got)
	}
	if len(sleeper.Delays()) != 0 {
		t.Errorf("slept %v, want no sleeps", sleeper.Delays())
	}
	if len(attempts) != 1 || attempts[0].Outcome != OutcomeSuccess {
		t.Errorf("attempts = %+v, want a single success", attempts)
	}
}

func TestGetJSON_RateLimitedThenSuccess(t *testing.T) {
	server, calls := sequenceServer(t,
		[]int{http.StatusTooManyRequests, http.StatusTooManyRequests, http.StatusOK},
		`{"value": 7}`)
	sleeper := &recordingSleeper{}
	var attempts []Attempt
	f := newTestFetcher(server.URL, sleeper, &attempts)

	var out struct {
		Value int `json:"value"`
	}
	if err := f.GetJSON(context.Background(), "/thing", nil, &out); err != nil {
		t.Fatalf("GetJSON() returned unexpected error: %v", err)
	}

	if out.Value != 7 {
		t.Errorf("Value = %d, want 7", out.Value)
	}
	if got := atomic.LoadInt32(calls); got != 3 {
		t.Errorf("server saw %d requests, want 3", got)
	}

	want := []time.Duration{1 * time.Second, 2 * time.Second}
	got := sleeper.Delays()
	if len(got) != len(want) {
		t.Fatalf("slept %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sleep[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	wantOutcomes := []Outcome{OutcomeRateLimitedRetry, OutcomeRateLimitedRetry, OutcomeSuccess}
	if len(attempts) != len(wantOutcomes) {
		t.Fatalf("recorded %d attempts, want %d", len(attempts), len(wantOutcomes))
	}
	for i, a := range attempts {
		if a.Index != i {
			t.Errorf("attempt[%d].Index = %d", i, a.Index)
		}
		if a.Outcome != wantOutcomes[i] {
			t.Errorf("attempt[%d].Outcome = %s, want %s", i, a.Outcome, wantOutcomes[i])
		}
	}
	if attempts[2].Delay != 2*time.Second {
		t.Errorf("attempt[2].Delay = %v, want 2s", attempts[2].Delay)
	}
}

func TestGetJSON_ExhaustedAfterMaxRetries(t *testing.T) {
	tests := []struct {
		name     string
		statuses []int
	}{
		{"server errors", []int{http.StatusInternalServerError}},
		{"client errors", []int{http.StatusNotFound}},
		{"rate limited", []int{http.StatusTooManyRequests}},
		{"mixed", []int{http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, calls := sequenceServer(t, tt.statuses, "")
			sleeper := &recordingSleeper{}
			var attempts []Attempt
			f := newTestFetcher(server.URL, sleeper, &attempts)

			var out map[string]any
			err := f.GetJSON(context.Background(), "/thing", nil, &out)
			if err == nil {
				t.Fatal("GetJSON() expected error, got nil")
			}

			if !errors.Is(err, ErrFetchExhausted) {
				t.Errorf("error %v does not match ErrFetchExhausted", err)
			}

			var exhausted *ExhaustedError
			if !errors.As(err, &exhausted) {
				t.Fatalf("error %T is not *ExhaustedError", err)
			}
			if exhausted.Attempts != 3 {
				t.Errorf("Attempts = %d, want 3", exhausted.Attempts)
			}

			if got := atomic.LoadInt32(calls); got != 3 {
				t.Errorf("server saw %d requests, want 3 (no 4th attempt)", got)
			}

			// No wait follows the final attempt
			if got := len(sleeper.Delays()); got != 2 {
				t.Errorf("slept %d times, want 2", got)
			}

			last := attempts[len(attempts)-1]
			if last.Outcome != OutcomeExhausted {
				t.Errorf("last outcome = %s, want %s", last.Outcome, OutcomeExhausted)
			}
		})
	}
}

func TestGetJSON_NetworkErrorIsRetried(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	sleeper := &recordingSleeper{}
	var attempts []Attempt
	f := newTestFetcher(url, sleeper, &attempts)

	var out map[string]any
	err := f.GetJSON(context.Background(), "/thing", nil, &out)
	if !errors.Is(err, ErrFetchExhausted) {
		t.Fatalf("GetJSON() error = %v, want ErrFetchExhausted", err)
	}

	var fe *FetchError
	if !errors.As(err, &fe) || fe.Type != ErrorTypeTransient {
		t.Errorf("last error = %v, want transient FetchError", err)
	}
	if len(attempts) != 3 {
		t.Errorf("recorded %d attempts, want 3", len(attempts))
	}
}

func TestGetJSON_DecodeErrorNotRetried(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed body", `not json`},
		{"truncated object", `{"value": 4`},
		{"wrong field type", `{"value": "forty-two"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, calls := sequenceServer(t, []int{http.StatusOK}, tt.body)
			sleeper := &recordingSleeper{}
			var attempts []Attempt
			f := newTestFetcher(server.URL, sleeper, &attempts)

			var out struct {
				Value int `json:"value"`
			}
			err := f.GetJSON(context.Background(), "/thing", nil, &out)
			if err == nil {
				t.Fatal("GetJSON() expected error, got nil")
			}

			if errors.Is(err, ErrFetchExhausted) {
				t.Error("decode error should not be reported as exhausted")
			}

			var fe *FetchError
			if !errors.As(err, &fe) || fe.Type != ErrorTypeDecode {
				t.Errorf("error = %v, want decode FetchError", err)
			}
			if got := atomic.LoadInt32(calls); got != 1 {
				t.Errorf("server saw %d requests, want 1", got)
			}
			if len(sleeper.Delays()) != 0 {
				t.Errorf("slept %v, want no sleeps", sleeper.Delays())
			}
			if len(attempts) != 1 || attempts[0].Outcome != OutcomeFailed {
				t.Errorf("attempts = %+v, want a single failed attempt", attempts)
			}
		})
	}
}

func TestGetJSON_ContextCancelledDuringBackoff(t *testing.T) {
	server, calls := sequenceServer(t, []int{http.StatusServiceUnavailable}, "")

	ctx, cancel := context.WithCancel(context.Background())
	f := NewRetryingFetcher(
		NewHTTPClient(server.URL, time.Second),
		DefaultPolicy(),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		}),
	)

	var out map[string]any
	err := f.GetJSON(ctx, "/thing", nil, &out)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("GetJSON() error = %v, want context.Canceled", err)
	}
	if got := atomic.LoadInt32(calls); got != 1 {
		t.Errorf("server saw %d requests, want 1", got)
	}
}

func TestGetJSON_QueryParams(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("vs_currency")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	f := NewRetryingFetcher(NewHTTPClient(server.URL, time.Second), DefaultPolicy())

	var out map[string]any
	if err := f.GetJSON(context.Background(), "/coins/markets", map[string]string{"vs_currency": "usd"}, &out); err != nil {
		t.Fatalf("GetJSON() returned unexpected error: %v", err)
	}
	if gotQuery != "usd" {
		t.Errorf("vs_currency = %q, want %q", gotQuery, "usd")
	}
}

func TestSleep_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Sleep() error = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep() did not return promptly on cancellation")
	}
}
