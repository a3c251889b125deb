package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cryptodash/internal/fetcher"
)

// MockGetter is a mock implementation of the fetcher.Getter interface for testing
type MockGetter struct {
	GetJSONFunc func(ctx context.Context, path string, query map[string]string, out any) error
}

// GetJSON implements the fetcher.Getter interface
func (m *MockGetter) GetJSON(ctx context.Context, path string, query map[string]string, out any) error {
	if m.GetJSONFunc != nil {
		return m.GetJSONFunc(ctx, path, query, out)
	}
	return nil
}

// NewJSONGetter creates a mock getter that decodes body for any path
func NewJSONGetter(body string, err error) fetcher.Getter {
	return &MockGetter{
		GetJSONFunc: func(ctx context.Context, path string, query map[string]string, out any) error {
			if err != nil {
				return err
			}
			return json.Unmarshal([]byte(body), out)
		},
	}
}

// Sleeper records requested delays and returns immediately
type Sleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

// Sleep matches fetcher.SleepFunc
func (s *Sleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

// Delays returns a copy of every delay requested so far
func (s *Sleeper) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

// Upstream is a fake CoinGecko API backed by an httptest server.
// Responses can be swapped between requests with the setter methods.
type Upstream struct {
	Server *httptest.Server

	mu           sync.Mutex
	markets      string
	marketStatus int
	details      map[string]string
	detailStatus map[string]int
	charts       map[string]string
	chartStatus  map[string]int
	hits         map[string]int
}

// NewUpstream starts a fake CoinGecko server that is closed with the test
func NewUpstream(t *testing.T) *Upstream {
	t.Helper()

	u := &Upstream{
		markets:      "[]",
		marketStatus: http.StatusOK,
		details:      make(map[string]string),
		detailStatus: make(map[string]int),
		charts:       make(map[string]string),
		chartStatus:  make(map[string]int),
		hits:         make(map[string]int),
	}
	u.Server = httptest.NewServer(http.HandlerFunc(u.serve))
	t.Cleanup(u.Server.Close)

	return u
}

// URL returns the base URL of the fake server
func (u *Upstream) URL() string {
	return u.Server.URL
}

// SetMarkets sets the /coins/markets response
func (u *Upstream) SetMarkets(status int, body string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.marketStatus = status
	u.markets = body
}

// SetDetail sets the /coins/{id} response
func (u *Upstream) SetDetail(id string, status int, body string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.detailStatus[id] = status
	u.details[id] = body
}

// SetChart sets the /coins/{id}/market_chart response
func (u *Upstream) SetChart(id string, status int, body string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.chartStatus[id] = status
	u.charts[id] = body
}

// Hits returns how many requests were made to path
func (u *Upstream) Hits(path string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.hits[path]
}

func (u *Upstream) serve(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	u.hits[r.URL.Path]++

	status, body := http.StatusNotFound, `{"error":"not found"}`
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case len(parts) == 2 && parts[0] == "coins" && parts[1] == "markets":
		status, body = u.marketStatus, u.markets
	case len(parts) == 2 && parts[0] == "coins":
		if s, ok := u.detailStatus[parts[1]]; ok {
			status, body = s, u.details[parts[1]]
		}
	case len(parts) == 3 && parts[0] == "coins" && parts[2] == "market_chart":
		if s, ok := u.chartStatus[parts[1]]; ok {
			status, body = s, u.charts[parts[1]]
		}
	}
	u.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

// MarketsJSON renders a /coins/markets body for the given ids in order
func MarketsJSON(ids ...string) string {
	entries := make([]string, len(ids))
	for i, id := range ids {
		entries[i] = fmt.Sprintf(`{
			"id": %q,
			"symbol": %q,
			"name": %q,
			"current_price": %d.5,
			"market_cap": %d,
			"price_change_percentage_24h": -1.25
		}`, id, strings.ToLower(id[:min(3, len(id))]), strings.ToUpper(id[:1])+id[1:], 1000*(len(ids)-i), 1000000*(len(ids)-i))
	}
	return "[" + strings.Join(entries, ",") + "]"
}

// DetailJSON renders a /coins/{id} body with the given English description
func DetailJSON(id, description string) string {
	return fmt.Sprintf(`{"id": %q, "description": {"en": %q}}`, id, description)
}
