package chart

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"cryptodash/internal/market"
)

const (
	// DefaultDays is the chart range shown when an asset is selected
	DefaultDays = 7
	// DefaultCacheTTL matches the market polling interval
	DefaultCacheTTL = 30 * time.Second
)

// State is what the presentation should render for a chart
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

// HistoryLoader fetches a price series from the upstream API
type HistoryLoader interface {
	LoadPriceHistory(ctx context.Context, id string, days int) ([]market.PricePoint, error)
}

// View is a point-in-time read of one asset's chart
type View struct {
	ID     string              `json:"id"`
	State  State               `json:"state"`
	Points []market.PricePoint `json:"points,omitempty"`
	Error  string              `json:"error,omitempty"`
}

type entry struct {
	state     State
	points    []market.PricePoint
	err       error
	fetchedAt time.Time
}

// Loader loads price history on demand, one asset at a time.
// Results are cached per asset for the TTL and concurrent loads of the
// same asset share a single upstream request. Failures are not cached.
type Loader struct {
	source HistoryLoader
	days   int
	ttl    time.Duration
	now    func() time.Time

	group   singleflight.Group
	mu      sync.RWMutex
	entries map[string]*entry
}

// New creates a chart loader for the given range and cache lifetime
func New(source HistoryLoader, days int, ttl time.Duration) *Loader {
	if days < 1 {
		days = DefaultDays
	}
	return &Loader{
		source:  source,
		days:    days,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// key is the cache key for an asset's chart
func (l *Loader) key(id string) string {
	return fmt.Sprintf("chart:%s:%d", id, l.days)
}

// Load returns the price series for id, from cache when still fresh.
// A cancelled caller stops waiting but the upstream load still completes
// and is cached for the other callers.
func (l *Loader) Load(ctx context.Context, id string) ([]market.PricePoint, error) {
	if points, ok := l.cached(id); ok {
		return points, nil
	}

	l.markLoading(id)

	// The shared load must not die with whichever caller started it
	shared := context.WithoutCancel(ctx)
	ch := l.group.DoChan(l.key(id), func() (any, error) {
		// A load that finished while we waited for the group counts as cached
		if points, ok := l.cached(id); ok {
			return points, nil
		}

		points, err := l.source.LoadPriceHistory(shared, id, l.days)
		l.store(id, points, err)
		return points, err
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]market.PricePoint), nil
	}
}

// Request starts a background load of id and returns immediately
func (l *Loader) Request(ctx context.Context, id string) {
	if _, ok := l.cached(id); ok {
		return
	}

	l.markLoading(id)
	go func() {
		if _, err := l.Load(ctx, id); err != nil {
			slog.Warn("chart failed to load",
				"asset", id,
				"error", err.Error())
		}
	}()
}

// View returns what should be rendered for id right now
func (l *Loader) View(id string) View {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.entries[id]
	if !ok {
		return View{ID: id, State: StateIdle}
	}

	v := View{ID: id, State: e.state, Points: e.points}
	if e.state == StateFailed && e.err != nil {
		v.Error = e.err.Error()
	}
	return v
}

func (l *Loader) cached(id string) ([]market.PricePoint, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.entries[id]
	if !ok || e.state != StateReady {
		return nil, false
	}
	if l.ttl > 0 && l.now().Sub(e.fetchedAt) >= l.ttl {
		return nil, false
	}
	return e.points, true
}

// markLoading flags id as loading unless stale points are still available to show
func (l *Loader) markLoading(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[id]
	if ok && e.state == StateReady {
		return
	}
	l.entries[id] = &entry{state: StateLoading}
}

func (l *Loader) store(id string, points []market.PricePoint, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err != nil {
		l.entries[id] = &entry{state: StateFailed, err: err}
		return
	}
	l.entries[id] = &entry{
		state:     StateReady,
		points:    points,
		fetchedAt: l.now(),
	}
}
