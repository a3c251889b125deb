package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"cryptodash/internal/enrich"
	"cryptodash/internal/market"
)

const (
	// DefaultInterval is how often the market snapshot is refreshed
	DefaultInterval = 30 * time.Second

	noticeBuffer = 16
)

// MarketLoader fetches the ordered top-N asset list
type MarketLoader interface {
	LoadTopMarkets(ctx context.Context, limit int) ([]market.Asset, error)
}

// Enricher fills in asset descriptions
type Enricher interface {
	Enrich(ctx context.Context, assets []market.Asset, progress enrich.ProgressFunc) []market.Asset
}

// Notice is a user-visible report of a failed refresh
type Notice struct {
	Sequence uint64
	Err      error
	At       time.Time
	// Stale is true when older data remained on screen
	Stale bool
}

// Update is sent to listeners whenever a snapshot is published
type Update struct {
	Snapshot market.Snapshot
	// Enriched is true once every description of this cycle has resolved
	Enriched bool
}

// State is what the presentation needs to render the market grid
type State struct {
	Snapshot market.Snapshot
	// Loaded is false until the first successful poll
	Loaded bool
	// Err is the most recent refresh failure, if newer than the snapshot
	Err error
}

// Coordinator runs the polling loop and owns the displayed snapshot.
// Poll cycles may overlap; every cycle is tagged with a sequence number
// at issue time and a result is applied only if no newer cycle has been
// applied already.
type Coordinator struct {
	markets  MarketLoader
	enricher Enricher
	limit    int
	interval time.Duration

	seq atomic.Uint64
	wg  sync.WaitGroup

	mu        sync.RWMutex
	current   market.Snapshot
	applied   uint64
	loaded    bool
	lastErr   error
	listeners []func(Update)

	notices chan Notice
}

// New creates a Coordinator polling the top limit assets every interval
func New(markets MarketLoader, enricher Enricher, limit int, interval time.Duration) *Coordinator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Coordinator{
		markets:  markets,
		enricher: enricher,
		limit:    limit,
		interval: interval,
		notices:  make(chan Notice, noticeBuffer),
	}
}

// Notices delivers one Notice per failed refresh.
// Notices are dropped when nobody drains the channel.
func (c *Coordinator) Notices() <-chan Notice {
	return c.notices
}

// OnUpdate registers a listener for published snapshots.
// Listeners run on poll goroutines and must not block.
func (c *Coordinator) OnUpdate(fn func(Update)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Run polls once immediately and then on every tick until ctx is done.
// A new cycle starts on each tick whether or not earlier cycles finished.
func (c *Coordinator) Run(ctx context.Context) error {
	if c.limit < 1 {
		return fmt.Errorf("invalid markets limit %d", c.limit)
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.startCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			c.wg.Wait()
			return nil
		case <-ticker.C:
			c.startCycle(ctx)
		}
	}
}

// Poll runs a single cycle synchronously
func (c *Coordinator) Poll(ctx context.Context) error {
	return c.poll(ctx, c.seq.Add(1))
}

func (c *Coordinator) startCycle(ctx context.Context) {
	seq := c.seq.Add(1)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		// Failures are reported through notices
		_ = c.poll(ctx, seq)
	}()
}

func (c *Coordinator) poll(ctx context.Context, seq uint64) error {
	slog.Debug("polling markets", "sequence", seq, "limit", c.limit)

	assets, err := c.markets.LoadTopMarkets(ctx, c.limit)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.fail(seq, err)
		return err
	}

	if !c.publishBase(seq, assets) {
		slog.Debug("discarding superseded snapshot", "sequence", seq)
		return nil
	}

	enriched := c.enricher.Enrich(ctx, assets, func(k int, a market.Asset) {
		c.applyDescription(seq, k, a)
	})

	// Descriptions resolved by cancellation are fallbacks, not news
	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.publishEnriched(seq, enriched)

	return nil
}

// publishBase applies a freshly loaded snapshot. Descriptions already on
// screen for the same asset are carried over until enrichment replaces them.
func (c *Coordinator) publishBase(seq uint64, assets []market.Asset) bool {
	c.mu.Lock()
	if seq < c.applied {
		c.mu.Unlock()
		return false
	}

	prev := c.current.Index()
	next := make([]market.Asset, len(assets))
	for i, a := range assets {
		if j, ok := prev[a.ID]; ok {
			a.Description = c.current.Assets[j].Description
		}
		next[i] = a
	}

	c.current = market.Snapshot{Sequence: seq, FetchedAt: time.Now(), Assets: next}
	c.applied = seq
	c.loaded = true
	c.lastErr = nil
	update := Update{Snapshot: c.copySnapshot()}
	listeners := c.listeners
	c.mu.Unlock()

	notify(listeners, update)
	return true
}

// applyDescription updates one asset in place while seq is still displayed
func (c *Coordinator) applyDescription(seq uint64, k int, a market.Asset) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.applied != seq || k >= len(c.current.Assets) || c.current.Assets[k].ID != a.ID {
		return
	}
	c.current.Assets[k].Description = a.Description
}

func (c *Coordinator) publishEnriched(seq uint64, assets []market.Asset) {
	c.mu.Lock()
	if seq < c.applied {
		c.mu.Unlock()
		slog.Debug("discarding superseded enrichment", "sequence", seq)
		return
	}

	c.current = market.Snapshot{Sequence: seq, FetchedAt: c.current.FetchedAt, Assets: assets}
	c.applied = seq
	update := Update{Snapshot: c.copySnapshot(), Enriched: true}
	listeners := c.listeners
	c.mu.Unlock()

	notify(listeners, update)
}

// fail records a refresh failure and emits a notice.
// Data already on screen is left untouched.
func (c *Coordinator) fail(seq uint64, err error) {
	c.mu.Lock()
	superseded := seq < c.applied
	if !superseded {
		c.lastErr = err
	}
	stale := c.loaded
	c.mu.Unlock()

	if superseded {
		slog.Debug("ignoring failure of superseded cycle", "sequence", seq, "error", err.Error())
		return
	}

	if stale {
		slog.Warn("market refresh failed, keeping previous data", "sequence", seq, "error", err.Error())
	} else {
		slog.Error("initial market load failed", "sequence", seq, "error", err.Error())
	}

	select {
	case c.notices <- Notice{Sequence: seq, Err: err, At: time.Now(), Stale: stale}:
	default:
	}
}

// State returns a copy of what is currently displayed
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return State{
		Snapshot: c.copySnapshot(),
		Loaded:   c.loaded,
		Err:      c.lastErr,
	}
}

// Ticker returns the first n assets of the displayed snapshot
func (c *Coordinator) Ticker(n int) []market.Asset {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if n > len(c.current.Assets) {
		n = len(c.current.Assets)
	}
	if n < 0 {
		n = 0
	}
	return append([]market.Asset(nil), c.current.Assets[:n]...)
}

// copySnapshot must be called with mu held
func (c *Coordinator) copySnapshot() market.Snapshot {
	s := c.current
	s.Assets = append([]market.Asset(nil), c.current.Assets...)
	return s
}

func notify(listeners []func(Update), u Update) {
	for _, fn := range listeners {
		fn(u)
	}
}
