package enrich

import (
	"context"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/pool"

	"cryptodash/internal/fetcher"
	"cryptodash/internal/market"
)

const (
	// DefaultStagger spaces detail requests to stay under the upstream per-minute limit
	DefaultStagger = 1 * time.Second
)

// Describer resolves the short description of a single asset
type Describer interface {
	Description(ctx context.Context, id string) (string, error)
}

// ProgressFunc receives each asset as soon as its description resolves.
// It is called from worker goroutines and may run concurrently.
type ProgressFunc func(index int, asset market.Asset)

// Enricher attaches descriptions to a snapshot's assets.
// All requests run concurrently; the asset at position k waits k*stagger
// before its request starts.
type Enricher struct {
	describer Describer
	stagger   time.Duration
	sleep     fetcher.SleepFunc
}

// New creates an enricher. A non-positive stagger disables staggering.
func New(describer Describer, stagger time.Duration) *Enricher {
	return &Enricher{
		describer: describer,
		stagger:   stagger,
		sleep:     fetcher.Sleep,
	}
}

// WithSleep replaces the stagger sleeper, mainly for tests
func (e *Enricher) WithSleep(sleep fetcher.SleepFunc) *Enricher {
	e.sleep = sleep
	return e
}

// Enrich returns a copy of assets, in the same order, with every description set.
// A failed asset gets market.FallbackDescription; the batch never fails.
func (e *Enricher) Enrich(ctx context.Context, assets []market.Asset, progress ProgressFunc) []market.Asset {
	out := make([]market.Asset, len(assets))
	copy(out, assets)

	if len(out) == 0 {
		return out
	}

	p := pool.New().WithMaxGoroutines(len(out))
	for k := range out {
		k := k
		p.Go(func() {
			out[k].Description = e.describe(ctx, k, out[k].ID)
			if progress != nil {
				progress(k, out[k])
			}
		})
	}
	p.Wait()

	return out
}

// describe waits for position k's stagger slot and fetches one description
func (e *Enricher) describe(ctx context.Context, k int, id string) string {
	if err := e.sleep(ctx, time.Duration(k)*e.stagger); err != nil {
		return market.FallbackDescription
	}

	desc, err := e.describer.Description(ctx, id)
	if err != nil {
		slog.Warn("description unavailable",
			"asset", id,
			"error", err.Error())
		return market.FallbackDescription
	}

	if desc == "" {
		return market.MissingDescription
	}
	return desc
}
