package market

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// FallbackDescription is shown when the detail request for an asset failed
	FallbackDescription = "Description temporarily unavailable."
	// MissingDescription is shown when the upstream has no English description
	MissingDescription = "No description available."
)

// Asset is one row of a market snapshot.
// Every field except Description is fixed once the snapshot is published.
type Asset struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Symbol      string          `json:"symbol"`
	Price       decimal.Decimal `json:"current_price"`
	MarketCap   decimal.Decimal `json:"market_cap"`
	Change24h   decimal.Decimal `json:"price_change_percentage_24h"`
	Description string          `json:"description,omitempty"`
}

// HasDescription reports whether enrichment has resolved for this asset
func (a Asset) HasDescription() bool {
	return a.Description != ""
}

// PricePoint is a single sample of a historical price series
type PricePoint struct {
	// Timestamp is in epoch milliseconds
	Timestamp int64           `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
}

// Time converts the epoch-millisecond timestamp to a time.Time
func (p PricePoint) Time() time.Time {
	return time.UnixMilli(p.Timestamp)
}

// Snapshot is one polling cycle's ordered set of assets
type Snapshot struct {
	Sequence  uint64    `json:"sequence"`
	FetchedAt time.Time `json:"fetched_at"`
	Assets    []Asset   `json:"assets"`
}

// Index returns a lookup of asset position by id
func (s Snapshot) Index() map[string]int {
	idx := make(map[string]int, len(s.Assets))
	for i, a := range s.Assets {
		idx[a.ID] = i
	}
	return idx
}
