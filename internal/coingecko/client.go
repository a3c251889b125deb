package coingecko

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"resty.dev/v3"

	"cryptodash/internal/fetcher"
	"cryptodash/internal/market"
)

const (
	// DefaultBaseURL is the public CoinGecko v3 endpoint
	DefaultBaseURL = "https://api.coingecko.com/api/v3"

	apiKeyHeader = "x-cg-demo-api-key"
	vsCurrency   = "usd"
)

// MarketEntry represents one element of the /coins/markets response
type MarketEntry struct {
	ID                       string          `json:"id"`
	Symbol                   string          `json:"symbol"`
	Name                     string          `json:"name"`
	CurrentPrice             decimal.Decimal `json:"current_price"`
	MarketCap                decimal.Decimal `json:"market_cap"`
	PriceChangePercentage24h decimal.Decimal `json:"price_change_percentage_24h"`
}

// CoinDetailResponse represents the parts of /coins/{id} we read.
// Description is keyed by language code.
type CoinDetailResponse struct {
	ID          string            `json:"id"`
	Description map[string]string `json:"description"`
}

// MarketChartResponse represents the /coins/{id}/market_chart response.
// Each price is a [timestampMs, price] pair.
type MarketChartResponse struct {
	Prices [][2]decimal.Decimal `json:"prices"`
}

// NewHTTPClient creates the resty client for the CoinGecko API.
// apiKey is optional; when set it is sent as a demo API key header.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *resty.Client {
	client := fetcher.NewHTTPClient(baseURL, timeout)
	if apiKey != "" {
		client.SetHeader(apiKeyHeader, apiKey)
	}
	return client
}

// Client reads market data from CoinGecko.
// Every call goes through the getter's retry policy.
type Client struct {
	getter fetcher.Getter
}

// New creates a CoinGecko client on top of getter
func New(getter fetcher.Getter) *Client {
	return &Client{getter: getter}
}

// LoadTopMarkets returns the top limit assets ordered by descending market cap
func (c *Client) LoadTopMarkets(ctx context.Context, limit int) ([]market.Asset, error) {
	if limit < 1 {
		return nil, fmt.Errorf("invalid markets limit %d", limit)
	}

	var entries []MarketEntry
	err := c.getter.GetJSON(ctx, "/coins/markets", map[string]string{
		"vs_currency": vsCurrency,
		"order":       "market_cap_desc",
		"per_page":    strconv.Itoa(limit),
		"sparkline":   "false",
	}, &entries)
	if err != nil {
		return nil, fmt.Errorf("failed to load top markets: %w", err)
	}

	assets := make([]market.Asset, 0, len(entries))
	for i, e := range entries {
		// Without an id the asset cannot be enriched or charted
		if e.ID == "" {
			slog.Warn("skipping market row without id",
				"position", i,
				"symbol", e.Symbol,
				"name", e.Name)
			continue
		}
		assets = append(assets, market.Asset{
			ID:        e.ID,
			Name:      e.Name,
			Symbol:    e.Symbol,
			Price:     e.CurrentPrice,
			MarketCap: e.MarketCap,
			Change24h: e.PriceChangePercentage24h,
		})
	}

	return assets, nil
}

// Description fetches the detail record for id and derives its short description.
// A missing English description yields market.MissingDescription, not an error.
func (c *Client) Description(ctx context.Context, id string) (string, error) {
	var detail CoinDetailResponse
	err := c.getter.GetJSON(ctx, "/coins/"+url.PathEscape(id), map[string]string{
		"localization":   "false",
		"tickers":        "false",
		"market_data":    "false",
		"community_data": "false",
		"developer_data": "false",
	}, &detail)
	if err != nil {
		return "", fmt.Errorf("failed to load detail for %s: %w", id, err)
	}

	return ShortDescription(detail.Description["en"]), nil
}

// LoadPriceHistory returns the chronological USD price series of id over days
func (c *Client) LoadPriceHistory(ctx context.Context, id string, days int) ([]market.PricePoint, error) {
	if days < 1 {
		return nil, fmt.Errorf("invalid chart range %d days", days)
	}

	var chart MarketChartResponse
	err := c.getter.GetJSON(ctx, "/coins/"+url.PathEscape(id)+"/market_chart", map[string]string{
		"vs_currency": vsCurrency,
		"days":        strconv.Itoa(days),
	}, &chart)
	if err != nil {
		return nil, fmt.Errorf("failed to load price history for %s: %w", id, err)
	}

	if chart.Prices == nil {
		return nil, fmt.Errorf("prices not found in market chart for %s", id)
	}

	points := make([]market.PricePoint, len(chart.Prices))
	for i, pair := range chart.Prices {
		points[i] = market.PricePoint{
			Timestamp: pair[0].IntPart(),
			Price:     pair[1],
		}
	}

	return points, nil
}

// ShortDescription reduces a long-form description to its first sentence.
// The first sentence ends at the first ". "; a single period is appended.
func ShortDescription(long string) string {
	long = strings.TrimSpace(long)
	if long == "" {
		return market.MissingDescription
	}

	first := long
	if i := strings.Index(long, ". "); i >= 0 {
		first = long[:i]
	}

	return strings.TrimRight(first, ".") + "."
}
