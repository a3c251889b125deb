package main

import (
	"fmt"
	"io"
	"strings"

	"cryptodash/internal/coordinator"
	"cryptodash/internal/market"
)

// printSnapshot writes the ticker strip followed by one line per card
func printSnapshot(w io.Writer, s market.Snapshot, tickerLimit int) {
	n := min(tickerLimit, len(s.Assets))

	ticker := make([]string, n)
	for i, a := range s.Assets[:n] {
		ticker[i] = fmt.Sprintf("%s $%s %s", strings.ToUpper(a.Symbol), a.Price.StringFixed(2), formatChange(a))
	}
	fmt.Fprintf(w, "[#%d %s] %s\n", s.Sequence, s.FetchedAt.Format("15:04:05"), strings.Join(ticker, " | "))

	for _, a := range s.Assets {
		fmt.Fprintf(w, "%s (%s): $%s cap $%s %s - %s\n",
			a.Name,
			strings.ToUpper(a.Symbol),
			a.Price.StringFixed(2),
			a.MarketCap.StringFixed(0),
			formatChange(a),
			a.Description)
	}
}

// printNotice writes the user-visible message for a failed refresh
func printNotice(w io.Writer, n coordinator.Notice) {
	if n.Stale {
		fmt.Fprintf(w, "NOTICE: refresh #%d failed, showing previous data - %v\n", n.Sequence, n.Err)
		return
	}
	fmt.Fprintf(w, "ERROR: could not load market data - %v\n", n.Err)
}

func formatChange(a market.Asset) string {
	change := a.Change24h.StringFixed(2) + "%"
	if !a.Change24h.IsNegative() {
		change = "+" + change
	}
	return change
}
