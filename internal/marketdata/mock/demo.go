package mock

import (
	"time"

	"github.com/newthinker/stonks/internal/marketdata"
)

type demoSymbol struct {
	symbol    string
	name      string
	quoteType string
	sector    string
	base      float64
	amplitude float64
	volume    int64
}

var demoSymbols = []demoSymbol{
	{"AAPL", "Apple Inc.", "EQUITY", "Technology", 185, 12, 52_000_000},
	{"MSFT", "Microsoft Corporation", "EQUITY", "Technology", 410, 18, 21_000_000},
	{"NVDA", "NVIDIA Corporation", "EQUITY", "Technology", 118, 9, 310_000_000},
	{"JPM", "JPMorgan Chase & Co.", "EQUITY", "Financial Services", 196, 6, 9_000_000},
	{"XOM", "Exxon Mobil Corporation", "EQUITY", "Energy", 112, 4, 15_000_000},
	{"VOO", "Vanguard S&P 500 ETF", "ETF", "", 505, 14, 5_000_000},
	{"SPY", "SPDR S&P 500 ETF Trust", "ETF", "", 560, 15, 60_000_000},
	{"^GSPC", "S&P 500", "INDEX", "", 5600, 140, 3_500_000_000},
	{"^IXIC", "NASDAQ Composite", "INDEX", "", 17800, 500, 5_000_000_000},
	{"^DJI", "Dow Jones Industrial Average", "INDEX", "", 41000, 700, 350_000_000},
	{"^VIX", "CBOE Volatility Index", "INDEX", "", 16, 3, 0},
}

// Demo returns a client preloaded with a year of synthetic history for the
// brokerage demo holdings and the major indices. NVDA's last session gaps
// up on heavy volume.
func Demo(now time.Time) *Client {
	m := New()
	m.SetClock(func() time.Time { return now })
	end := now.Truncate(24 * time.Hour)

	for _, d := range demoSymbols {
		bars := Series(d.symbol, end, 260, d.base, d.amplitude, d.volume)
		if d.symbol == "NVDA" {
			last := &bars[len(bars)-1]
			prev := bars[len(bars)-2].Close
			last.Open = prev * 1.03
			last.Close = prev * 1.05
			last.High = last.Close * 1.005
			last.Low = last.Open
			last.Volume = d.volume * 2
		}
		m.SetHistory(d.symbol, bars)

		low, high := bars[0].Low, bars[0].High
		for _, b := range bars {
			low = min(low, b.Low)
			high = max(high, b.High)
		}
		m.SetInfo(marketdata.Info{
			Symbol:    d.symbol,
			Name:      d.name,
			QuoteType: d.quoteType,
			Sector:    d.sector,
			Price:     bars[len(bars)-1].Close,
			High52:    high,
			Low52:     low,
		})
	}

	m.SetEarnings("AAPL", marketdata.Earnings{Date: end.AddDate(0, 0, 2).Add(21 * time.Hour), Timing: marketdata.TimingAfterClose})
	m.SetEarnings("JPM", marketdata.Earnings{Date: end.AddDate(0, 0, 6).Add(11 * time.Hour), Timing: marketdata.TimingBeforeOpen})
	return m
}
