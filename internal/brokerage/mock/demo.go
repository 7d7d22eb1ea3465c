package mock

import (
	"time"

	"github.com/newthinker/stonks/internal/brokerage"
)

// Demo returns a client preloaded with two accounts of sample holdings.
func Demo(now time.Time) *Client {
	m := New()

	m.AddAccount(
		brokerage.AccountRef{ID: "5QR11234", Type: "individual"},
		brokerage.AccountProfile{Cash: 2450.12, BuyingPower: 4900.24},
		brokerage.PortfolioProfile{Equity: 48210.55, ExtendedHoursEquity: 48302.10, EquityPreviousClose: 47650.00},
	)
	m.AddStock("5QR11234", "AAPL", 40, 142.10, 189.84)
	m.AddStock("5QR11234", "MSFT", 15, 301.55, 415.10)
	m.AddStock("5QR11234", "NVDA", 30, 0, 121.40)
	m.AddStock("5QR11234", "VOO", 25, 380.00, 505.22)
	m.AddOption("5QR11234",
		brokerage.OptionHolding{OptionID: "opt-aapl-200c", ChainSymbol: "AAPL", Side: "long", Quantity: 2, AveragePrice: 310},
		brokerage.OptionMarketData{MarkPrice: 2.45, AdjustedMarkPrice: 2.47, Delta: 0.38},
		brokerage.OptionInstrument{Strike: 200, Expiration: now.AddDate(0, 0, 24), Type: "call"},
	)
	m.AddOption("5QR11234",
		brokerage.OptionHolding{OptionID: "opt-msft-380p", ChainSymbol: "MSFT", Side: "short", Quantity: 1, AveragePrice: 420},
		brokerage.OptionMarketData{MarkPrice: 1.80, Delta: -0.22},
		brokerage.OptionInstrument{Strike: 380, Expiration: now.AddDate(0, 0, 10), Type: "put"},
	)

	m.AddAccount(
		brokerage.AccountRef{ID: "9XY95678", Nickname: "long term", Type: "ira_roth"},
		brokerage.AccountProfile{Cash: 310.00, BuyingPower: 310.00},
		brokerage.PortfolioProfile{Equity: 22140.80, EquityPreviousClose: 22301.15, AdjustedEquityPreviousClose: 22298.40},
	)
	m.AddStock("9XY95678", "SPY", 20, 410.25, 560.10)
	m.AddStock("9XY95678", "JPM", 35, 131.90, 198.45)
	m.AddStock("9XY95678", "XOM", 40, 88.20, 112.30)

	return m
}
