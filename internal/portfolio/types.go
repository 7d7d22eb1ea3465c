// Package portfolio normalizes brokerage responses into typed positions and
// derives the read-only views served to the presentation layer.
package portfolio

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// SharesPerContract is the standard equity option multiplier.
const SharesPerContract = 100

// OptionType is Call or Put.
type OptionType string

const (
	Call OptionType = "Call"
	Put  OptionType = "Put"
)

// Side is Long or Short.
type Side string

const (
	Long  Side = "Long"
	Short Side = "Short"
)

// Account is one brokerage account's balances at sync time.
type Account struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Cash        float64 `json:"cash"`
	BuyingPower float64 `json:"buying_power"`
	// Equity prefers the extended-hours figure.
	Equity float64 `json:"equity"`
	// EquityPrevClose prefers the adjusted figure.
	EquityPrevClose float64 `json:"equity_prev_close"`
}

// DailyChange returns the dollar and percent change since the previous
// close. Both are zero when the previous close is unknown.
func (a Account) DailyChange() (float64, float64) {
	if a.EquityPrevClose <= 0 {
		return 0, 0
	}
	change := a.Equity - a.EquityPrevClose
	return change, change / a.EquityPrevClose * 100
}

var titleCaser = cases.Title(language.English)

// DisplayName builds the account label: the nickname, or the account type
// with underscores as spaces, title-cased, then "*" and the last four
// characters of the id.
func DisplayName(nickname, accountType, id string) string {
	name := nickname
	if name == "" {
		name = strings.ReplaceAll(accountType, "_", " ")
	}
	suffix := id
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	return titleCaser.String(name) + "*" + suffix
}

// StockPosition is one normalized stock holding.
type StockPosition struct {
	Symbol      string  `json:"symbol"`
	Shares      float64 `json:"shares"`
	Price       float64 `json:"price"`
	AvgBuyPrice float64 `json:"avg_buy_price"`
	CostBasis   float64 `json:"cost_basis"`
	// CostBasisReliable is false when the brokerage cannot report the true
	// basis (transferred or very old lots).
	CostBasisReliable bool    `json:"cost_basis_reliable"`
	MarketValue       float64 `json:"market_value"`
	// UnrealizedPL is nil when the cost basis is unreliable.
	UnrealizedPL *float64 `json:"unrealized_pl"`
}

// NewStockPosition derives the computed fields.
func NewStockPosition(symbol string, shares, price, avgBuyPrice float64) StockPosition {
	p := StockPosition{
		Symbol:      symbol,
		Shares:      shares,
		Price:       price,
		AvgBuyPrice: avgBuyPrice,
		CostBasis:   shares * avgBuyPrice,
		MarketValue: shares * price,
	}
	// Without a quote there is no market value to compare against.
	p.CostBasisReliable = price > 0 && CostBasisReliable(price, avgBuyPrice)
	if p.CostBasisReliable {
		pl := p.MarketValue - p.CostBasis
		p.UnrealizedPL = &pl
	}
	return p
}

// CostBasisReliable reports whether avgBuyPrice is a usable basis. A zero or
// negative average, or one at or below 1% of the current price, is not.
func CostBasisReliable(price, avgBuyPrice float64) bool {
	if avgBuyPrice <= 0 {
		return false
	}
	if price > 0 && avgBuyPrice <= price*0.01 {
		return false
	}
	return true
}

// PLPct returns unrealized P/L as a percent of cost basis.
func (p StockPosition) PLPct() (float64, bool) {
	if p.UnrealizedPL == nil || p.CostBasis <= 0 {
		return 0, false
	}
	return *p.UnrealizedPL / p.CostBasis * 100, true
}

// OptionPosition is one normalized option holding.
type OptionPosition struct {
	OptionID        string     `json:"option_id"`
	Symbol          string     `json:"symbol"`
	Strike          float64    `json:"strike"`
	Type            OptionType `json:"option_type"`
	Side            Side       `json:"side"`
	Contracts       float64    `json:"contracts"`
	Expiration      time.Time  `json:"expiration_date"`
	DTE             int        `json:"dte"`
	Delta           float64    `json:"delta"`
	Mark            float64    `json:"mark"`
	UnderlyingPrice float64    `json:"underlying_price"`
	CostBasis       float64    `json:"cost_basis"`
	CurrentValue    float64    `json:"current_value"`
	PL              float64    `json:"pl"`
	// SignedExposure is negative for short positions.
	SignedExposure float64 `json:"signed_exposure"`
	ITM            bool    `json:"is_itm"`
}

// OptionInput carries the raw figures for NewOptionPosition.
type OptionInput struct {
	OptionID        string
	Symbol          string
	Strike          float64
	Type            OptionType
	Side            Side
	Contracts       float64
	AvgPrice        float64
	Mark            float64
	Delta           float64
	UnderlyingPrice float64
	Expiration      time.Time
}

// NewOptionPosition derives the computed fields as of now.
func NewOptionPosition(in OptionInput, now time.Time) OptionPosition {
	p := OptionPosition{
		OptionID:        in.OptionID,
		Symbol:          in.Symbol,
		Strike:          in.Strike,
		Type:            in.Type,
		Side:            in.Side,
		Contracts:       in.Contracts,
		Expiration:      in.Expiration,
		Delta:           in.Delta,
		Mark:            in.Mark,
		UnderlyingPrice: in.UnderlyingPrice,
		CostBasis:       in.Contracts * in.AvgPrice,
		CurrentValue:    in.Contracts * in.Mark * SharesPerContract,
	}
	p.DTE = DaysToExpiry(in.Expiration, now)
	if p.Side == Short {
		p.PL = p.CostBasis - p.CurrentValue
		p.SignedExposure = -p.CurrentValue
	} else {
		p.PL = p.CurrentValue - p.CostBasis
		p.SignedExposure = p.CurrentValue
	}
	p.ITM = (p.Type == Call && p.UnderlyingPrice > p.Strike) ||
		(p.Type == Put && p.UnderlyingPrice < p.Strike)
	return p
}

// PLPct returns P/L as a percent of cost basis.
func (p OptionPosition) PLPct() (float64, bool) {
	if p.CostBasis <= 0 {
		return 0, false
	}
	return p.PL / p.CostBasis * 100, true
}

// PositionDelta is the share-equivalent delta, negated when short.
func (p OptionPosition) PositionDelta() float64 {
	d := p.Contracts * SharesPerContract * p.Delta
	if p.Side == Short {
		return -d
	}
	return d
}

// DaysToExpiry counts whole days until expiration, floored at zero. A zero
// expiration yields zero.
func DaysToExpiry(expiration, now time.Time) int {
	if expiration.IsZero() {
		return 0
	}
	days := int(expiration.Sub(now).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// AccountResult is the output of processing one account.
type AccountResult struct {
	Account Account
	Stocks  []StockPosition
	Options []OptionPosition
}
