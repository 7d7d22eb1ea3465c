// Package brokerage defines the contract for brokerage integrations.
package brokerage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/newthinker/stonks/internal/core"
)

// Brokerage-specific errors.
var (
	// ErrAccountNotFound indicates the account id is unknown to the brokerage.
	ErrAccountNotFound = errors.New("brokerage: account not found")
	// ErrInstrumentNotFound indicates an instrument or option id could not be resolved.
	ErrInstrumentNotFound = errors.New("brokerage: instrument not found")
)

// RateLimitError is returned when the brokerage throttles a request.
// RetryAfter is the provider's suggested wait, zero when not given.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("brokerage: rate limited, retry in %s: %s", e.RetryAfter, e.Message)
	}
	return "brokerage: rate limited: " + e.Message
}

// Is makes errors.Is(err, core.ErrRateLimited) hold.
func (e *RateLimitError) Is(target error) bool {
	return target == core.ErrRateLimited
}

// IsAuthError reports whether err means the session must be re-established.
func IsAuthError(err error) bool {
	return errors.Is(err, core.ErrAuthExpired)
}

// AccountRef is one entry of the account list.
type AccountRef struct {
	// ID is the opaque account number.
	ID string
	// Nickname is the user-chosen name, often empty.
	Nickname string
	// Type is the brokerage account type, e.g. "individual" or "ira_roth".
	Type string
}

// AccountProfile holds cash balances for an account.
type AccountProfile struct {
	Cash        float64
	BuyingPower float64
}

// PortfolioProfile holds equity figures. Zero means the provider sent none.
type PortfolioProfile struct {
	Equity                      float64
	ExtendedHoursEquity         float64
	EquityPreviousClose         float64
	AdjustedEquityPreviousClose float64
}

// StockHolding is a raw open stock position.
type StockHolding struct {
	// InstrumentURL identifies the instrument; Symbol may be empty until resolved.
	InstrumentURL          string
	Symbol                 string
	Quantity               float64
	AverageBuyPrice        float64
	PendingAverageBuyPrice float64
}

// OptionHolding is a raw open option position.
type OptionHolding struct {
	OptionID    string
	ChainSymbol string
	// Side is "long" or "short".
	Side     string
	Quantity float64
	// AveragePrice is the per-contract cost in dollars.
	AveragePrice float64
}

// OptionMarketData holds live pricing for one option contract.
type OptionMarketData struct {
	MarkPrice         float64
	AdjustedMarkPrice float64
	Delta             float64
}

// OptionInstrument describes one option contract.
type OptionInstrument struct {
	Strike     float64
	Expiration time.Time
	// Type is "call" or "put".
	Type string
}

// Client is the brokerage contract. Implementations return errors matching
// core.ErrAuthExpired when the session is no longer valid and
// *RateLimitError when throttled.
type Client interface {
	ListAccounts(ctx context.Context) ([]AccountRef, error)
	GetAccountProfile(ctx context.Context, accountID string) (*AccountProfile, error)
	GetPortfolioProfile(ctx context.Context, accountID string) (*PortfolioProfile, error)
	GetOpenStockPositions(ctx context.Context, accountID string) ([]StockHolding, error)
	GetOpenOptionPositions(ctx context.Context, accountID string) ([]OptionHolding, error)

	// ResolveSymbol maps an instrument reference to its ticker.
	ResolveSymbol(ctx context.Context, instrumentURL string) (string, error)
	// GetQuotes returns latest prices for all symbols in one call.
	// Symbols without a price are absent from the map.
	GetQuotes(ctx context.Context, symbols []string) (map[string]float64, error)

	GetOptionMarketData(ctx context.Context, optionID string) (*OptionMarketData, error)
	GetOptionInstrumentData(ctx context.Context, optionID string) (*OptionInstrument, error)
}
