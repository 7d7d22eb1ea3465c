// Package robinhood implements brokerage.Client against the Robinhood REST API.
package robinhood

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/newthinker/stonks/internal/brokerage"
	"github.com/newthinker/stonks/internal/core"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.robinhood.com"

// Config holds client settings.
type Config struct {
	BaseURL string
	// Token is the OAuth bearer token of an authenticated session.
	Token   string
	Timeout time.Duration
	// RequestsPerMinute caps outgoing requests; 0 disables throttling.
	RequestsPerMinute int
}

// Client talks to the Robinhood API. It is safe for concurrent use.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

var _ brokerage.Client = (*Client)(nil)

// New creates a client.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}

	return &Client{http: client, limiter: limiter, logger: logger}
}

type page[T any] struct {
	Next    *string `json:"next"`
	Results []T     `json:"results"`
}

type apiError struct {
	Detail string `json:"detail"`
}

// get performs one throttled GET and maps failure statuses.
func (c *Client) get(ctx context.Context, path string, query map[string]string, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var apiErr apiError
	req := c.http.R().
		SetContext(ctx).
		SetResult(result).
		SetError(&apiErr)
	if query != nil {
		req.SetQueryParams(query)
	}

	resp, err := req.Get(path)
	if err != nil {
		return fmt.Errorf("robinhood: GET %s: %w", path, err)
	}

	switch resp.StatusCode() {
	case http.StatusUnauthorized, http.StatusForbidden:
		return core.WrapError(core.ErrAuthExpired,
			fmt.Errorf("robinhood: GET %s: status %d", path, resp.StatusCode()))
	case http.StatusTooManyRequests:
		return &brokerage.RateLimitError{
			RetryAfter: retryAfter(resp.Header().Get("Retry-After"), apiErr.Detail),
			Message:    apiErr.Detail,
		}
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", brokerage.ErrInstrumentNotFound, path)
	}
	if resp.IsError() {
		return fmt.Errorf("robinhood: GET %s: status %d: %s", path, resp.StatusCode(), apiErr.Detail)
	}
	return nil
}

// getAll follows "next" links and concatenates every page.
func getAll[T any](ctx context.Context, c *Client, path string, query map[string]string) ([]T, error) {
	var all []T
	next := path
	for next != "" {
		var p page[T]
		if err := c.get(ctx, next, query, &p); err != nil {
			return nil, err
		}
		all = append(all, p.Results...)
		next = ""
		if p.Next != nil {
			next = *p.Next
			query = nil // the cursor URL carries its own query
		}
	}
	return all, nil
}

var throttleRe = regexp.MustCompile(`available in (\d+) seconds?`)

func retryAfter(header, detail string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if m := throttleRe.FindStringSubmatch(detail); m != nil {
		secs, _ := strconv.Atoi(m[1])
		return time.Duration(secs) * time.Second
	}
	return 0
}

type accountJSON struct {
	AccountNumber        string          `json:"account_number"`
	Nickname             string          `json:"nickname"`
	BrokerageAccountType string          `json:"brokerage_account_type"`
	State                string          `json:"state"`
	Cash                 decimal.Decimal `json:"cash"`
	BuyingPower          decimal.Decimal `json:"buying_power"`
}

// ListAccounts returns all active accounts.
func (c *Client) ListAccounts(ctx context.Context) ([]brokerage.AccountRef, error) {
	accounts, err := getAll[accountJSON](ctx, c, "/accounts/", map[string]string{
		"default_to_all_accounts":     "true",
		"include_managed":             "true",
		"include_multiple_individual": "true",
	})
	if err != nil {
		return nil, err
	}

	refs := make([]brokerage.AccountRef, 0, len(accounts))
	for _, a := range accounts {
		if a.State != "" && a.State != "active" {
			continue
		}
		refs = append(refs, brokerage.AccountRef{
			ID:       a.AccountNumber,
			Nickname: a.Nickname,
			Type:     a.BrokerageAccountType,
		})
	}
	return refs, nil
}

// GetAccountProfile returns cash balances for an account.
func (c *Client) GetAccountProfile(ctx context.Context, accountID string) (*brokerage.AccountProfile, error) {
	var a accountJSON
	if err := c.get(ctx, "/accounts/"+accountID+"/", nil, &a); err != nil {
		return nil, err
	}
	return &brokerage.AccountProfile{
		Cash:        a.Cash.InexactFloat64(),
		BuyingPower: a.BuyingPower.InexactFloat64(),
	}, nil
}

type portfolioJSON struct {
	Equity                      decimal.NullDecimal `json:"equity"`
	ExtendedHoursEquity         decimal.NullDecimal `json:"extended_hours_equity"`
	EquityPreviousClose         decimal.NullDecimal `json:"equity_previous_close"`
	AdjustedEquityPreviousClose decimal.NullDecimal `json:"adjusted_equity_previous_close"`
}

// GetPortfolioProfile returns equity figures for an account.
func (c *Client) GetPortfolioProfile(ctx context.Context, accountID string) (*brokerage.PortfolioProfile, error) {
	var p portfolioJSON
	if err := c.get(ctx, "/portfolios/"+accountID+"/", nil, &p); err != nil {
		return nil, err
	}
	return &brokerage.PortfolioProfile{
		Equity:                      nullFloat(p.Equity),
		ExtendedHoursEquity:         nullFloat(p.ExtendedHoursEquity),
		EquityPreviousClose:         nullFloat(p.EquityPreviousClose),
		AdjustedEquityPreviousClose: nullFloat(p.AdjustedEquityPreviousClose),
	}, nil
}

type positionJSON struct {
	Instrument             string              `json:"instrument"`
	Symbol                 string              `json:"symbol"`
	Quantity               decimal.Decimal     `json:"quantity"`
	AverageBuyPrice        decimal.NullDecimal `json:"average_buy_price"`
	PendingAverageBuyPrice decimal.NullDecimal `json:"pending_average_buy_price"`
}

// GetOpenStockPositions returns positions with non-zero quantity.
func (c *Client) GetOpenStockPositions(ctx context.Context, accountID string) ([]brokerage.StockHolding, error) {
	positions, err := getAll[positionJSON](ctx, c, "/positions/", map[string]string{
		"account_number": accountID,
		"nonzero":        "true",
	})
	if err != nil {
		return nil, err
	}

	out := make([]brokerage.StockHolding, 0, len(positions))
	for _, p := range positions {
		out = append(out, brokerage.StockHolding{
			InstrumentURL:          p.Instrument,
			Symbol:                 p.Symbol,
			Quantity:               p.Quantity.InexactFloat64(),
			AverageBuyPrice:        nullFloat(p.AverageBuyPrice),
			PendingAverageBuyPrice: nullFloat(p.PendingAverageBuyPrice),
		})
	}
	return out, nil
}

type optionPositionJSON struct {
	OptionID     string          `json:"option_id"`
	ChainSymbol  string          `json:"chain_symbol"`
	Type         string          `json:"type"`
	Quantity     decimal.Decimal `json:"quantity"`
	AveragePrice decimal.Decimal `json:"average_price"`
}

// GetOpenOptionPositions returns option positions with non-zero quantity.
func (c *Client) GetOpenOptionPositions(ctx context.Context, accountID string) ([]brokerage.OptionHolding, error) {
	positions, err := getAll[optionPositionJSON](ctx, c, "/options/positions/", map[string]string{
		"account_numbers": accountID,
		"nonzero":         "True",
	})
	if err != nil {
		return nil, err
	}

	out := make([]brokerage.OptionHolding, 0, len(positions))
	for _, p := range positions {
		out = append(out, brokerage.OptionHolding{
			OptionID:     p.OptionID,
			ChainSymbol:  p.ChainSymbol,
			Side:         p.Type,
			Quantity:     p.Quantity.InexactFloat64(),
			AveragePrice: p.AveragePrice.InexactFloat64(),
		})
	}
	return out, nil
}

// ResolveSymbol fetches the instrument document behind instrumentURL.
func (c *Client) ResolveSymbol(ctx context.Context, instrumentURL string) (string, error) {
	var inst struct {
		Symbol string `json:"symbol"`
	}
	if err := c.get(ctx, instrumentURL, nil, &inst); err != nil {
		return "", err
	}
	if inst.Symbol == "" {
		return "", fmt.Errorf("%w: %s", brokerage.ErrInstrumentNotFound, instrumentURL)
	}
	return inst.Symbol, nil
}

type quoteJSON struct {
	Symbol                      string              `json:"symbol"`
	LastTradePrice              decimal.NullDecimal `json:"last_trade_price"`
	LastExtendedHoursTradePrice decimal.NullDecimal `json:"last_extended_hours_trade_price"`
}

// GetQuotes fetches latest prices in a single request. Extended-hours
// prices win when present.
func (c *Client) GetQuotes(ctx context.Context, symbols []string) (map[string]float64, error) {
	prices := make(map[string]float64, len(symbols))
	if len(symbols) == 0 {
		return prices, nil
	}

	var p page[*quoteJSON]
	if err := c.get(ctx, "/marketdata/quotes/", map[string]string{
		"symbols": strings.Join(symbols, ","),
	}, &p); err != nil {
		return nil, err
	}

	for _, q := range p.Results {
		if q == nil {
			continue
		}
		price := nullFloat(q.LastExtendedHoursTradePrice)
		if price == 0 {
			price = nullFloat(q.LastTradePrice)
		}
		if price > 0 {
			prices[q.Symbol] = price
		}
	}
	return prices, nil
}

type optionMarketJSON struct {
	MarkPrice         decimal.NullDecimal `json:"mark_price"`
	AdjustedMarkPrice decimal.NullDecimal `json:"adjusted_mark_price"`
	Delta             decimal.NullDecimal `json:"delta"`
}

// GetOptionMarketData returns mark and greeks for one contract.
func (c *Client) GetOptionMarketData(ctx context.Context, optionID string) (*brokerage.OptionMarketData, error) {
	var m optionMarketJSON
	if err := c.get(ctx, "/marketdata/options/"+optionID+"/", nil, &m); err != nil {
		return nil, err
	}
	return &brokerage.OptionMarketData{
		MarkPrice:         nullFloat(m.MarkPrice),
		AdjustedMarkPrice: nullFloat(m.AdjustedMarkPrice),
		Delta:             nullFloat(m.Delta),
	}, nil
}

type optionInstrumentJSON struct {
	StrikePrice    decimal.Decimal `json:"strike_price"`
	ExpirationDate string          `json:"expiration_date"`
	Type           string          `json:"type"`
}

// GetOptionInstrumentData returns strike, expiry and type for one contract.
func (c *Client) GetOptionInstrumentData(ctx context.Context, optionID string) (*brokerage.OptionInstrument, error) {
	var inst optionInstrumentJSON
	if err := c.get(ctx, "/options/instruments/"+optionID+"/", nil, &inst); err != nil {
		return nil, err
	}
	exp, err := time.Parse(time.DateOnly, inst.ExpirationDate)
	if err != nil {
		return nil, fmt.Errorf("robinhood: option %s expiration %q: %w", optionID, inst.ExpirationDate, err)
	}
	return &brokerage.OptionInstrument{
		Strike:     inst.StrikePrice.InexactFloat64(),
		Expiration: exp,
		Type:       inst.Type,
	}, nil
}

func nullFloat(d decimal.NullDecimal) float64 {
	if !d.Valid {
		return 0
	}
	return d.Decimal.InexactFloat64()
}
