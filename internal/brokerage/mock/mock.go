// Package mock provides an in-memory brokerage.Client for tests and demos.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/newthinker/stonks/internal/brokerage"
)

type account struct {
	ref       brokerage.AccountRef
	profile   brokerage.AccountProfile
	portfolio brokerage.PortfolioProfile
	stocks    []brokerage.StockHolding
	options   []brokerage.OptionHolding
	err       error
}

// Client implements brokerage.Client from fixture data.
type Client struct {
	mu sync.RWMutex

	accounts  []*account
	byID      map[string]*account
	symbols   map[string]string
	quotes    map[string]float64
	optMarket map[string]brokerage.OptionMarketData
	optInst   map[string]brokerage.OptionInstrument
	listErr   error
	quoteErr  error
	delay     time.Duration
	calls     map[string]int
}

var _ brokerage.Client = (*Client)(nil)

// New creates an empty mock client.
func New() *Client {
	return &Client{
		byID:      make(map[string]*account),
		symbols:   make(map[string]string),
		quotes:    make(map[string]float64),
		optMarket: make(map[string]brokerage.OptionMarketData),
		optInst:   make(map[string]brokerage.OptionInstrument),
		calls:     make(map[string]int),
	}
}

// AddAccount registers an account with its balances.
func (m *Client) AddAccount(ref brokerage.AccountRef, profile brokerage.AccountProfile, portfolio brokerage.PortfolioProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := &account{ref: ref, profile: profile, portfolio: portfolio}
	m.accounts = append(m.accounts, a)
	m.byID[ref.ID] = a
}

// AddStock adds a stock holding to an account and registers its symbol and price.
func (m *Client) AddStock(accountID, symbol string, qty, avgBuyPrice, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	url := "mock://instruments/" + symbol
	if a, ok := m.byID[accountID]; ok {
		a.stocks = append(a.stocks, brokerage.StockHolding{
			InstrumentURL:   url,
			Quantity:        qty,
			AverageBuyPrice: avgBuyPrice,
		})
	}
	m.symbols[url] = symbol
	if price > 0 {
		m.quotes[symbol] = price
	}
}

// AddOption adds an option holding to an account together with its market
// and instrument data.
func (m *Client) AddOption(accountID string, h brokerage.OptionHolding, md brokerage.OptionMarketData, inst brokerage.OptionInstrument) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.byID[accountID]; ok {
		a.options = append(a.options, h)
	}
	m.optMarket[h.OptionID] = md
	m.optInst[h.OptionID] = inst
}

// SetQuote sets the latest price of a symbol.
func (m *Client) SetQuote(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[symbol] = price
}

// FailAccount makes every per-account call for accountID return err.
func (m *Client) FailAccount(accountID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.byID[accountID]; ok {
		a.err = err
	}
}

// FailListAccounts makes ListAccounts return err.
func (m *Client) FailListAccounts(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
}

// FailQuotes makes GetQuotes return err.
func (m *Client) FailQuotes(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quoteErr = err
}

// SetDelay adds latency to every call.
func (m *Client) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Calls returns how many times method was invoked.
func (m *Client) Calls(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[method]
}

func (m *Client) enter(ctx context.Context, method string) error {
	m.mu.Lock()
	m.calls[method]++
	delay := m.delay
	m.mu.Unlock()

	if delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Client) lookup(accountID string) (*account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.byID[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", brokerage.ErrAccountNotFound, accountID)
	}
	if a.err != nil {
		return nil, a.err
	}
	return a, nil
}

// ListAccounts returns the registered accounts in insertion order.
func (m *Client) ListAccounts(ctx context.Context) ([]brokerage.AccountRef, error) {
	if err := m.enter(ctx, "ListAccounts"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	refs := make([]brokerage.AccountRef, len(m.accounts))
	for i, a := range m.accounts {
		refs[i] = a.ref
	}
	return refs, nil
}

func (m *Client) GetAccountProfile(ctx context.Context, accountID string) (*brokerage.AccountProfile, error) {
	if err := m.enter(ctx, "GetAccountProfile"); err != nil {
		return nil, err
	}
	a, err := m.lookup(accountID)
	if err != nil {
		return nil, err
	}
	p := a.profile
	return &p, nil
}

func (m *Client) GetPortfolioProfile(ctx context.Context, accountID string) (*brokerage.PortfolioProfile, error) {
	if err := m.enter(ctx, "GetPortfolioProfile"); err != nil {
		return nil, err
	}
	a, err := m.lookup(accountID)
	if err != nil {
		return nil, err
	}
	p := a.portfolio
	return &p, nil
}

func (m *Client) GetOpenStockPositions(ctx context.Context, accountID string) ([]brokerage.StockHolding, error) {
	if err := m.enter(ctx, "GetOpenStockPositions"); err != nil {
		return nil, err
	}
	a, err := m.lookup(accountID)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]brokerage.StockHolding(nil), a.stocks...), nil
}

func (m *Client) GetOpenOptionPositions(ctx context.Context, accountID string) ([]brokerage.OptionHolding, error) {
	if err := m.enter(ctx, "GetOpenOptionPositions"); err != nil {
		return nil, err
	}
	a, err := m.lookup(accountID)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]brokerage.OptionHolding(nil), a.options...), nil
}

func (m *Client) ResolveSymbol(ctx context.Context, instrumentURL string) (string, error) {
	if err := m.enter(ctx, "ResolveSymbol"); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	sym, ok := m.symbols[instrumentURL]
	if !ok {
		return "", fmt.Errorf("%w: %s", brokerage.ErrInstrumentNotFound, instrumentURL)
	}
	return sym, nil
}

func (m *Client) GetQuotes(ctx context.Context, symbols []string) (map[string]float64, error) {
	if err := m.enter(ctx, "GetQuotes"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.quoteErr != nil {
		return nil, m.quoteErr
	}
	out := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		if p, ok := m.quotes[s]; ok {
			out[s] = p
		}
	}
	return out, nil
}

func (m *Client) GetOptionMarketData(ctx context.Context, optionID string) (*brokerage.OptionMarketData, error) {
	if err := m.enter(ctx, "GetOptionMarketData"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	md, ok := m.optMarket[optionID]
	if !ok {
		return nil, fmt.Errorf("%w: option %s", brokerage.ErrInstrumentNotFound, optionID)
	}
	return &md, nil
}

func (m *Client) GetOptionInstrumentData(ctx context.Context, optionID string) (*brokerage.OptionInstrument, error) {
	if err := m.enter(ctx, "GetOptionInstrumentData"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.optInst[optionID]
	if !ok {
		return nil, fmt.Errorf("%w: option %s", brokerage.ErrInstrumentNotFound, optionID)
	}
	return &inst, nil
}
