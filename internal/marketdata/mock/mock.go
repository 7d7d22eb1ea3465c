// Package mock provides an in-memory marketdata.Client for tests and demos.
package mock

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/newthinker/stonks/internal/core"
	"github.com/newthinker/stonks/internal/marketdata"
)

type failure struct {
	remaining int
	err       error
}

// Client serves fixture data. Failures can be scripted per symbol for a
// number of calls, after which the symbol succeeds again.
type Client struct {
	mu sync.Mutex

	history  map[string][]core.OHLCV
	info     map[string]marketdata.Info
	earnings map[string]marketdata.Earnings

	historyFail map[string]*failure
	infoFail    map[string]*failure
	earnFail    map[string]*failure

	calls map[string]int
	now   func() time.Time
}

var _ marketdata.Client = (*Client)(nil)

// New creates an empty mock client.
func New() *Client {
	return &Client{
		history:     make(map[string][]core.OHLCV),
		info:        make(map[string]marketdata.Info),
		earnings:    make(map[string]marketdata.Earnings),
		historyFail: make(map[string]*failure),
		infoFail:    make(map[string]*failure),
		earnFail:    make(map[string]*failure),
		calls:       make(map[string]int),
		now:         time.Now,
	}
}

// SetClock replaces time.Now for period filtering.
func (m *Client) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// SetHistory stores daily bars for symbol in ascending order.
func (m *Client) SetHistory(symbol string, bars []core.OHLCV) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[symbol] = bars
}

// History returns a copy of the stored bars for symbol.
func (m *Client) History(symbol string) []core.OHLCV {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.OHLCV(nil), m.history[symbol]...)
}

// SetInfo stores a descriptor.
func (m *Client) SetInfo(info marketdata.Info) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.info[info.Symbol] = info
}

// SetEarnings stores the next earnings date for symbol.
func (m *Client) SetEarnings(symbol string, e marketdata.Earnings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.earnings[symbol] = e
}

// FailHistory makes the next times history lookups for symbol fail with err.
// A negative times fails forever.
func (m *Client) FailHistory(symbol string, times int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.historyFail[symbol] = &failure{remaining: times, err: err}
}

// FailInfo makes the next times descriptor lookups for symbol fail with err.
func (m *Client) FailInfo(symbol string, times int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoFail[symbol] = &failure{remaining: times, err: err}
}

// FailEarnings makes the next times earnings lookups for symbol fail with err.
func (m *Client) FailEarnings(symbol string, times int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.earnFail[symbol] = &failure{remaining: times, err: err}
}

// Calls returns how many times method was invoked. GetHistory counts
// batches, not symbols.
func (m *Client) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// SymbolCalls returns how many times method was invoked for symbol.
func (m *Client) SymbolCalls(method, symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method+":"+symbol]
}

// GetHistory returns the stored bars within period. Unknown symbols and
// scripted failures are reported through a *marketdata.BatchError.
func (m *Client) GetHistory(ctx context.Context, symbols []string, period string) (marketdata.History, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["GetHistory"]++

	start, err := marketdata.PeriodStart(m.now(), period)
	if err != nil {
		return nil, err
	}

	out := make(marketdata.History, len(symbols))
	failed := make(map[string]error)
	for _, sym := range symbols {
		m.calls["GetHistory:"+sym]++
		if err := take(m.historyFail, sym); err != nil {
			failed[sym] = err
			continue
		}
		bars, ok := m.history[sym]
		if !ok {
			failed[sym] = core.WrapError(core.ErrNoData, fmt.Errorf("no history for %s", sym))
			continue
		}
		var kept []core.OHLCV
		for _, b := range bars {
			if !b.Time.Before(start) {
				kept = append(kept, b)
			}
		}
		out[sym] = kept
	}
	if len(failed) > 0 {
		return out, &marketdata.BatchError{Failed: failed}
	}
	return out, nil
}

// GetInfo returns the stored descriptor.
func (m *Client) GetInfo(ctx context.Context, symbol string) (*marketdata.Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["GetInfo"]++
	m.calls["GetInfo:"+symbol]++

	if err := take(m.infoFail, symbol); err != nil {
		return nil, err
	}
	info, ok := m.info[symbol]
	if !ok {
		return nil, core.WrapError(core.ErrSymbolNotFound, fmt.Errorf("%s", symbol))
	}
	return &info, nil
}

// GetEarnings returns the stored earnings date, or nil when none is set.
func (m *Client) GetEarnings(ctx context.Context, symbol string) (*marketdata.Earnings, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["GetEarnings"]++
	m.calls["GetEarnings:"+symbol]++

	if err := take(m.earnFail, symbol); err != nil {
		return nil, err
	}
	e, ok := m.earnings[symbol]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func take(fails map[string]*failure, symbol string) error {
	f, ok := fails[symbol]
	if !ok {
		return nil
	}
	if f.remaining == 0 {
		delete(fails, symbol)
		return nil
	}
	if f.remaining > 0 {
		f.remaining--
	}
	return f.err
}

// Series generates n daily bars ending at end, oscillating around base.
// Volume is constant so volume ratios are predictable.
func Series(symbol string, end time.Time, n int, base, amplitude float64, volume int64) []core.OHLCV {
	bars := make([]core.OHLCV, n)
	for i := 0; i < n; i++ {
		day := end.AddDate(0, 0, i-n+1)
		price := base + amplitude*math.Sin(float64(i)/9)
		bars[i] = core.OHLCV{
			Symbol:   symbol,
			Interval: "1d",
			Time:     day,
			Open:     price * 0.998,
			High:     price * 1.01,
			Low:      price * 0.99,
			Close:    price,
			Volume:   volume,
		}
	}
	return bars
}
