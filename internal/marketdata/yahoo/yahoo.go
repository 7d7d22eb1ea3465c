// Package yahoo implements marketdata.Client on top of Yahoo Finance.
package yahoo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/newthinker/stonks/internal/core"
	"github.com/newthinker/stonks/internal/marketdata"
	"github.com/newthinker/stonks/internal/symbols"
	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/equity"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is used for quoteSummary lookups.
const DefaultBaseURL = "https://query2.finance.yahoo.com"

// Config holds client settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// InfoRequestsPerMinute throttles descriptor lookups; 0 disables it.
	InfoRequestsPerMinute int
	// HistoryConcurrency caps parallel chart downloads within one batch.
	HistoryConcurrency int
}

// Client fetches history, descriptors and earnings dates.
type Client struct {
	http        *resty.Client
	infoLimiter *rate.Limiter
	concurrency int
	logger      *zap.Logger
	now         func() time.Time

	// Swappable for tests; default to the finance-go backends.
	fetchBars   func(symbol string, start, end time.Time) ([]core.OHLCV, error)
	fetchEquity func(symbol string) (*finance.Equity, error)
}

var _ marketdata.Client = (*Client)(nil)

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
	if cfg.HistoryConcurrency <= 0 {
		cfg.HistoryConcurrency = 4
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.InfoRequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.InfoRequestsPerMinute)), 1)
	}

	return &Client{
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.Timeout).
			SetHeader("Accept", "application/json").
			SetHeader("User-Agent", "Mozilla/5.0"),
		infoLimiter: limiter,
		concurrency: cfg.HistoryConcurrency,
		logger:      logger,
		now:         time.Now,
		fetchBars:   chartBars,
		fetchEquity: equity.Get,
	}
}

// GetHistory downloads daily bars for all symbols. Downloads run in
// parallel up to the configured cap; failures are collected per symbol.
func (c *Client) GetHistory(ctx context.Context, syms []string, period string) (marketdata.History, error) {
	end := c.now()
	start, err := marketdata.PeriodStart(end, period)
	if err != nil {
		return nil, err
	}

	var (
		mu     sync.Mutex
		out    = make(marketdata.History, len(syms))
		failed = make(map[string]error)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, sym := range syms {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			bars, err := c.fetchBars(symbols.NormalizeForYahoo(sym), start, end)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[sym] = core.WrapError(core.ErrProviderFailed, err)
				return nil
			}
			for i := range bars {
				bars[i].Symbol = sym
			}
			out[sym] = bars
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(failed) > 0 {
		c.logger.Warn("history fetch incomplete",
			zap.Int("requested", len(syms)),
			zap.Int("failed", len(failed)),
		)
		return out, &marketdata.BatchError{Failed: failed}
	}
	return out, nil
}

// chartBars reads one symbol's daily chart.
func chartBars(symbol string, start, end time.Time) ([]core.OHLCV, error) {
	iter := chart.Get(&chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.OneDay,
	})

	var bars []core.OHLCV
	for iter.Next() {
		bar := iter.Bar()
		bars = append(bars, core.OHLCV{
			Interval: "1d",
			Open:     bar.Open.InexactFloat64(),
			High:     bar.High.InexactFloat64(),
			Low:      bar.Low.InexactFloat64(),
			Close:    bar.Close.InexactFloat64(),
			Volume:   int64(bar.Volume),
			Time:     time.Unix(int64(bar.Timestamp), 0).UTC(),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("chart %s: %w", symbol, err)
	}
	return bars, nil
}

func (c *Client) loadEquity(ctx context.Context, symbol string) (*finance.Equity, error) {
	if err := c.infoLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	q, err := c.fetchEquity(symbols.NormalizeForYahoo(symbol))
	if err != nil {
		return nil, core.WrapError(core.ErrProviderFailed, fmt.Errorf("quote %s: %w", symbol, err))
	}
	if q == nil {
		return nil, core.WrapError(core.ErrSymbolNotFound, errors.New(symbol))
	}
	return q, nil
}

// GetInfo returns price, 52-week range, valuation figures and sector.
// A failed sector lookup leaves Sector empty rather than failing the call.
func (c *Client) GetInfo(ctx context.Context, symbol string) (*marketdata.Info, error) {
	q, err := c.loadEquity(ctx, symbol)
	if err != nil {
		return nil, err
	}

	info := &marketdata.Info{
		Symbol:               symbol,
		Name:                 q.ShortName,
		QuoteType:            string(q.QuoteType),
		Price:                q.RegularMarketPrice,
		High52:               q.FiftyTwoWeekHigh,
		Low52:                q.FiftyTwoWeekLow,
		TrailingPE:           q.TrailingPE,
		ForwardPE:            q.ForwardPE,
		FiftyDayAverage:      q.FiftyDayAverage,
		TwoHundredDayAverage: q.TwoHundredDayAverage,
	}

	if !symbols.IsIndexFund(symbol) {
		sector, err := c.fetchSector(ctx, symbol)
		if err != nil {
			c.logger.Debug("sector lookup failed", zap.String("symbol", symbol), zap.Error(err))
		}
		info.Sector = sector
	}
	return info, nil
}

type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			AssetProfile struct {
				Sector   string `json:"sector"`
				Industry string `json:"industry"`
			} `json:"assetProfile"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteSummary"`
}

func (c *Client) fetchSector(ctx context.Context, symbol string) (string, error) {
	if err := c.infoLimiter.Wait(ctx); err != nil {
		return "", err
	}

	var out quoteSummaryResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetQueryParam("modules", "assetProfile").
		Get("/v10/finance/quoteSummary/" + symbols.NormalizeForYahoo(symbol))
	if err != nil {
		return "", fmt.Errorf("quoteSummary %s: %w", symbol, err)
	}
	if resp.StatusCode() == 429 {
		return "", core.WrapError(core.ErrRateLimited, fmt.Errorf("quoteSummary %s", symbol))
	}
	if resp.IsError() {
		return "", fmt.Errorf("quoteSummary %s: status %d", symbol, resp.StatusCode())
	}
	if e := out.QuoteSummary.Error; e != nil {
		return "", fmt.Errorf("quoteSummary %s: %s: %s", symbol, e.Code, e.Description)
	}
	if len(out.QuoteSummary.Result) == 0 {
		return "", nil
	}
	return out.QuoteSummary.Result[0].AssetProfile.Sector, nil
}

// GetEarnings returns the next earnings date, or nil when none is known or
// the last known date has passed.
func (c *Client) GetEarnings(ctx context.Context, symbol string) (*marketdata.Earnings, error) {
	q, err := c.loadEquity(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if q.EarningsTimestamp <= 0 {
		return nil, nil
	}

	ts := time.Unix(int64(q.EarningsTimestamp), 0)
	today := c.now().Truncate(24 * time.Hour)
	if ts.Before(today) {
		return nil, nil
	}
	return &marketdata.Earnings{
		Date:   ts,
		Timing: marketdata.EarningsTiming(ts),
	}, nil
}
