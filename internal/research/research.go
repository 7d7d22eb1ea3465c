// Package research computes single-symbol statistics and chart data.
package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/newthinker/stonks/internal/cache"
	"github.com/newthinker/stonks/internal/core"
	"github.com/newthinker/stonks/internal/indicator"
	"github.com/newthinker/stonks/internal/marketdata"
	"github.com/newthinker/stonks/internal/portfolio"
	"go.uber.org/zap"
)

// DefaultPeriod is the chart window used when none is given.
const DefaultPeriod = "6mo"

// fetchPeriods extends each chart window so the 200-day average covers it.
var fetchPeriods = map[string]string{
	"1mo": "1y",
	"3mo": "1y",
	"6mo": "2y",
	"1y":  "3y",
	"2y":  "5y",
}

const statsWindow = indicator.TradingDaysPerYear

// ChartBar is one candle with its moving averages, nil before enough
// history exists.
type ChartBar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
	MA50   *float64  `json:"ma_50"`
	MA200  *float64  `json:"ma_200"`
}

// Stats is the research view of one symbol. Pointer fields are nil when
// the history is too short to compute them.
type Stats struct {
	Symbol        string   `json:"symbol"`
	Period        string   `json:"period"`
	Price         float64  `json:"price"`
	ChangePct     float64  `json:"change_pct"`
	High52        float64  `json:"high_52w"`
	RangePosition float64  `json:"range_position"`
	RSI14         *float64 `json:"rsi_14"`
	Volatility    *float64 `json:"volatility"`
	PctFromMA50   *float64 `json:"pct_from_ma_50"`
	PctFromMA200  *float64 `json:"pct_from_ma_200"`
	MACD          *float64 `json:"macd"`
	// MACDTrend is "Positive", "Negative" or empty.
	MACDTrend string `json:"macd_trend"`
	Weekly    bool   `json:"weekly"`

	PriceText      string `json:"price_text"`
	ChangeText     string `json:"change_text"`
	High52Text     string `json:"high_52w_text"`
	RSIText        string `json:"rsi_text"`
	VolatilityText string `json:"volatility_text"`
	MA50Text       string `json:"ma_50_text"`
	MA200Text      string `json:"ma_200_text"`

	Chart []ChartBar `json:"chart"`
}

// Request selects a symbol and chart window.
type Request struct {
	Symbol string
	Period string
}

func (r Request) key() string {
	return cache.KeyResearch + r.Symbol + ":" + r.Period
}

// Service serves research statistics through the cache.
type Service struct {
	md     marketdata.Client
	logger *zap.Logger
	now    func() time.Time
	lookup func(context.Context, Request) (*Stats, error)
}

// NewService creates a research service caching results for ttl.
func NewService(md marketdata.Client, c *cache.Cache, ttl time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{md: md, logger: logger, now: time.Now}
	s.lookup = cache.Cached(c, ttl, Request.key, s.compute)
	return s
}

// Stats returns the statistics for symbol over period. An empty period
// selects DefaultPeriod.
func (s *Service) Stats(ctx context.Context, symbol, period string) (*Stats, error) {
	req, err := normalize(symbol, period)
	if err != nil {
		return nil, err
	}
	return s.lookup(ctx, req)
}

func normalize(symbol, period string) (Request, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return Request{}, core.WrapError(core.ErrInvalidRequest, errors.New("empty symbol"))
	}
	p := strings.ToLower(strings.TrimSpace(period))
	if p == "" {
		p = DefaultPeriod
	}
	if _, ok := fetchPeriods[p]; !ok {
		return Request{}, core.WrapError(core.ErrInvalidRequest, fmt.Errorf("unsupported period %q", period))
	}
	return Request{Symbol: sym, Period: p}, nil
}

func (s *Service) compute(ctx context.Context, req Request) (*Stats, error) {
	hist, err := s.md.GetHistory(ctx, []string{req.Symbol}, fetchPeriods[req.Period])
	bars := hist[req.Symbol]
	if err != nil {
		var batch *marketdata.BatchError
		if errors.As(err, &batch) {
			if symErr, ok := batch.Failed[req.Symbol]; ok {
				return nil, symErr
			}
		}
		return nil, err
	}
	if len(bars) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no history for %s", req.Symbol))
	}
	start, err := marketdata.PeriodStart(s.now(), req.Period)
	if err != nil {
		return nil, err
	}
	st := analyze(req, bars, start)
	s.logger.Debug("research computed",
		zap.String("symbol", req.Symbol),
		zap.String("period", req.Period),
		zap.Int("bars", len(bars)),
	)
	return st, nil
}

// analyze derives statistics from the full history and the chart from the
// bars at or after start.
func analyze(req Request, bars []core.OHLCV, start time.Time) *Stats {
	closes := core.Closes(bars)
	recent := bars
	if len(recent) > statsWindow {
		recent = recent[len(recent)-statsWindow:]
	}

	price := closes[len(closes)-1]
	prev := price
	if len(closes) > 1 {
		prev = closes[len(closes)-2]
	}
	low, high, _ := core.Range52W(recent)

	st := &Stats{
		Symbol:        req.Symbol,
		Period:        req.Period,
		Price:         price,
		ChangePct:     indicator.PctOffset(price, prev),
		High52:        high,
		RangePosition: core.RangePosition(price, low, high),
		Weekly:        req.Period == "2y",
	}

	if rsi, ok := indicator.RSI(closes, 14); ok {
		st.RSI14 = &rsi
	}
	if vol, ok := indicator.AnnualizedVolatility(core.Closes(recent)); ok {
		st.Volatility = &vol
	}
	if ma, ok := indicator.LastSMA(closes, 50, 0); ok {
		pct := indicator.PctOffset(price, ma)
		st.PctFromMA50 = &pct
	}
	if ma, ok := indicator.LastSMA(closes, 200, 0); ok {
		pct := indicator.PctOffset(price, ma)
		st.PctFromMA200 = &pct
	}
	if macd, ok := indicator.MACD(closes, 12, 26, 9); ok {
		st.MACD = &macd
		st.MACDTrend = "Negative"
		if macd > 0 {
			st.MACDTrend = "Positive"
		}
	}

	st.PriceText = portfolio.Money(price)
	st.ChangeText = portfolio.SignedPercent(st.ChangePct)
	st.High52Text = portfolio.Money(high)
	st.RSIText = optional(st.RSI14, "%.1f")
	st.VolatilityText = optional(st.Volatility, "%.1f%%")
	st.MA50Text = optional(st.PctFromMA50, "%+.1f%%")
	st.MA200Text = optional(st.PctFromMA200, "%+.1f%%")

	st.Chart = chart(bars, closes, start)
	if st.Weekly {
		st.Chart = weekly(st.Chart)
	}
	return st
}

func optional(v *float64, format string) string {
	if v == nil {
		return portfolio.NotAvailable
	}
	return fmt.Sprintf(format, *v)
}

func chart(bars []core.OHLCV, closes []float64, start time.Time) []ChartBar {
	ma50 := indicator.SMA(closes, 50)
	ma200 := indicator.SMA(closes, 200)
	var out []ChartBar
	for i, b := range bars {
		if b.Time.Before(start) {
			continue
		}
		cb := ChartBar{
			Time:   b.Time,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
		// SMA(p)[j] covers closes[j : j+p], so bar i maps to j = i-p+1.
		if j := i - 49; j >= 0 && j < len(ma50) {
			cb.MA50 = &ma50[j]
		}
		if j := i - 199; j >= 0 && j < len(ma200) {
			cb.MA200 = &ma200[j]
		}
		out = append(out, cb)
	}
	return out
}

// weekly folds daily candles into ISO weeks. Each week keeps the moving
// averages of its last session.
func weekly(daily []ChartBar) []ChartBar {
	var out []ChartBar
	lastYear, lastWeek := -1, -1
	for _, d := range daily {
		y, w := d.Time.ISOWeek()
		if y != lastYear || w != lastWeek {
			out = append(out, d)
			lastYear, lastWeek = y, w
			continue
		}
		wk := &out[len(out)-1]
		wk.High = max(wk.High, d.High)
		wk.Low = min(wk.Low, d.Low)
		wk.Close = d.Close
		wk.Volume += d.Volume
		wk.MA50, wk.MA200 = d.MA50, d.MA200
	}
	return out
}
