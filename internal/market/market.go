// Package market serves the major index overview.
package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/newthinker/stonks/internal/cache"
	"github.com/newthinker/stonks/internal/core"
	"github.com/newthinker/stonks/internal/marketdata"
	"github.com/newthinker/stonks/internal/portfolio"
	"github.com/newthinker/stonks/internal/task"
	"go.uber.org/zap"
)

// IndexRef names an index and its provider symbol.
type IndexRef struct {
	Name   string
	Symbol string
	// Points marks indices quoted in points rather than dollars.
	Points bool
}

// DefaultIndices are the indices shown in the overview.
var DefaultIndices = []IndexRef{
	{Name: "S&P 500", Symbol: "^GSPC"},
	{Name: "Nasdaq", Symbol: "^IXIC"},
	{Name: "Dow Jones", Symbol: "^DJI"},
	{Name: "VIX", Symbol: "^VIX", Points: true},
}

// TrendPoint is one day of growth relative to the first day of the window.
type TrendPoint struct {
	Date      string  `json:"date"`
	GrowthPct float64 `json:"growth_pct"`
}

// Index is one overview card. Available is false when the provider had no
// data; the numbers are then zero.
type Index struct {
	Name       string  `json:"name"`
	Symbol     string  `json:"symbol"`
	Available  bool    `json:"available"`
	IsCurrency bool    `json:"is_currency"`
	Price      float64 `json:"price"`
	Change     float64 `json:"change"`
	ChangePct  float64 `json:"change_pct"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`

	PriceText  string `json:"price_text"`
	ChangeText string `json:"change_text"`
	HighText   string `json:"high_text"`
	LowText    string `json:"low_text"`

	// Trend is empty for point-quoted indices.
	Trend []TrendPoint `json:"trend,omitempty"`
}

// Overview is the cached index overview.
type Overview struct {
	FetchedAt time.Time `json:"fetched_at"`
	Indices   []Index   `json:"indices"`
}

// Service builds the overview from one batched history call.
type Service struct {
	md      marketdata.Client
	cache   *cache.Cache
	indices []IndexRef
	period  string
	ttl     time.Duration
	grace   time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates the overview service. Results are cached for ttl and
// served stale for a further grace while a refresh runs.
func NewService(md marketdata.Client, c *cache.Cache, ttl, grace time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		md:      md,
		cache:   c,
		indices: DefaultIndices,
		period:  "1mo",
		ttl:     ttl,
		grace:   grace,
		logger:  logger,
		now:     time.Now,
	}
}

// Indices returns the overview. When a stale copy is served, the returned
// task tracks its background refresh.
func (s *Service) Indices(ctx context.Context) (*Overview, *task.Task, error) {
	return cache.SWR(ctx, s.cache, cache.KeyIndices, s.ttl, s.grace, s.fetch)
}

func (s *Service) fetch(ctx context.Context) (*Overview, error) {
	syms := make([]string, len(s.indices))
	for i, ref := range s.indices {
		syms[i] = ref.Symbol
	}

	hist, err := s.md.GetHistory(ctx, syms, s.period)
	var batch *marketdata.BatchError
	if err != nil {
		if !errors.As(err, &batch) || len(hist) == 0 {
			return nil, core.WrapError(core.ErrProviderFailed, fmt.Errorf("index history: %w", err))
		}
		s.logger.Warn("index history incomplete", zap.Error(err))
	}

	out := &Overview{FetchedAt: s.now(), Indices: make([]Index, 0, len(s.indices))}
	for _, ref := range s.indices {
		out.Indices = append(out.Indices, buildIndex(ref, hist[ref.Symbol]))
	}
	return out, nil
}

func buildIndex(ref IndexRef, bars []core.OHLCV) Index {
	idx := Index{Name: ref.Name, Symbol: ref.Symbol, IsCurrency: !ref.Points}
	if len(bars) == 0 {
		idx.PriceText, idx.HighText, idx.LowText = "0.00", "0.00", "0.00"
		idx.ChangeText = changeText(0, 0, idx.IsCurrency)
		return idx
	}

	last := bars[len(bars)-1]
	prev := last.Open
	if len(bars) >= 2 {
		prev = bars[len(bars)-2].Close
	}
	low, high, _ := core.Range52W(bars)

	idx.Available = true
	idx.Price = last.Close
	idx.Change = last.Close - prev
	if prev != 0 {
		idx.ChangePct = idx.Change / prev * 100
	}
	idx.High, idx.Low = high, low
	idx.PriceText = number(idx.Price)
	idx.HighText = number(high)
	idx.LowText = number(low)
	idx.ChangeText = changeText(idx.Change, idx.ChangePct, idx.IsCurrency)

	if idx.IsCurrency && bars[0].Close > 0 {
		base := bars[0].Close
		idx.Trend = make([]TrendPoint, len(bars))
		for i, b := range bars {
			idx.Trend[i] = TrendPoint{
				Date:      b.Time.Format("Jan 02"),
				GrowthPct: (b.Close/base - 1) * 100,
			}
		}
	}
	return idx
}

// changeText renders "+$12.34 (+0.56%)" for dollar indices and
// "+0.12 (+0.56%)" for point indices.
func changeText(change, pct float64, currency bool) string {
	if currency {
		return fmt.Sprintf("%s (%s)", portfolio.SignedMoney(change), portfolio.SignedPercent(pct))
	}
	return fmt.Sprintf("%+.2f (%s)", change, portfolio.SignedPercent(pct))
}

func number(v float64) string {
	return humanize.FormatFloat("#,###.##", v)
}
