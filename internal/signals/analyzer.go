package signals

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/newthinker/stonks/internal/core"
	"github.com/newthinker/stonks/internal/marketdata"
	"github.com/newthinker/stonks/internal/metrics"
	"github.com/newthinker/stonks/internal/symbols"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Analyzer runs every detector over one batch of market data.
type Analyzer struct {
	md                  marketdata.Client
	logger              *zap.Logger
	metrics             *metrics.Registry
	now                 func() time.Time
	historyPeriod       string
	infoConcurrency     int
	earningsConcurrency int
}

// Option customizes an Analyzer.
type Option func(*Analyzer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// WithMetrics records signal counts.
func WithMetrics(reg *metrics.Registry) Option {
	return func(a *Analyzer) { a.metrics = reg }
}

// WithHistoryPeriod sets the history window; it must cover 201 sessions
// for breakouts to be detected.
func WithHistoryPeriod(period string) Option {
	return func(a *Analyzer) { a.historyPeriod = period }
}

// WithConcurrency caps concurrent descriptor and earnings lookups.
func WithConcurrency(info, earnings int) Option {
	return func(a *Analyzer) {
		a.infoConcurrency = max(info, 1)
		a.earningsConcurrency = max(earnings, 1)
	}
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(md marketdata.Client, logger *zap.Logger, opts ...Option) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Analyzer{
		md:                  md,
		logger:              logger,
		now:                 time.Now,
		historyPeriod:       "1y",
		infoConcurrency:     8,
		earningsConcurrency: 10,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// marketData is everything the detectors read, fetched once per run.
type marketData struct {
	history  marketdata.History
	info     map[string]*marketdata.Info
	earnings map[string]*marketdata.Earnings
}

// DetectAll computes every signal kind for syms. accounts maps a symbol to
// the display names of the accounts holding it. Per-symbol data failures
// only drop that symbol's events; the call fails only when no history at
// all could be loaded.
func (a *Analyzer) DetectAll(ctx context.Context, syms []string, accounts map[string][]string, th Thresholds) (*Report, error) {
	syms = symbols.Unique(syms)
	now := a.now()
	report := &Report{GeneratedAt: now, Symbols: syms}
	if len(syms) == 0 {
		return report, nil
	}

	data, err := a.fetch(ctx, syms)
	if err != nil {
		return nil, err
	}

	for _, sym := range syms {
		h := Holding{
			Symbol:      sym,
			IsIndexFund: symbols.IsIndexFund(sym),
			Accounts:    accounts[sym],
		}
		bars := data.history[sym]

		if ev, ok := detectGap(h, bars, th); ok {
			report.Gaps = append(report.Gaps, ev)
		}
		report.MAProximity = append(report.MAProximity, detectMAProximity(h, bars, th)...)
		if ev, ok := detectBelowMA200(h, bars); ok {
			report.BelowMA200 = append(report.BelowMA200, ev)
		}
		if ev, ok := detectNearHigh(h, data.info[sym], th); ok {
			report.NearHighs = append(report.NearHighs, ev)
		}
		report.Breakouts = append(report.Breakouts, detectBreakouts(h, bars, th)...)
		if ev, ok := detectEarnings(h, data.earnings[sym], now, th); ok {
			report.Earnings = append(report.Earnings, ev)
		}
	}

	sortReport(report)
	for kind, n := range report.Counts() {
		a.metrics.RecordSignals(kind, n)
	}
	a.logger.Debug("signals detected",
		zap.Int("symbols", len(syms)),
		zap.Any("counts", report.Counts()),
	)
	return report, nil
}

// fetch loads history in one batch while descriptors and earnings are
// looked up concurrently under their caps.
func (a *Analyzer) fetch(ctx context.Context, syms []string) (*marketData, error) {
	data := &marketData{
		info:     make(map[string]*marketdata.Info, len(syms)),
		earnings: make(map[string]*marketdata.Earnings),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hist, err := a.md.GetHistory(gctx, syms, a.historyPeriod)
		var batch *marketdata.BatchError
		switch {
		case err == nil:
		case errors.As(err, &batch) && len(hist) > 0:
			a.logger.Warn("history incomplete", zap.Error(err))
		default:
			return core.WrapError(core.ErrProviderFailed, err)
		}
		data.history = hist
		return nil
	})

	_, stocks := symbols.Partition(syms)

	g.Go(func() error {
		ig, ictx := errgroup.WithContext(gctx)
		ig.SetLimit(a.infoConcurrency)
		for _, sym := range syms {
			ig.Go(func() error {
				info, err := a.md.GetInfo(ictx, sym)
				if err != nil {
					a.logger.Debug("info lookup failed", zap.String("symbol", sym), zap.Error(err))
					return nil
				}
				mu.Lock()
				data.info[sym] = info
				mu.Unlock()
				return nil
			})
		}
		return ig.Wait()
	})

	g.Go(func() error {
		eg, ectx := errgroup.WithContext(gctx)
		eg.SetLimit(a.earningsConcurrency)
		for _, sym := range stocks {
			if symbols.IsWarrantOrUnit(sym) {
				continue
			}
			eg.Go(func() error {
				earn, err := a.md.GetEarnings(ectx, sym)
				if err != nil || earn == nil {
					return nil
				}
				mu.Lock()
				data.earnings[sym] = earn
				mu.Unlock()
				return nil
			})
		}
		return eg.Wait()
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return data, nil
}
