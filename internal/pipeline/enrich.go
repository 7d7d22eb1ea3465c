package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/newthinker/stonks/internal/core"
	"github.com/newthinker/stonks/internal/marketdata"
	"github.com/newthinker/stonks/internal/portfolio"
	"github.com/newthinker/stonks/internal/symbols"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Enrichment is the secondary analytics for a set of symbols.
type Enrichment struct {
	Sectors  map[string]string
	Ranges   map[string]float64
	Earnings map[string]portfolio.EarningsInfo
	Outcomes map[string]portfolio.Outcome
}

// Apply patches e into s and rebuilds sector exposure. Symbols not in e
// keep their previous values.
func (e *Enrichment) Apply(s *portfolio.Snapshot) {
	for sym, v := range e.Sectors {
		s.SymbolSectors[sym] = v
	}
	for sym, v := range e.Ranges {
		s.Ranges[sym] = v
	}
	for sym, v := range e.Earnings {
		s.Earnings[sym] = v
	}
	for sym, o := range e.Outcomes {
		s.Outcomes[sym] = o
	}
	s.RebuildSectors()
}

// Enricher fetches sector, 52-week range and earnings for a symbol set.
type Enricher struct {
	md                  marketdata.Client
	logger              *zap.Logger
	now                 func() time.Time
	infoConcurrency     int
	earningsConcurrency int
	historyPeriod       string
}

// NewEnricher creates an enricher. Concurrency values below one mean one.
func NewEnricher(md marketdata.Client, logger *zap.Logger, infoConcurrency, earningsConcurrency int) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{
		md:                  md,
		logger:              logger,
		now:                 time.Now,
		infoConcurrency:     max(infoConcurrency, 1),
		earningsConcurrency: max(earningsConcurrency, 1),
		historyPeriod:       "1y",
	}
}

// Enrich never fails as a whole: each symbol gets an explicit outcome.
//
// Descriptors are fetched for individual stocks only; their 52-week range
// is used when present. Index funds, and stocks whose descriptor has no
// range, fall back to one batched history call. Earnings lookups run
// alongside and do not affect outcomes.
func (e *Enricher) Enrich(ctx context.Context, syms []string) *Enrichment {
	res := &Enrichment{
		Sectors:  make(map[string]string),
		Ranges:   make(map[string]float64),
		Earnings: make(map[string]portfolio.EarningsInfo),
		Outcomes: make(map[string]portfolio.Outcome, len(syms)),
	}
	if len(syms) == 0 {
		return res
	}
	funds, stocks := symbols.Partition(syms)

	var mu sync.Mutex
	earningsDone := make(chan struct{})
	go func() {
		defer close(earningsDone)
		e.fetchEarnings(ctx, stocks, &mu, res)
	}()

	infoFailed := make(map[string]bool)
	needHistory := append([]string(nil), funds...)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.infoConcurrency)
	for _, sym := range stocks {
		g.Go(func() error {
			info, err := e.md.GetInfo(gctx, sym)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				e.logger.Warn("info lookup failed", zap.String("symbol", sym), zap.Error(err))
				infoFailed[sym] = !unavailable(err)
				needHistory = append(needHistory, sym)
				return nil
			}
			res.Sectors[sym] = info.Sector
			if info.HasRange() && info.High52 > info.Low52 {
				res.Ranges[sym] = core.RangePosition(info.Price, info.Low52, info.High52)
				res.Outcomes[sym] = portfolio.OutcomeOK
				return nil
			}
			needHistory = append(needHistory, sym)
			return nil
		})
	}
	_ = g.Wait()

	if len(needHistory) > 0 {
		needHistory = symbols.Unique(needHistory)
		hist, err := e.md.GetHistory(ctx, needHistory, e.historyPeriod)
		var batch *marketdata.BatchError
		if err != nil && !errors.As(err, &batch) {
			e.logger.Warn("history lookup failed",
				zap.Strings("symbols", needHistory),
				zap.Error(err),
			)
		}
		mu.Lock()
		for _, sym := range needHistory {
			res.Outcomes[sym] = e.rangeFromHistory(sym, hist, err, batch, res)
			if infoFailed[sym] && res.Outcomes[sym] == portfolio.OutcomeOK {
				// Range recovered from history, sector still missing.
				res.Outcomes[sym] = portfolio.OutcomeFailed
			}
		}
		mu.Unlock()
	}

	<-earningsDone
	return res
}

func (e *Enricher) rangeFromHistory(sym string, hist marketdata.History, err error, batch *marketdata.BatchError, res *Enrichment) portfolio.Outcome {
	if batch != nil {
		if symErr, failed := batch.Failed[sym]; failed {
			if unavailable(symErr) {
				return portfolio.OutcomeUnavailable
			}
			return portfolio.OutcomeFailed
		}
	} else if err != nil {
		return portfolio.OutcomeFailed
	}

	bars := hist[sym]
	low, high, ok := core.Range52W(bars)
	if !ok || high <= low {
		return portfolio.OutcomeUnavailable
	}
	last := bars[len(bars)-1].Close
	if last <= 0 {
		return portfolio.OutcomeUnavailable
	}
	res.Ranges[sym] = core.RangePosition(last, low, high)
	return portfolio.OutcomeOK
}

func (e *Enricher) fetchEarnings(ctx context.Context, stocks []string, mu *sync.Mutex, res *Enrichment) {
	now := e.now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.earningsConcurrency)
	for _, sym := range stocks {
		if symbols.IsWarrantOrUnit(sym) {
			continue
		}
		g.Go(func() error {
			earn, err := e.md.GetEarnings(gctx, sym)
			if err != nil {
				e.logger.Debug("earnings lookup failed", zap.String("symbol", sym), zap.Error(err))
				return nil
			}
			if earn == nil {
				return nil
			}
			mu.Lock()
			res.Earnings[sym] = portfolio.EarningsInfo{
				DaysUntil: marketdata.DaysUntil(earn.Date, now),
				Date:      earn.Date,
				Timing:    earn.Timing,
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
}

// unavailable reports whether err means the data does not exist rather
// than that the provider failed.
func unavailable(err error) bool {
	return errors.Is(err, core.ErrNoData) || errors.Is(err, core.ErrSymbolNotFound)
}
