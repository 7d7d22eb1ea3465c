package portfolio

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/newthinker/stonks/internal/brokerage"
	"github.com/newthinker/stonks/internal/core"
	"github.com/newthinker/stonks/internal/symbols"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Processor turns one account's brokerage responses into typed positions.
type Processor struct {
	client brokerage.Client
	logger *zap.Logger
	now    func() time.Time
}

// Option customizes a Processor.
type Option func(*Processor)

// WithClock replaces time.Now for days-to-expiry.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// NewProcessor creates a processor backed by client.
func NewProcessor(client brokerage.Client, logger *zap.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Processor{client: client, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessAccount fetches and normalizes one account. The profile, portfolio,
// stock and option fetches run concurrently; quotes are fetched in one batch
// per account. Errors are wrapped with core.ErrAccountFailed and keep their
// cause, so an expired session still matches core.ErrAuthExpired.
func (p *Processor) ProcessAccount(ctx context.Context, ref brokerage.AccountRef) (*AccountResult, error) {
	var (
		profile   *brokerage.AccountProfile
		portfolio *brokerage.PortfolioProfile
		stockRaw  []brokerage.StockHolding
		optionRaw []brokerage.OptionHolding
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		profile, err = p.client.GetAccountProfile(gctx, ref.ID)
		return err
	})
	g.Go(func() (err error) {
		portfolio, err = p.client.GetPortfolioProfile(gctx, ref.ID)
		return err
	})
	g.Go(func() (err error) {
		stockRaw, err = p.client.GetOpenStockPositions(gctx, ref.ID)
		return err
	})
	g.Go(func() (err error) {
		optionRaw, err = p.client.GetOpenOptionPositions(gctx, ref.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, accountError(ref.ID, err)
	}

	stocks, err := p.processStocks(ctx, stockRaw)
	if err != nil {
		return nil, accountError(ref.ID, err)
	}
	options, err := p.processOptions(ctx, optionRaw)
	if err != nil {
		return nil, accountError(ref.ID, err)
	}

	acc := Account{
		ID:          ref.ID,
		DisplayName: DisplayName(ref.Nickname, ref.Type, ref.ID),
		Cash:        profile.Cash,
		BuyingPower: profile.BuyingPower,
	}
	acc.Equity = firstPositive(portfolio.ExtendedHoursEquity, portfolio.Equity)
	acc.EquityPrevClose = firstPositive(portfolio.AdjustedEquityPreviousClose, portfolio.EquityPreviousClose)

	p.logger.Debug("account processed",
		zap.String("account", acc.DisplayName),
		zap.Int("stocks", len(stocks)),
		zap.Int("options", len(options)),
	)
	return &AccountResult{Account: acc, Stocks: stocks, Options: options}, nil
}

func (p *Processor) processStocks(ctx context.Context, raw []brokerage.StockHolding) ([]StockPosition, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	syms := make([]string, len(raw))
	g, gctx := errgroup.WithContext(ctx)
	for i, h := range raw {
		if h.Symbol != "" {
			syms[i] = h.Symbol
			continue
		}
		g.Go(func() error {
			sym, err := p.client.ResolveSymbol(gctx, h.InstrumentURL)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", h.InstrumentURL, err)
			}
			syms[i] = strings.ToUpper(sym)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	prices, err := p.client.GetQuotes(ctx, symbols.Unique(syms))
	if err != nil {
		return nil, fmt.Errorf("quotes: %w", err)
	}

	out := make([]StockPosition, 0, len(raw))
	for i, h := range raw {
		avg := h.AverageBuyPrice
		if avg <= 0 {
			avg = h.PendingAverageBuyPrice
		}
		price, ok := prices[syms[i]]
		if !ok {
			p.logger.Warn("no quote for holding", zap.String("symbol", syms[i]))
		}
		out = append(out, NewStockPosition(syms[i], h.Quantity, price, avg))
	}
	return out, nil
}

func (p *Processor) processOptions(ctx context.Context, raw []brokerage.OptionHolding) ([]OptionPosition, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	market := make([]*brokerage.OptionMarketData, len(raw))
	instruments := make([]*brokerage.OptionInstrument, len(raw))
	var underlying map[string]float64

	underlyings := make([]string, 0, len(raw))
	for _, h := range raw {
		underlyings = append(underlyings, h.ChainSymbol)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, h := range raw {
		g.Go(func() error {
			md, err := p.client.GetOptionMarketData(gctx, h.OptionID)
			if err != nil {
				return fmt.Errorf("option market data %s: %w", h.OptionID, err)
			}
			market[i] = md
			return nil
		})
		g.Go(func() error {
			inst, err := p.client.GetOptionInstrumentData(gctx, h.OptionID)
			if err != nil {
				return fmt.Errorf("option instrument %s: %w", h.OptionID, err)
			}
			instruments[i] = inst
			return nil
		})
	}
	g.Go(func() (err error) {
		underlying, err = p.client.GetQuotes(gctx, symbols.Unique(underlyings))
		if err != nil {
			return fmt.Errorf("underlying quotes: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := p.now()
	out := make([]OptionPosition, 0, len(raw))
	for i, h := range raw {
		md, inst := market[i], instruments[i]
		side := Long
		if strings.EqualFold(h.Side, "short") {
			side = Short
		}
		mark := md.AdjustedMarkPrice
		if mark <= 0 {
			mark = md.MarkPrice
		}
		out = append(out, NewOptionPosition(OptionInput{
			OptionID:        h.OptionID,
			Symbol:          h.ChainSymbol,
			Strike:          inst.Strike,
			Type:            optionType(inst.Type),
			Side:            side,
			Contracts:       h.Quantity,
			AvgPrice:        abs(h.AveragePrice),
			Mark:            mark,
			Delta:           md.Delta,
			UnderlyingPrice: underlying[h.ChainSymbol],
			Expiration:      inst.Expiration,
		}, now))
	}
	return out, nil
}

func optionType(s string) OptionType {
	if strings.EqualFold(s, "put") {
		return Put
	}
	return Call
}

func accountError(id string, err error) error {
	return core.WrapError(core.ErrAccountFailed, fmt.Errorf("account %s: %w", id, err))
}

func firstPositive(vals ...float64) float64 {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
