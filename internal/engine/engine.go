// Package engine wires the brokerage and market-data clients, the shared
// cache, the sync pipeline and the analysis services into one runnable unit.
package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/newthinker/stonks/internal/brokerage"
	brokermock "github.com/newthinker/stonks/internal/brokerage/mock"
	"github.com/newthinker/stonks/internal/brokerage/robinhood"
	"github.com/newthinker/stonks/internal/cache"
	"github.com/newthinker/stonks/internal/config"
	"github.com/newthinker/stonks/internal/core"
	"github.com/newthinker/stonks/internal/market"
	"github.com/newthinker/stonks/internal/marketdata"
	mdmock "github.com/newthinker/stonks/internal/marketdata/mock"
	"github.com/newthinker/stonks/internal/marketdata/yahoo"
	"github.com/newthinker/stonks/internal/metrics"
	"github.com/newthinker/stonks/internal/pipeline"
	"github.com/newthinker/stonks/internal/portfolio"
	"github.com/newthinker/stonks/internal/research"
	"github.com/newthinker/stonks/internal/signals"
	"github.com/newthinker/stonks/internal/task"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Engine is the application orchestrator.
type Engine struct {
	cfg        *config.Config
	logger     *zap.Logger
	metrics    *metrics.Registry
	cache      *cache.Cache
	broker     brokerage.Client
	md         marketdata.Client
	pipeline   *pipeline.Pipeline
	analyzer   *signals.Analyzer
	market     *market.Service
	research   *research.Service
	thresholds signals.Thresholds
	cron       *cron.Cron
	now        func() time.Time

	pipelineOpts []pipeline.Option
	reportFor    func(context.Context, signalsRequest) (*signals.Report, error)

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	warmedGen uint64
	warmed    chan struct{}
}

// Option customizes an Engine.
type Option func(*Engine)

// WithBrokerage replaces the configured brokerage client.
func WithBrokerage(c brokerage.Client) Option {
	return func(e *Engine) { e.broker = c }
}

// WithMarketData replaces the configured market-data client. It is still
// wrapped by the caching decorator.
func WithMarketData(c marketdata.Client) Option {
	return func(e *Engine) { e.md = c }
}

// WithMetrics records engine metrics into reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(e *Engine) { e.metrics = reg }
}

// WithClock replaces time.Now across all components.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithPipelineOptions passes extra options to the sync pipeline.
func WithPipelineOptions(opts ...pipeline.Option) Option {
	return func(e *Engine) { e.pipelineOpts = append(e.pipelineOpts, opts...) }
}

// New builds an engine from cfg. Clients not supplied through options are
// created from the brokerage and market_data sections.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		warmed: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.broker == nil {
		b, err := newBrokerage(cfg.Brokerage, e.now, logger)
		if err != nil {
			return nil, err
		}
		e.broker = b
	}
	if e.md == nil {
		md, err := newMarketData(cfg.MarketData, e.now, logger)
		if err != nil {
			return nil, err
		}
		e.md = md
	}

	e.cache = cache.New(cache.Config{
		DefaultGrace:    cfg.Cache.StaleGrace,
		CleanupInterval: cfg.Cache.CleanupInterval,
	}, cache.WithClock(e.now), cache.WithLogger(logger), cache.WithMetrics(e.metrics))

	cached := marketdata.NewCachedClient(e.md, e.cache, marketdata.TTLs{
		History:  cfg.Cache.MarketTTL,
		Info:     cfg.Cache.RangeTTL,
		Sector:   cfg.Cache.SectorTTL,
		Earnings: cfg.Cache.EarningsTTL,
		Grace:    cfg.Cache.StaleGrace,
	})

	pcfg := pipeline.Config{
		PortfolioTTL:        cfg.Cache.PortfolioTTL,
		StaleGrace:          cfg.Cache.StaleGrace,
		BenchmarkSymbol:     cfg.Sync.BenchmarkSymbol,
		MaxRetries:          cfg.Sync.MaxRetries,
		RetryBaseDelay:      cfg.Sync.RetryBaseDelay,
		RetryJitter:         cfg.Sync.RetryJitter,
		InfoConcurrency:     cfg.Sync.InfoConcurrency,
		EarningsConcurrency: cfg.Sync.EarningsConcurrency,
	}
	popts := append([]pipeline.Option{
		pipeline.WithClock(e.now),
		pipeline.WithMetrics(e.metrics),
	}, e.pipelineOpts...)
	e.pipeline = pipeline.New(e.broker, cached, e.cache, pcfg, logger.Named("pipeline"), popts...)

	e.analyzer = signals.NewAnalyzer(cached, logger.Named("signals"),
		signals.WithClock(e.now),
		signals.WithMetrics(e.metrics),
		signals.WithHistoryPeriod(cfg.Signals.HistoryPeriod),
		signals.WithConcurrency(cfg.Sync.InfoConcurrency, cfg.Sync.EarningsConcurrency),
	)
	e.thresholds = thresholds(cfg.Signals)
	e.reportFor = cache.Cached(e.cache, cfg.Cache.SignalsTTL, signalsRequest.key, e.detect)

	e.market = market.NewService(cached, e.cache, cfg.Cache.MarketTTL, cfg.Cache.StaleGrace, logger.Named("market"))
	e.research = research.NewService(cached, e.cache, cfg.Cache.DefaultTTL, logger.Named("research"))

	e.cron = cron.New()
	return e, nil
}

func newBrokerage(cfg config.BrokerageConfig, now func() time.Time, logger *zap.Logger) (brokerage.Client, error) {
	switch cfg.Provider {
	case "robinhood":
		return robinhood.New(robinhood.Config{
			BaseURL:           cfg.BaseURL,
			Token:             cfg.Token,
			Timeout:           cfg.Timeout,
			RequestsPerMinute: cfg.RequestsPerMinute,
		}, logger.Named("robinhood")), nil
	case "mock", "":
		return brokermock.Demo(now()), nil
	}
	return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown brokerage provider %q", cfg.Provider))
}

func newMarketData(cfg config.MarketDataConfig, now func() time.Time, logger *zap.Logger) (marketdata.Client, error) {
	switch cfg.Provider {
	case "yahoo":
		return yahoo.New(yahoo.Config{
			BaseURL:               cfg.BaseURL,
			Timeout:               cfg.Timeout,
			InfoRequestsPerMinute: cfg.InfoRequestsPerMinute,
			HistoryConcurrency:    cfg.HistoryConcurrency,
		}, logger.Named("yahoo")), nil
	case "mock", "":
		return mdmock.Demo(now()), nil
	}
	return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown market data provider %q", cfg.Provider))
}

func thresholds(cfg config.SignalsConfig) signals.Thresholds {
	return signals.Thresholds{
		GapVolume:            cfg.GapVolumeThreshold,
		MAProximityPct:       cfg.MAProximityPct,
		NearHighPct:          cfg.NearHighPct,
		Breakout50Volume:     cfg.Breakout50VolumeRatio,
		Breakout200Volume:    cfg.Breakout200VolumeRatio,
		EarningsWindowDays:   cfg.EarningsWindowDays,
		EarningsImminentDays: cfg.EarningsImminentDays,
	}
}

// Pipeline returns the sync pipeline.
func (e *Engine) Pipeline() *pipeline.Pipeline { return e.pipeline }

// Market returns the index overview service.
func (e *Engine) Market() *market.Service { return e.market }

// Research returns the single-symbol research service.
func (e *Engine) Research() *research.Service { return e.research }

// Metrics returns the metrics registry, which may be nil.
func (e *Engine) Metrics() *metrics.Registry { return e.metrics }

// Thresholds returns the configured signal thresholds.
func (e *Engine) Thresholds() signals.Thresholds { return e.thresholds }

// Sync starts a sync, or returns nil when one is in flight.
func (e *Engine) Sync(ctx context.Context) *task.Task {
	return e.pipeline.Sync(ctx)
}

// Refresh drops the cached portfolio and starts a sync, or returns nil when
// one is in flight.
func (e *Engine) Refresh(ctx context.Context) *task.Task {
	return e.pipeline.Refresh(ctx)
}

// Snapshot returns the latest portfolio snapshot, or nil before the first sync.
func (e *Engine) Snapshot() *portfolio.Snapshot {
	return e.pipeline.Snapshot()
}

// Phase returns the pipeline phase.
func (e *Engine) Phase() pipeline.Phase { return e.pipeline.Phase() }

// NeedsSignIn reports whether the brokerage session has expired.
func (e *Engine) NeedsSignIn() bool { return e.pipeline.NeedsSignIn() }

// LastSync returns when the last sync finished.
func (e *Engine) LastSync() time.Time { return e.pipeline.LastSync() }

// LastError returns the error of the last sync, if any.
func (e *Engine) LastError() error { return e.pipeline.LastError() }

// signalsRequest carries the holdings a report is computed for. Its cache
// key covers the sorted symbol list and which accounts hold each symbol.
type signalsRequest struct {
	symbols  []string
	accounts map[string][]string
}

func (r signalsRequest) key() string {
	h := xxhash.New()
	for _, sym := range r.symbols {
		h.WriteString(sym)
		h.WriteString("=")
		h.WriteString(strings.Join(r.accounts[sym], ","))
		h.WriteString(";")
	}
	return cache.KeySignals + strings.Join(r.symbols, ",") + "@" + strconv.FormatUint(h.Sum64(), 16)
}

func newSignalsRequest(snap *portfolio.Snapshot) signalsRequest {
	return signalsRequest{symbols: snap.Symbols(), accounts: snap.SymbolAccounts()}
}

func (e *Engine) detect(ctx context.Context, req signalsRequest) (*signals.Report, error) {
	return e.analyzer.DetectAll(ctx, req.symbols, req.accounts, e.thresholds)
}

// Signals returns the signal report for the current holdings, served from
// the cache while it is fresh.
func (e *Engine) Signals(ctx context.Context) (*signals.Report, error) {
	snap := e.pipeline.Snapshot()
	if snap == nil {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("portfolio not loaded"))
	}
	return e.reportFor(ctx, newSignalsRequest(snap))
}

// WarmSignals recomputes the report for snap and replaces the cached one.
func (e *Engine) WarmSignals(ctx context.Context, snap *portfolio.Snapshot) (*signals.Report, error) {
	req := newSignalsRequest(snap)
	e.cache.Clear(req.key())
	report, err := e.reportFor(ctx, req)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.warmedGen = max(e.warmedGen, snap.Generation)
	e.mu.Unlock()
	select {
	case e.warmed <- struct{}{}:
	default:
	}
	return report, nil
}

// Warmed is signalled after each background signal warm-up.
func (e *Engine) Warmed() <-chan struct{} {
	return e.warmed
}

// Start runs an initial sync, schedules periodic syncs and warms the signal
// report after each completed sync. It blocks until ctx is done.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	e.running = true
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.mu.Unlock()

	events, unsubscribe := e.pipeline.Subscribe()
	defer unsubscribe()

	_, err := e.cron.AddFunc(e.cfg.Sync.Schedule, func() {
		if e.pipeline.Sync(ctx) == nil {
			e.logger.Debug("scheduled sync skipped, sync in flight")
		}
	})
	if err != nil {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		cancel()
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("sync schedule %q: %w", e.cfg.Sync.Schedule, err))
	}
	e.logger.Info("engine starting",
		zap.String("schedule", e.cfg.Sync.Schedule),
		zap.String("brokerage", e.cfg.Brokerage.Provider),
		zap.String("market_data", e.cfg.MarketData.Provider),
	)

	e.cron.Start()
	e.pipeline.Sync(ctx)

	for {
		select {
		case <-ctx.Done():
			stopped := e.cron.Stop()
			<-stopped.Done()
			e.logger.Info("engine shutting down")
			e.mu.Lock()
			e.running = false
			e.mu.Unlock()
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			e.onEvent(ctx, ev)
		}
	}
}

// onEvent warms signals once per generation, when the sync that produced
// it has gone idle with enrichment applied.
func (e *Engine) onEvent(ctx context.Context, ev pipeline.Event) {
	if ev.Phase != pipeline.Idle || ev.Snapshot == nil || !ev.Snapshot.Enriched() {
		return
	}
	e.mu.Lock()
	done := ev.Snapshot.Generation <= e.warmedGen
	e.mu.Unlock()
	if done {
		return
	}
	report, err := e.WarmSignals(ctx, ev.Snapshot)
	if err != nil {
		e.logger.Warn("signal warm-up failed",
			zap.Uint64("generation", ev.Snapshot.Generation),
			zap.Error(err),
		)
		return
	}
	e.logger.Info("signals warmed",
		zap.Uint64("generation", ev.Snapshot.Generation),
		zap.Any("counts", report.Counts()),
	)
}

// Stop cancels a running Start.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

// Stats returns a summary of the engine state.
func (e *Engine) Stats() map[string]any {
	e.mu.Lock()
	running, warmed := e.running, e.warmedGen
	e.mu.Unlock()

	stats := map[string]any{
		"running":        running,
		"phase":          e.pipeline.Phase().String(),
		"needs_sign_in":  e.pipeline.NeedsSignIn(),
		"signals_warmed": warmed,
		"cache_entries":  e.cache.Len(),
		"schedule":       e.cfg.Sync.Schedule,
		"brokerage":      e.cfg.Brokerage.Provider,
		"market_data":    e.cfg.MarketData.Provider,
	}
	if snap := e.pipeline.Snapshot(); snap != nil {
		stats["generation"] = snap.Generation
		stats["completeness"] = snap.Completeness
		stats["accounts"] = len(snap.Accounts)
	}
	if last := e.pipeline.LastSync(); !last.IsZero() {
		stats["last_sync"] = last
	}
	if err := e.pipeline.LastError(); err != nil {
		stats["last_error"] = err.Error()
	}
	return stats
}
