package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/stonks/internal/brokerage"
	"github.com/newthinker/stonks/internal/cache"
	"github.com/newthinker/stonks/internal/marketdata"
	"github.com/newthinker/stonks/internal/metrics"
	"github.com/newthinker/stonks/internal/portfolio"
	"github.com/newthinker/stonks/internal/task"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config holds the pipeline settings.
type Config struct {
	PortfolioTTL        time.Duration
	StaleGrace          time.Duration
	BenchmarkSymbol     string
	MaxRetries          int
	RetryBaseDelay      time.Duration
	RetryJitter         float64
	InfoConcurrency     int
	EarningsConcurrency int
}

// DefaultConfig returns the standard pipeline settings.
func DefaultConfig() Config {
	return Config{
		PortfolioTTL:        120 * time.Second,
		StaleGrace:          60 * time.Second,
		BenchmarkSymbol:     "^GSPC",
		MaxRetries:          5,
		RetryBaseDelay:      30 * time.Second,
		RetryJitter:         0.1,
		InfoConcurrency:     8,
		EarningsConcurrency: 10,
	}
}

// Event is delivered to subscribers on every phase change and snapshot write.
type Event struct {
	Phase    Phase
	Snapshot *portfolio.Snapshot
}

// Pipeline runs portfolio syncs. At most one sync is in flight; the
// current phase and latest snapshot are readable at any time.
type Pipeline struct {
	broker    brokerage.Client
	md        marketdata.Client
	cache     *cache.Cache
	processor *portfolio.Processor
	enricher  *Enricher
	cfg       Config
	logger    *zap.Logger
	metrics   *metrics.Registry
	now       func() time.Time
	sleep     func(context.Context, time.Duration) error
	rand      func() float64

	mu          sync.RWMutex
	phase       Phase
	snapshot    *portfolio.Snapshot
	generation  uint64
	needsSignIn bool
	lastErr     error
	lastSync    time.Time
	subs        map[int]chan Event
	nextSub     int
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithMetrics records sync metrics.
func WithMetrics(reg *metrics.Registry) Option {
	return func(p *Pipeline) { p.metrics = reg }
}

// WithSleep replaces the retry controller's wait.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(p *Pipeline) { p.sleep = sleep }
}

// WithRand replaces the retry controller's jitter source.
func WithRand(r func() float64) Option {
	return func(p *Pipeline) { p.rand = r }
}

// New creates a pipeline.
func New(broker brokerage.Client, md marketdata.Client, c *cache.Cache, cfg Config, logger *zap.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		broker: broker,
		md:     md,
		cache:  c,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		subs:   make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.processor = portfolio.NewProcessor(broker, logger, portfolio.WithClock(p.now))
	p.enricher = NewEnricher(md, logger, cfg.InfoConcurrency, cfg.EarningsConcurrency)
	p.enricher.now = p.now
	return p
}

// Phase returns the current phase.
func (p *Pipeline) Phase() Phase {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.phase
}

// Snapshot returns the latest snapshot, or nil before the first sync.
func (p *Pipeline) Snapshot() *portfolio.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot
}

// NeedsSignIn reports whether the last sync stopped on an expired session.
func (p *Pipeline) NeedsSignIn() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.needsSignIn
}

// LastError returns the error of the last sync, if any.
func (p *Pipeline) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

// LastSync returns when the last sync finished.
func (p *Pipeline) LastSync() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSync
}

// Subscribe returns a channel of events and a function to stop them.
// Slow subscribers miss events rather than block the pipeline.
func (p *Pipeline) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
			close(ch)
		})
	}
}

// Sync starts a sync in the background and returns its handle, or nil when
// one is already in flight. The sync is not bound to ctx's cancellation.
func (p *Pipeline) Sync(ctx context.Context) *task.Task {
	p.mu.Lock()
	if p.phase.Busy() {
		p.mu.Unlock()
		return nil
	}
	p.setPhaseLocked(Fetching)
	snap := p.snapshot
	p.mu.Unlock()
	p.notify(Event{Phase: Fetching, Snapshot: snap})

	bg := context.WithoutCancel(ctx)
	return task.Go(func() error { return p.run(bg) })
}

// Refresh drops the cached snapshot and starts a sync, so positions are
// re-fetched even when the cache is fresh. It returns nil when busy.
func (p *Pipeline) Refresh(ctx context.Context) *task.Task {
	if p.Phase().Busy() {
		return nil
	}
	p.cache.Clear(cache.KeyPortfolio)
	return p.Sync(ctx)
}

func (p *Pipeline) run(ctx context.Context) (err error) {
	log := p.logger.With(zap.String("run_id", uuid.NewString()))
	start := p.now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		p.metrics.RecordSync(result, p.now().Sub(start).Seconds())
		p.mu.Lock()
		p.lastErr = err
		p.lastSync = p.now()
		p.mu.Unlock()
	}()

	if snap, ok := p.restore(); ok {
		log.Info("portfolio restored from cache", zap.Uint64("generation", snap.Generation))
		p.finish(Idle)
		return nil
	}

	log.Info("sync started")
	refs, err := p.broker.ListAccounts(ctx)
	if err != nil {
		return p.abort(log, "list accounts", err)
	}

	results, authErr := p.fetchAccounts(ctx, refs, log)
	if authErr != nil {
		return p.abort(log, "process accounts", authErr)
	}

	p.mu.Lock()
	p.needsSignIn = false
	p.generation++
	gen := p.generation
	p.mu.Unlock()

	snap := portfolio.NewSnapshot(gen, p.now(), results.accounts, results.benchmark)
	p.store(snap)
	log.Info("positions loaded",
		zap.Int("accounts", len(results.accounts)),
		zap.Int("failed_accounts", results.failed),
	)

	p.transition(Analyzing)
	p.analyze(ctx, snap, log)
	log.Info("sync finished", zap.Duration("took", p.now().Sub(start)))
	return nil
}

// abort ends a sync before any snapshot is written.
func (p *Pipeline) abort(log *zap.Logger, stage string, err error) error {
	if brokerage.IsAuthError(err) {
		log.Warn("brokerage session expired", zap.String("stage", stage), zap.Error(err))
		p.mu.Lock()
		p.needsSignIn = true
		p.mu.Unlock()
	} else {
		log.Error("sync failed", zap.String("stage", stage), zap.Error(err))
	}
	p.finish(Idle)
	return err
}

type accountResults struct {
	accounts  []portfolio.AccountResult
	benchmark *float64
	failed    int
}

// fetchAccounts processes every account concurrently with the benchmark
// fetch. A failing account is logged and left out; only an expired session
// is returned as an error.
func (p *Pipeline) fetchAccounts(ctx context.Context, refs []brokerage.AccountRef, log *zap.Logger) (accountResults, error) {
	var (
		g       errgroup.Group
		out     = make([]*portfolio.AccountResult, len(refs))
		errs    = make([]error, len(refs))
		results accountResults
	)
	for i, ref := range refs {
		g.Go(func() error {
			out[i], errs[i] = p.processor.ProcessAccount(ctx, ref)
			return nil
		})
	}
	g.Go(func() error {
		results.benchmark = p.benchmark(ctx, log)
		return nil
	})
	_ = g.Wait()

	var authErr error
	for i, err := range errs {
		if err == nil {
			results.accounts = append(results.accounts, *out[i])
			continue
		}
		results.failed++
		p.metrics.RecordAccountFailure()
		log.Warn("account failed", zap.String("account", refs[i].ID), zap.Error(err))
		if authErr == nil && brokerage.IsAuthError(err) {
			authErr = err
		}
	}
	return results, authErr
}

// benchmark returns the benchmark's daily percent change, nil on failure.
func (p *Pipeline) benchmark(ctx context.Context, log *zap.Logger) *float64 {
	sym := p.cfg.BenchmarkSymbol
	if sym == "" {
		return nil
	}
	hist, err := p.md.GetHistory(ctx, []string{sym}, "5d")
	bars := hist[sym]
	if err != nil || len(bars) < 2 {
		log.Warn("benchmark unavailable", zap.String("symbol", sym), zap.Error(err))
		return nil
	}
	prev, last := bars[len(bars)-2].Close, bars[len(bars)-1].Close
	if prev <= 0 {
		return nil
	}
	pct := (last - prev) / prev * 100
	return &pct
}

// analyze runs enrichment and then retries failed symbols with backoff.
func (p *Pipeline) analyze(ctx context.Context, snap *portfolio.Snapshot, log *zap.Logger) {
	syms := snap.Symbols()
	if len(syms) == 0 {
		next := snap.Clone()
		next.Completeness = portfolio.CompletenessEnriched
		p.store(next)
		p.finish(Idle)
		return
	}

	enr := p.enricher.Enrich(ctx, syms)
	snap = p.patch(snap, enr, portfolio.CompletenessEnriched)
	log.Info("enrichment applied",
		zap.Int("symbols", len(syms)),
		zap.Int("failed", len(snap.Failed())),
	)

	backoff := NewBackoff(p.cfg.RetryBaseDelay, p.cfg.RetryJitter, p.cfg.MaxRetries)
	backoff.Sleep = p.sleep
	backoff.Rand = p.rand

	for failed := snap.Failed(); len(failed) > 0; failed = snap.Failed() {
		if p.Phase() != Retrying {
			p.transition(Retrying)
		}
		if !backoff.Next(ctx) {
			log.Warn("retry limit reached, data may be incomplete",
				zap.Strings("symbols", failed),
				zap.Int("attempts", backoff.Attempt()),
			)
			break
		}
		p.metrics.RecordRetry()
		log.Info("retrying enrichment",
			zap.Int("attempt", backoff.Attempt()),
			zap.Strings("symbols", failed),
		)
		enr = p.enricher.Enrich(ctx, failed)
		snap = p.patch(snap, enr, portfolio.CompletenessEnriched+backoff.Attempt())
	}
	p.finish(Idle)
}

// patch applies enrichment to a copy of snap and stores it.
func (p *Pipeline) patch(snap *portfolio.Snapshot, enr *Enrichment, completeness int) *portfolio.Snapshot {
	next := snap.Clone()
	enr.Apply(next)
	next.Completeness = completeness
	p.store(next)
	return next
}

// restore serves a fresh, enriched snapshot from the cache.
func (p *Pipeline) restore() (*portfolio.Snapshot, bool) {
	raw, ok := p.cache.Get(cache.KeyPortfolio)
	if !ok {
		return nil, false
	}
	snap, ok := raw.(*portfolio.Snapshot)
	if !ok || !snap.Enriched() {
		return nil, false
	}
	p.mu.Lock()
	p.generation = max(p.generation, snap.Generation)
	if supersedes(snap, p.snapshot) {
		p.snapshot = snap
	}
	phase := p.phase
	p.mu.Unlock()
	p.notify(Event{Phase: phase, Snapshot: snap})
	return snap, true
}

// store publishes snap unless a more complete snapshot of the same sync, or
// a newer sync, is already there. The cache entry follows the same rule.
func (p *Pipeline) store(snap *portfolio.Snapshot) {
	p.mu.Lock()
	if !supersedes(snap, p.snapshot) {
		p.mu.Unlock()
		return
	}
	p.snapshot = snap
	if raw, _, ok := p.cache.GetWithStale(cache.KeyPortfolio); ok {
		if cur, typed := raw.(*portfolio.Snapshot); typed && cur != snap && !supersedes(snap, cur) {
			p.mu.Unlock()
			p.notify(Event{Phase: p.Phase(), Snapshot: snap})
			return
		}
	}
	p.cache.Set(cache.KeyPortfolio, snap, p.cfg.PortfolioTTL, p.cfg.StaleGrace)
	phase := p.phase
	p.mu.Unlock()
	p.notify(Event{Phase: phase, Snapshot: snap})
}

func supersedes(next, cur *portfolio.Snapshot) bool {
	if cur == nil || cur == next {
		return true
	}
	if next.Generation != cur.Generation {
		return next.Generation > cur.Generation
	}
	return next.Completeness >= cur.Completeness
}

func (p *Pipeline) transition(to Phase) {
	p.mu.Lock()
	p.setPhaseLocked(to)
	snap := p.snapshot
	p.mu.Unlock()
	p.notify(Event{Phase: to, Snapshot: snap})
}

func (p *Pipeline) finish(to Phase) {
	if p.Phase() == to {
		return
	}
	p.transition(to)
}

func (p *Pipeline) setPhaseLocked(to Phase) {
	if !CanTransition(p.phase, to) {
		p.logger.Error("illegal phase transition",
			zap.Stringer("from", p.phase),
			zap.Stringer("to", to),
		)
		return
	}
	p.phase = to
	p.metrics.SetPhase(int(to))
}

func (p *Pipeline) notify(ev Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, ch := range p.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
