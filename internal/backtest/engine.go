package backtest

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/quantfold/backtestd/internal/archive"
	"github.com/quantfold/backtestd/internal/core"
	"github.com/quantfold/backtestd/internal/history"
	"github.com/quantfold/backtestd/internal/logger"
	"github.com/quantfold/backtestd/internal/metrics"
	"github.com/quantfold/backtestd/internal/portfolio"
	"github.com/quantfold/backtestd/internal/strategy"
)

// DefaultStrategy is used when a run's config names no strategy.
const DefaultStrategy = "momentum"

// progressInterval is how many simulated days pass between progress logs.
const progressInterval = 50

// archiveTimeout bounds the archive write after a run completes.
const archiveTimeout = 30 * time.Second

// Engine drives backtest runs day by day. Store and obs may be nil; runs
// then skip archiving and metric recording.
type Engine struct {
	provider   history.Provider
	strategies *strategy.Engine
	store      archive.Storage
	obs        *metrics.Registry
	logger     *zap.Logger
}

// NewEngine creates a new backtest engine.
func NewEngine(provider history.Provider, strategies *strategy.Engine, store archive.Storage, obs *metrics.Registry, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		provider:   provider,
		strategies: strategies,
		store:      store,
		obs:        obs,
		logger:     logger,
	}
}

// Execute runs the simulation for run until it reaches a terminal status.
// Cancelling ctx stops the run at the next day boundary with whatever
// trades and equity points it has accumulated.
func (e *Engine) Execute(ctx context.Context, run *Run) {
	if !run.begin() {
		e.logger.Debug("run not startable", zap.String("id", run.ID), zap.String("status", string(run.Status())))
		return
	}
	started := time.Now()
	log := logger.ForRun(e.logger, run.ID, run.Config.Name)
	log.Info("backtest started",
		zap.Strings("symbols", run.Config.Symbols),
		zap.Time("start", run.Config.StartDate),
		zap.Time("end", run.Config.EndDate),
	)

	defer func() {
		status := run.Status()
		if e.obs != nil {
			e.obs.RecordBacktest(string(status), time.Since(started).Seconds())
		}
		log.Info("backtest finished",
			zap.String("status", string(status)),
			zap.Duration("elapsed", time.Since(started)),
		)
	}()

	cfg := run.Config

	strat, ok := e.strategies.Get(strategyName(cfg))
	if !ok {
		run.fail(core.WrapError(core.ErrStrategyUnknown, nil))
		return
	}

	// A per-run cache keeps provider traffic down when the benchmark
	// overlaps the symbol list.
	cache := history.NewCache(e.provider)

	data := e.loadHistory(ctx, cache, cfg, log)
	if len(data) == 0 {
		run.fail(core.WrapError(core.ErrNoData, nil))
		return
	}
	benchmark := e.loadBenchmark(ctx, cache, cfg, log)

	calendar := tradingCalendar(data)
	pf := portfolio.New(cfg.InitialCapital, cfg.Commission, cfg.Slippage)

	lookback := strat.Lookback()
	if lookback < 1 {
		lookback = 1
	}

	// cursor[sym] is the index into data[sym] of the next unseen bar.
	cursor := make(map[string]int, len(data))

	for i, day := range calendar {
		if ctx.Err() != nil {
			run.markCancelled()
			log.Info("backtest cancelled", zap.Int("days_simulated", i))
			return
		}

		prices := make(map[string]float64)
		today := make(map[string][]core.Bar)
		for sym, bars := range data {
			j := cursor[sym]
			if j < len(bars) && bars[j].Date.Equal(day) {
				prices[sym] = bars[j].Close
				today[sym] = bars[max(0, j-lookback+1) : j+1]
				cursor[sym] = j + 1
			}
		}
		pf.UpdatePrices(day, prices)

		for sym, window := range today {
			signals := e.strategies.Analyze(strat, strategy.AnalysisContext{
				Symbol: sym,
				Date:   day,
				Bars:   window,
			})
			for _, sig := range signals {
				if e.obs != nil {
					e.obs.RecordSignal(sig.Strategy, string(sig.Side))
				}
				trade, err := pf.Execute(sym, sig.Side, sig.Quantity, prices[sym], day, sig.Reason)
				if err != nil {
					log.Debug("trade rejected",
						zap.String("symbol", sym),
						zap.String("side", string(sig.Side)),
						zap.Int64("quantity", sig.Quantity),
						zap.Error(err),
					)
					continue
				}
				run.appendTrade(*trade)
				if e.obs != nil {
					e.obs.RecordTrade(string(sig.Side))
				}
			}
		}

		run.appendEquity(EquityPoint{
			Date:           day,
			Equity:         pf.TotalValue(),
			Cash:           pf.Cash(),
			PositionsValue: pf.PositionsValue(),
		})

		if (i+1)%progressInterval == 0 {
			log.Info("backtest progress",
				zap.Int("day", i+1),
				zap.Int("total_days", len(calendar)),
				zap.Float64("equity", pf.TotalValue()),
			)
		}
	}

	m := ComputeMetrics(cfg.InitialCapital, run.equitySnapshot(), run.tradesSnapshot(), benchmark)
	run.complete(m)
	e.archiveRun(run, log)
}

func strategyName(cfg Config) string {
	if cfg.Strategy != "" {
		return cfg.Strategy
	}
	return DefaultStrategy
}

// loadHistory fetches each symbol's bars. A symbol that fails or comes
// back empty is logged and dropped; only a fully empty result fails the
// run, at the caller.
func (e *Engine) loadHistory(ctx context.Context, p history.Provider, cfg Config, log *zap.Logger) map[string][]core.Bar {
	data := make(map[string][]core.Bar, len(cfg.Symbols))
	for _, sym := range cfg.Symbols {
		bars, err := p.Fetch(ctx, sym, cfg.StartDate, cfg.EndDate)
		if err != nil {
			log.Warn("history fetch failed", zap.String("symbol", sym), zap.Error(err))
			continue
		}
		if len(bars) == 0 {
			log.Warn("no bars in range", zap.String("symbol", sym))
			continue
		}
		data[sym] = bars
		if e.obs != nil {
			e.obs.RecordBarsFetched(e.provider.Name(), len(bars))
		}
	}
	return data
}

// loadBenchmark fetches the benchmark series. Absence is not an error;
// the run proceeds and relative metrics stay zero.
func (e *Engine) loadBenchmark(ctx context.Context, p history.Provider, cfg Config, log *zap.Logger) []core.Bar {
	if cfg.Benchmark == "" {
		return nil
	}
	bars, err := p.Fetch(ctx, cfg.Benchmark, cfg.StartDate, cfg.EndDate)
	if err != nil {
		log.Warn("benchmark fetch failed", zap.String("benchmark", cfg.Benchmark), zap.Error(err))
		return nil
	}
	return bars
}

// tradingCalendar builds the sorted union of all bar dates. Symbols
// trade only on their own dates; the union lets mixed calendars
// (e.g. cross-market symbol lists) advance together.
func tradingCalendar(data map[string][]core.Bar) []time.Time {
	seen := make(map[time.Time]struct{})
	for _, bars := range data {
		for _, b := range bars {
			seen[b.Date] = struct{}{}
		}
	}
	days := make([]time.Time, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// archiveRun persists the finished record. Failures are logged only; the
// in-memory record remains authoritative.
func (e *Engine) archiveRun(run *Run, log *zap.Logger) {
	if e.store == nil {
		return
	}
	data, err := json.Marshal(run.Snapshot())
	if err != nil {
		log.Error("archive marshal failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := e.store.Write(ctx, archive.RunPath(run.ID), data); err != nil {
		log.Error("archive write failed", zap.Error(err))
		return
	}
	log.Info("run archived", zap.String("path", archive.RunPath(run.ID)))
}
