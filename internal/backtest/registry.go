package backtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quantfold/backtestd/internal/core"
	"github.com/quantfold/backtestd/internal/metrics"
)

// DefaultMaxRuns caps how many finished runs the registry retains.
const DefaultMaxRuns = 100

// Registry owns the lifecycle of backtest runs: creation, start, status,
// cancellation, and eviction of old finished records. Runs execute on
// their own goroutines; the registry stays responsive throughout.
type Registry struct {
	engine *Engine
	obs    *metrics.Registry
	logger *zap.Logger

	mu      sync.RWMutex
	runs    map[string]*Run
	order   []string // creation order, for eviction
	maxRuns int
	counter int64

	wg sync.WaitGroup
}

// NewRegistry creates a registry backed by the given engine. maxRuns
// bounds retained finished records; values below 1 fall back to
// DefaultMaxRuns. obs may be nil.
func NewRegistry(engine *Engine, maxRuns int, obs *metrics.Registry, logger *zap.Logger) *Registry {
	if maxRuns < 1 {
		maxRuns = DefaultMaxRuns
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		engine:  engine,
		obs:     obs,
		logger:  logger,
		runs:    make(map[string]*Run),
		order:   make([]string, 0, maxRuns),
		maxRuns: maxRuns,
	}
}

// Create validates the configuration and registers a new pending run.
func (r *Registry) Create(cfg Config) (*Run, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.counter++
	run := newRun(fmt.Sprintf("bt_%d_%d", time.Now().UnixNano(), r.counter), cfg)

	r.evictLocked()
	r.runs[run.ID] = run
	r.order = append(r.order, run.ID)
	r.updateActiveLocked()

	r.logger.Info("backtest created",
		zap.String("id", run.ID),
		zap.String("name", cfg.Name),
		zap.Strings("symbols", cfg.Symbols),
	)
	return run, nil
}

// Start launches a pending run on its own goroutine. The run's lifetime
// is detached from the caller's context; only Cancel or Close stops it.
func (r *Registry) Start(id string) error {
	run, err := r.get(id)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	if !run.armCancel(cancel) {
		cancel()
		if run.Status().Terminal() {
			return core.WrapError(core.ErrRunFinished, nil)
		}
		return core.WrapError(core.ErrAlreadyStarted, nil)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		r.engine.Execute(ctx, run)
		r.mu.Lock()
		r.updateActiveLocked()
		r.mu.Unlock()
	}()
	return nil
}

// Cancel stops a pending or running backtest. Cancelling a finished run
// is an error.
func (r *Registry) Cancel(id string) error {
	run, err := r.get(id)
	if err != nil {
		return err
	}
	if err := run.requestCancel(); err != nil {
		return err
	}
	r.mu.Lock()
	r.updateActiveLocked()
	r.mu.Unlock()

	r.logger.Info("backtest cancel requested", zap.String("id", id))
	return nil
}

// Status returns the polling view of a run.
func (r *Registry) Status(id string) (StatusSummary, error) {
	run, err := r.get(id)
	if err != nil {
		return StatusSummary{}, err
	}
	return run.Summary(), nil
}

// Results returns the full record of a completed run. Runs that are
// still in flight, failed, or cancelled have no results.
func (r *Registry) Results(id string) (Record, error) {
	run, err := r.get(id)
	if err != nil {
		return Record{}, err
	}
	if run.Status() != StatusCompleted {
		return Record{}, core.WrapError(core.ErrNotCompleted, nil)
	}
	return run.Snapshot(), nil
}

// List returns all retained runs, newest first.
func (r *Registry) List() []ListItem {
	r.mu.RLock()
	items := make([]ListItem, 0, len(r.order))
	for _, id := range r.order {
		if run, ok := r.runs[id]; ok {
			items = append(items, run.listItem())
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items
}

// Close cancels every non-terminal run and waits for their goroutines.
func (r *Registry) Close() {
	r.mu.RLock()
	runs := make([]*Run, 0, len(r.runs))
	for _, run := range r.runs {
		runs = append(runs, run)
	}
	r.mu.RUnlock()

	for _, run := range runs {
		if !run.Status().Terminal() {
			_ = run.requestCancel()
		}
	}
	r.wg.Wait()
}

func (r *Registry) get(id string) (*Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, core.WrapError(core.ErrRunNotFound, fmt.Errorf("id %q", id))
	}
	return run, nil
}

// evictLocked drops the oldest finished runs until the registry is under
// capacity. Pending and running runs are never evicted.
func (r *Registry) evictLocked() {
	for len(r.runs) >= r.maxRuns {
		evicted := false
		for i, id := range r.order {
			run, ok := r.runs[id]
			if !ok {
				r.order = append(r.order[:i], r.order[i+1:]...)
				evicted = true
				break
			}
			if run.Status().Terminal() {
				delete(r.runs, id)
				r.order = append(r.order[:i], r.order[i+1:]...)
				r.logger.Debug("backtest evicted", zap.String("id", id))
				evicted = true
				break
			}
		}
		if !evicted {
			// Everything retained is still active.
			return
		}
	}
}

func (r *Registry) updateActiveLocked() {
	if r.obs == nil {
		return
	}
	active := 0
	for _, run := range r.runs {
		if !run.Status().Terminal() {
			active++
		}
	}
	r.obs.SetRunsActive(active)
}
