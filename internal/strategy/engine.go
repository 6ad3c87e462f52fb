package strategy

import (
	"sync"

	"go.uber.org/zap"

	"github.com/quantfold/backtestd/internal/core"
)

// Engine holds the registered strategies and dispatches analysis
type Engine struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	logger     *zap.Logger
}

// NewEngine creates a new strategy engine
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		strategies: make(map[string]Strategy),
		logger:     logger,
	}
}

// Register adds a strategy to the engine
func (e *Engine) Register(s Strategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategies[s.Name()] = s
}

// Get retrieves a strategy by name
func (e *Engine) Get(name string) (Strategy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.strategies[name]
	return s, ok
}

// Names returns the registered strategy names
func (e *Engine) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.strategies))
	for name := range e.strategies {
		names = append(names, name)
	}
	return names
}

// Analyze runs one strategy on the given context. Analysis errors are
// logged and absorbed: a misbehaving strategy skips a day, it does not
// fail the run.
func (e *Engine) Analyze(s Strategy, analysisCtx AnalysisContext) []core.Signal {
	signals, err := s.Analyze(analysisCtx)
	if err != nil {
		e.logger.Warn("strategy analysis failed",
			zap.String("strategy", s.Name()),
			zap.String("symbol", analysisCtx.Symbol),
			zap.Error(err),
		)
		return nil
	}

	for i := range signals {
		signals[i].Strategy = s.Name()
	}
	return signals
}
