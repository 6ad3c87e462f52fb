// Package strategy defines the pluggable signal-generation contract used
// by the backtest engine.
package strategy

import (
	"time"

	"github.com/quantfold/backtestd/internal/core"
)

// Config holds strategy configuration
type Config struct {
	Params map[string]any
}

// AnalysisContext provides one symbol's trailing data to a strategy. Bars
// is the trailing daily window ending at (and including) Date; strategies
// must never look past the last bar.
type AnalysisContext struct {
	Symbol string
	Date   time.Time
	Bars   []core.Bar
}

// Close returns the close price of the current day's bar.
func (c AnalysisContext) Close() float64 {
	if len(c.Bars) == 0 {
		return 0
	}
	return c.Bars[len(c.Bars)-1].Close
}

// Strategy defines the interface for signal generators. Analyze returns
// zero or more signals for the context's symbol and day; returning an
// error skips the symbol for that day without failing the run.
type Strategy interface {
	Name() string
	Description() string
	// Lookback is the number of trailing days of history the strategy
	// wants in AnalysisContext.Bars.
	Lookback() int
	Init(cfg Config) error
	Analyze(ctx AnalysisContext) ([]core.Signal, error)
}
