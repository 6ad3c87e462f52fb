// Package momentum implements the default trailing-average momentum rule.
package momentum

import (
	"fmt"

	"github.com/quantfold/backtestd/internal/core"
	"github.com/quantfold/backtestd/internal/indicator"
	"github.com/quantfold/backtestd/internal/strategy"
)

const (
	defaultWindow   = 20
	defaultQuantity = 100
	upperBand       = 1.02
	lowerBand       = 0.98
)

// Momentum emits a BUY when the close trades above the trailing moving
// average by more than 2%, and a SELL when it trades below by more than
// 2%. A symbol needs a full window of prior days before its first
// signal; days before that threshold emit nothing.
type Momentum struct {
	window   int
	quantity int64
}

// New creates a momentum strategy with the default 20-day window.
func New() *Momentum {
	return &Momentum{
		window:   defaultWindow,
		quantity: defaultQuantity,
	}
}

func (m *Momentum) Name() string {
	return "momentum"
}

func (m *Momentum) Description() string {
	return fmt.Sprintf("Momentum vs %d-day average (±2%% bands)", m.window)
}

// Lookback asks for one day beyond the window: the current bar plus
// window prior days.
func (m *Momentum) Lookback() int {
	return m.window + 1
}

func (m *Momentum) Init(cfg strategy.Config) error {
	if w, ok := cfg.Params["window"].(int); ok {
		if w < 2 {
			return fmt.Errorf("window must be at least 2, got %d", w)
		}
		m.window = w
	}
	if q, ok := cfg.Params["quantity"].(int); ok {
		if q <= 0 {
			return fmt.Errorf("quantity must be positive, got %d", q)
		}
		m.quantity = int64(q)
	}
	return nil
}

func (m *Momentum) Analyze(ctx strategy.AnalysisContext) ([]core.Signal, error) {
	if len(ctx.Bars) <= m.window {
		return nil, nil // Needs a full window of prior days first
	}

	closes := core.Closes(ctx.Bars)
	mean, ok := indicator.LatestSMA(closes, m.window)
	if !ok {
		return nil, nil
	}

	current := ctx.Close()

	switch {
	case current > mean*upperBand:
		return []core.Signal{{
			Symbol:   ctx.Symbol,
			Side:     core.SideBuy,
			Quantity: m.quantity,
			Price:    current,
			Reason:   fmt.Sprintf("close %.2f above %d-day average %.2f", current, m.window, mean),
		}}, nil
	case current < mean*lowerBand:
		return []core.Signal{{
			Symbol:   ctx.Symbol,
			Side:     core.SideSell,
			Quantity: m.quantity,
			Price:    current,
			Reason:   fmt.Sprintf("close %.2f below %d-day average %.2f", current, m.window, mean),
		}}, nil
	}

	return nil, nil
}
