// Package backtest implements the day-by-day portfolio simulation engine,
// its performance metrics, and the registry of runs.
package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/quantfold/backtestd/internal/core"
	"github.com/quantfold/backtestd/internal/portfolio"
)

// Status represents the lifecycle state of a backtest run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Config is the immutable input of a backtest run. TradingConfig and
// RiskConfig are opaque pass-throughs recorded with the run for future
// strategy hookup; the engine does not interpret them.
type Config struct {
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	Symbols        []string       `json:"symbols"`
	StartDate      time.Time      `json:"start_date"`
	EndDate        time.Time      `json:"end_date"`
	InitialCapital float64        `json:"initial_capital"`
	Benchmark      string         `json:"benchmark,omitempty"`
	Commission     float64        `json:"commission"`
	Slippage       float64        `json:"slippage"`
	Strategy       string         `json:"strategy,omitempty"`
	TradingConfig  map[string]any `json:"trading_config,omitempty"`
	RiskConfig     map[string]any `json:"risk_config,omitempty"`
}

// Validate rejects malformed configurations at construction time.
func (c *Config) Validate() error {
	switch {
	case c.Name == "":
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("name is required"))
	case len(c.Symbols) == 0:
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("at least one symbol is required"))
	case c.StartDate.IsZero() || c.EndDate.IsZero():
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("start and end dates are required"))
	case !c.EndDate.After(c.StartDate):
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("end date must be after start date"))
	case c.InitialCapital <= 0:
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("initial capital must be positive"))
	case c.Commission < 0 || c.Commission >= 1:
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("commission must be in [0, 1)"))
	case c.Slippage < 0 || c.Slippage >= 1:
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("slippage must be in [0, 1)"))
	}
	for _, s := range c.Symbols {
		if s == "" {
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("empty symbol in list"))
		}
	}
	return nil
}

// EquityPoint is one daily sample of the portfolio value.
type EquityPoint struct {
	Date           time.Time `json:"date"`
	Equity         float64   `json:"equity"`
	Cash           float64   `json:"cash"`
	PositionsValue float64   `json:"positions_value"`
}

// Metrics is the derived performance summary of a completed run. Degraded
// marks a record whose statistics could not be computed and were zeroed,
// so callers can tell "computed, all zero" from "failed to compute".
type Metrics struct {
	TotalReturn     float64 `json:"total_return"`
	AnnualReturn    float64 `json:"annual_return"`
	Volatility      float64 `json:"volatility"`
	SharpeRatio     float64 `json:"sharpe_ratio"`
	MaxDrawdown     float64 `json:"max_drawdown"`
	WinRate         float64 `json:"win_rate"`
	ProfitFactor    float64 `json:"profit_factor"`
	TotalTrades     int     `json:"total_trades"`
	WinningTrades   int     `json:"winning_trades"`
	LosingTrades    int     `json:"losing_trades"`
	AvgWin          float64 `json:"avg_win"`
	AvgLoss         float64 `json:"avg_loss"`
	LargestWin      float64 `json:"largest_win"`
	LargestLoss     float64 `json:"largest_loss"`
	BenchmarkReturn float64 `json:"benchmark_return"`
	Alpha           float64 `json:"alpha"`
	Beta            float64 `json:"beta"`
	Degraded        bool    `json:"degraded,omitempty"`
}

// MarshalJSON renders an infinite profit factor (no losing trades) as
// null, since JSON has no representation for infinity.
func (m Metrics) MarshalJSON() ([]byte, error) {
	type alias Metrics
	out := struct {
		alias
		ProfitFactor *float64 `json:"profit_factor"`
	}{alias: alias(m)}

	if !math.IsInf(m.ProfitFactor, 0) {
		pf := m.ProfitFactor
		out.ProfitFactor = &pf
	}
	return json.Marshal(out)
}

// Run is the mutable execution record of one backtest. All mutation goes
// through its methods; the internal mutex makes concurrent status reads
// safe while the engine goroutine drives the run forward.
type Run struct {
	ID        string
	Config    Config
	CreatedAt time.Time

	mu           sync.RWMutex
	status       Status
	trades       []portfolio.Trade
	equity       []EquityPoint
	startedAt    *time.Time
	completedAt  *time.Time
	errorMessage string
	metrics      *Metrics
	cancel       context.CancelFunc
}

func newRun(id string, cfg Config) *Run {
	return &Run{
		ID:        id,
		Config:    cfg,
		CreatedAt: time.Now().UTC(),
		status:    StatusPending,
	}
}

// Status returns the current lifecycle state.
func (r *Run) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// begin transitions pending -> running. Returns false if the run is not
// pending (already started, finished, or cancelled).
func (r *Run) begin() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusPending {
		return false
	}
	now := time.Now().UTC()
	r.status = StatusRunning
	r.startedAt = &now
	return true
}

// complete transitions running -> completed and attaches metrics.
func (r *Run) complete(m Metrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Terminal() {
		return
	}
	now := time.Now().UTC()
	r.status = StatusCompleted
	r.completedAt = &now
	r.metrics = &m
}

// fail transitions to failed, preserving partial progress.
func (r *Run) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Terminal() {
		return
	}
	now := time.Now().UTC()
	r.status = StatusFailed
	r.completedAt = &now
	if err != nil {
		r.errorMessage = err.Error()
	}
}

// markCancelled transitions to cancelled, preserving partial progress.
func (r *Run) markCancelled() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Terminal() {
		return
	}
	now := time.Now().UTC()
	r.status = StatusCancelled
	r.completedAt = &now
}

// armCancel attaches the context cancel function before the engine
// goroutine starts. Returns false if the run is not pending or was
// already armed, which makes Start idempotent-safe.
func (r *Run) armCancel(c context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusPending || r.cancel != nil {
		return false
	}
	r.cancel = c
	return true
}

// requestCancel cancels a pending run immediately, or signals a running
// one to stop at its next day boundary. Terminal runs cannot be
// cancelled.
func (r *Run) requestCancel() error {
	r.mu.Lock()
	cancel := r.cancel
	switch {
	case r.status.Terminal():
		r.mu.Unlock()
		return core.WrapError(core.ErrRunFinished, nil)
	case r.status == StatusPending:
		now := time.Now().UTC()
		r.status = StatusCancelled
		r.completedAt = &now
	}
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

func (r *Run) appendTrade(t portfolio.Trade) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, t)
}

func (r *Run) appendEquity(p EquityPoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.equity = append(r.equity, p)
}

// tradesSnapshot returns a copy of the accumulated trades.
func (r *Run) tradesSnapshot() []portfolio.Trade {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]portfolio.Trade, len(r.trades))
	copy(out, r.trades)
	return out
}

// equitySnapshot returns a copy of the accumulated equity curve.
func (r *Run) equitySnapshot() []EquityPoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]EquityPoint, len(r.equity))
	copy(out, r.equity)
	return out
}

// StatusSummary is the polling view of a run.
type StatusSummary struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	TotalTrades  int        `json:"total_trades"`
	EquityPoints int        `json:"equity_points"`
}

// Summary builds the polling view, including progress counters.
func (r *Run) Summary() StatusSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return StatusSummary{
		ID:           r.ID,
		Name:         r.Config.Name,
		Status:       r.status,
		CreatedAt:    r.CreatedAt,
		StartedAt:    r.startedAt,
		CompletedAt:  r.completedAt,
		ErrorMessage: r.errorMessage,
		TotalTrades:  len(r.trades),
		EquityPoints: len(r.equity),
	}
}

// Record is the full serializable state of a run.
type Record struct {
	ID           string            `json:"id"`
	Config       Config            `json:"config"`
	Status       Status            `json:"status"`
	Trades       []portfolio.Trade `json:"trades"`
	EquityCurve  []EquityPoint     `json:"equity_curve"`
	CreatedAt    time.Time         `json:"created_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Metrics      *Metrics          `json:"metrics,omitempty"`
}

// Snapshot builds the full serializable state of the run.
func (r *Run) Snapshot() Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec := Record{
		ID:           r.ID,
		Config:       r.Config,
		Status:       r.status,
		Trades:       make([]portfolio.Trade, len(r.trades)),
		EquityCurve:  make([]EquityPoint, len(r.equity)),
		CreatedAt:    r.CreatedAt,
		StartedAt:    r.startedAt,
		CompletedAt:  r.completedAt,
		ErrorMessage: r.errorMessage,
	}
	copy(rec.Trades, r.trades)
	copy(rec.EquityCurve, r.equity)
	if r.metrics != nil {
		m := *r.metrics
		rec.Metrics = &m
	}
	return rec
}

// ListItem is the listing view of a run.
type ListItem struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	Symbols     []string  `json:"symbols"`
	TotalReturn *float64  `json:"total_return,omitempty"`
}

func (r *Run) listItem() ListItem {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item := ListItem{
		ID:        r.ID,
		Name:      r.Config.Name,
		Status:    r.status,
		CreatedAt: r.CreatedAt,
		Symbols:   r.Config.Symbols,
	}
	if r.metrics != nil {
		tr := r.metrics.TotalReturn
		item.TotalReturn = &tr
	}
	return item
}
