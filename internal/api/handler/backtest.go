// Package handler implements the REST handlers for backtest management.
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/quantfold/backtestd/internal/api/response"
	"github.com/quantfold/backtestd/internal/backtest"
	"github.com/quantfold/backtestd/internal/core"
	"github.com/quantfold/backtestd/internal/strategy"
)

const dateLayout = "2006-01-02"

// Defaults applied when a create request omits the cost model.
const (
	DefaultCommission = 0.001
	DefaultSlippage   = 0.0005
)

// CreateRequest is the request body for creating a backtest.
type CreateRequest struct {
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	Symbols        []string       `json:"symbols"`
	StartDate      string         `json:"start_date"`
	EndDate        string         `json:"end_date"`
	InitialCapital float64        `json:"initial_capital"`
	Benchmark      string         `json:"benchmark,omitempty"`
	Commission     *float64       `json:"commission,omitempty"`
	Slippage       *float64       `json:"slippage,omitempty"`
	Strategy       string         `json:"strategy,omitempty"`
	TradingConfig  map[string]any `json:"trading_config,omitempty"`
	RiskConfig     map[string]any `json:"risk_config,omitempty"`
	AutoStart      bool           `json:"auto_start,omitempty"`
}

// BacktestHandler handles backtest API requests.
type BacktestHandler struct {
	registry   *backtest.Registry
	strategies *strategy.Engine
}

// NewBacktestHandler creates a new backtest handler.
func NewBacktestHandler(registry *backtest.Registry, strategies *strategy.Engine) *BacktestHandler {
	return &BacktestHandler{
		registry:   registry,
		strategies: strategies,
	}
}

// Create registers a new backtest and, when auto_start is set, launches it.
func (h *BacktestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, core.WrapError(core.ErrConfigInvalid, err))
		return
	}

	cfg, err := h.buildConfig(req)
	if err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}

	run, err := h.registry.Create(cfg)
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}

	if req.AutoStart {
		if err := h.registry.Start(run.ID); err != nil {
			response.Error(w, response.StatusFor(err), err)
			return
		}
	}

	response.JSON(w, http.StatusCreated, run.Summary())
}

func (h *BacktestHandler) buildConfig(req CreateRequest) (backtest.Config, error) {
	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		return backtest.Config{}, core.WrapError(core.ErrConfigInvalid, err)
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		return backtest.Config{}, core.WrapError(core.ErrConfigInvalid, err)
	}

	commission := DefaultCommission
	if req.Commission != nil {
		commission = *req.Commission
	}
	slippage := DefaultSlippage
	if req.Slippage != nil {
		slippage = *req.Slippage
	}

	if req.Strategy != "" {
		if _, ok := h.strategies.Get(req.Strategy); !ok {
			return backtest.Config{}, core.WrapError(core.ErrStrategyUnknown, nil)
		}
	}

	return backtest.Config{
		Name:           req.Name,
		Description:    req.Description,
		Symbols:        req.Symbols,
		StartDate:      start.UTC(),
		EndDate:        end.UTC(),
		InitialCapital: req.InitialCapital,
		Benchmark:      req.Benchmark,
		Commission:     commission,
		Slippage:       slippage,
		Strategy:       req.Strategy,
		TradingConfig:  req.TradingConfig,
		RiskConfig:     req.RiskConfig,
	}, nil
}

// Start launches a pending backtest.
func (h *BacktestHandler) Start(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.registry.Start(id); err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}

	sum, err := h.registry.Status(id)
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}
	response.JSON(w, http.StatusAccepted, sum)
}

// Cancel stops a pending or running backtest.
func (h *BacktestHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.registry.Cancel(id); err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}

	sum, err := h.registry.Status(id)
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}
	response.JSON(w, http.StatusOK, sum)
}

// Status returns the polling view of a backtest.
func (h *BacktestHandler) Status(w http.ResponseWriter, r *http.Request) {
	sum, err := h.registry.Status(r.PathValue("id"))
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}
	response.JSON(w, http.StatusOK, sum)
}

// Results returns the full record of a completed backtest.
func (h *BacktestHandler) Results(w http.ResponseWriter, r *http.Request) {
	rec, err := h.registry.Results(r.PathValue("id"))
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}
	response.JSON(w, http.StatusOK, rec)
}

// List returns all retained backtests, newest first.
func (h *BacktestHandler) List(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.registry.List())
}

// Strategies returns the registered strategy names.
func (h *BacktestHandler) Strategies(w http.ResponseWriter, r *http.Request) {
	names := h.strategies.Names()
	out := make([]map[string]string, 0, len(names))
	for _, name := range names {
		s, ok := h.strategies.Get(name)
		if !ok {
			continue
		}
		out = append(out, map[string]string{
			"name":        s.Name(),
			"description": s.Description(),
		})
	}
	response.JSON(w, http.StatusOK, out)
}
