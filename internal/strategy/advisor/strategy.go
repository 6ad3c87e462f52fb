// Package advisor implements a strategy that delegates the trading
// decision to an LLM provider.
package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/quantfold/backtestd/internal/core"
	"github.com/quantfold/backtestd/internal/indicator"
	"github.com/quantfold/backtestd/internal/llm"
	"github.com/quantfold/backtestd/internal/strategy"
)

const (
	defaultLookback = 30
	defaultQuantity = 100
	chatTimeout     = 30 * time.Second

	systemPrompt = `You are a trading assistant evaluating one symbol for one day.
Reply with a single JSON object: {"action": "buy"|"sell"|"hold", "reason": "..."}.
Base the decision only on the price history given. No other text.`
)

// Advisor asks an LLM provider for a buy/sell/hold decision from the
// trailing price window. Any provider or parse error yields no signal for
// that day; the backtest continues without it.
type Advisor struct {
	provider llm.Provider
	lookback int
	quantity int64
}

// decision is the JSON shape the model is asked to produce.
type decision struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

// New creates an advisor strategy backed by the given provider.
func New(provider llm.Provider) *Advisor {
	return &Advisor{
		provider: provider,
		lookback: defaultLookback,
		quantity: defaultQuantity,
	}
}

func (a *Advisor) Name() string {
	return "advisor"
}

func (a *Advisor) Description() string {
	return fmt.Sprintf("LLM-advised decisions via %s", a.provider.Name())
}

func (a *Advisor) Lookback() int {
	return a.lookback
}

func (a *Advisor) Init(cfg strategy.Config) error {
	if l, ok := cfg.Params["lookback"].(int); ok {
		if l < 2 {
			return fmt.Errorf("lookback must be at least 2, got %d", l)
		}
		a.lookback = l
	}
	if q, ok := cfg.Params["quantity"].(int); ok {
		if q <= 0 {
			return fmt.Errorf("quantity must be positive, got %d", q)
		}
		a.quantity = int64(q)
	}
	return nil
}

func (a *Advisor) Analyze(ctx strategy.AnalysisContext) ([]core.Signal, error) {
	if len(ctx.Bars) < a.lookback {
		return nil, nil
	}

	chatCtx, cancel := context.WithTimeout(context.Background(), chatTimeout)
	defer cancel()

	resp, err := a.provider.Complete(chatCtx, llm.Request{
		System:      systemPrompt,
		Prompt:      a.buildPrompt(ctx),
		MaxTokens:   256,
		Temperature: 0.2,
		JSONMode:    true,
	})
	if err != nil {
		return nil, core.WrapError(core.ErrLLMFailed, err)
	}

	d, err := parseDecision(resp.Content)
	if err != nil {
		return nil, core.WrapError(core.ErrLLMFailed, err)
	}

	var side core.Side
	switch strings.ToLower(d.Action) {
	case "buy":
		side = core.SideBuy
	case "sell":
		side = core.SideSell
	default:
		return nil, nil // hold
	}

	return []core.Signal{{
		Symbol:   ctx.Symbol,
		Side:     side,
		Quantity: a.quantity,
		Price:    ctx.Close(),
		Reason:   d.Reason,
	}}, nil
}

// buildPrompt summarizes the trailing window for the model: recent closes
// plus simple indicator context.
func (a *Advisor) buildPrompt(ctx strategy.AnalysisContext) string {
	closes := core.Closes(ctx.Bars)
	window := closes
	if len(window) > a.lookback {
		window = window[len(window)-a.lookback:]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Symbol: %s\nDate: %s\nCloses (oldest first): ", ctx.Symbol, ctx.Date.Format("2006-01-02"))
	for i, c := range window {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%.2f", c)
	}

	if sma := indicator.SMA(window, 20); len(sma) > 0 {
		fmt.Fprintf(&b, "\n20-day SMA: %.2f", sma[len(sma)-1])
	}
	if ema := indicator.EMA(window, 20); len(ema) > 0 {
		fmt.Fprintf(&b, "\n20-day EMA: %.2f", ema[len(ema)-1])
	}
	fmt.Fprintf(&b, "\nCurrent close: %.2f", ctx.Close())

	return b.String()
}

// parseDecision extracts the JSON decision, tolerating models that wrap
// the object in prose or code fences.
func parseDecision(content string) (*decision, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response: %q", content)
	}

	var d decision
	if err := json.Unmarshal([]byte(content[start:end+1]), &d); err != nil {
		return nil, fmt.Errorf("parsing decision: %w", err)
	}
	if d.Action == "" {
		return nil, fmt.Errorf("decision missing action")
	}
	return &d, nil
}
