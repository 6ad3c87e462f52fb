package strategy

import (
	"fmt"
	"testing"

	"github.com/quantfold/backtestd/internal/core"
)

type stubStrategy struct {
	name    string
	signals []core.Signal
	err     error
}

func (s *stubStrategy) Name() string            { return s.name }
func (s *stubStrategy) Description() string     { return s.name }
func (s *stubStrategy) Lookback() int           { return 1 }
func (s *stubStrategy) Init(cfg Config) error   { return nil }
func (s *stubStrategy) Analyze(ctx AnalysisContext) ([]core.Signal, error) {
	return s.signals, s.err
}

func TestEngine_RegisterAndGet(t *testing.T) {
	e := NewEngine(nil)
	e.Register(&stubStrategy{name: "alpha"})

	if _, ok := e.Get("alpha"); !ok {
		t.Error("expected to find registered strategy")
	}
	if _, ok := e.Get("missing"); ok {
		t.Error("did not expect to find unregistered strategy")
	}
	if len(e.Names()) != 1 {
		t.Errorf("Names() = %v, want one entry", e.Names())
	}
}

func TestEngine_AnalyzeTagsStrategy(t *testing.T) {
	e := NewEngine(nil)
	s := &stubStrategy{
		name:    "alpha",
		signals: []core.Signal{{Symbol: "TEST", Side: core.SideBuy, Quantity: 10}},
	}

	signals := e.Analyze(s, AnalysisContext{Symbol: "TEST"})
	if len(signals) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(signals))
	}
	if signals[0].Strategy != "alpha" {
		t.Errorf("signal not tagged with strategy name: %q", signals[0].Strategy)
	}
}

func TestEngine_AnalyzeAbsorbsErrors(t *testing.T) {
	e := NewEngine(nil)
	s := &stubStrategy{name: "broken", err: fmt.Errorf("boom")}

	signals := e.Analyze(s, AnalysisContext{Symbol: "TEST"})
	if signals != nil {
		t.Errorf("expected nil signals on error, got %v", signals)
	}
}

func TestAnalysisContext_Close(t *testing.T) {
	ctx := AnalysisContext{Bars: []core.Bar{{Close: 100}, {Close: 105}}}
	if ctx.Close() != 105 {
		t.Errorf("Close() = %f, want 105", ctx.Close())
	}

	empty := AnalysisContext{}
	if empty.Close() != 0 {
		t.Errorf("Close() on empty context = %f, want 0", empty.Close())
	}
}
