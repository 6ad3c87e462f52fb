package backtest

import (
	"encoding/json"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/quantfold/backtestd/internal/core"
	"github.com/quantfold/backtestd/internal/portfolio"
)

func curveOf(equities ...float64) []EquityPoint {
	curve := make([]EquityPoint, len(equities))
	d := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for i, e := range equities {
		curve[i] = EquityPoint{Date: d.AddDate(0, 0, i), Equity: e, Cash: e}
	}
	return curve
}

func closedTrade(pnl float64) portfolio.Trade {
	exit := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	return portfolio.Trade{
		Symbol:   "AAPL",
		Side:     core.SideSell,
		Quantity: 10,
		ExitDate: &exit,
		PnL:      pnl,
	}
}

func TestComputeMetrics_MaxDrawdown(t *testing.T) {
	m := ComputeMetrics(100000, curveOf(100000, 110000, 90000, 95000), nil, nil)

	want := (90000.0 - 110000.0) / 110000.0
	if math.Abs(m.MaxDrawdown-want) > 1e-9 {
		t.Errorf("max drawdown = %v, want %v", m.MaxDrawdown, want)
	}
	if math.Abs(m.MaxDrawdown - -0.1818) > 0.0001 {
		t.Errorf("max drawdown = %v, want about -0.1818", m.MaxDrawdown)
	}
}

func TestComputeMetrics_MonotonicCurveHasZeroDrawdown(t *testing.T) {
	m := ComputeMetrics(100000, curveOf(100000, 100500, 101000, 102000), nil, nil)
	if m.MaxDrawdown != 0 {
		t.Errorf("max drawdown = %v, want 0", m.MaxDrawdown)
	}
}

func TestComputeMetrics_NoCompletedTrades(t *testing.T) {
	open := portfolio.Trade{Symbol: "AAPL", Side: core.SideBuy, Quantity: 10}
	m := ComputeMetrics(100000, curveOf(100000, 101000), []portfolio.Trade{open}, nil)

	if m.TotalTrades != 0 {
		t.Errorf("total trades = %d, want 0", m.TotalTrades)
	}
	if m.WinRate != 0 {
		t.Errorf("win rate = %v, want 0", m.WinRate)
	}
	if m.ProfitFactor != 0 {
		t.Errorf("profit factor = %v, want 0", m.ProfitFactor)
	}
}

func TestComputeMetrics_TradeStats(t *testing.T) {
	trades := []portfolio.Trade{
		closedTrade(500),
		closedTrade(300),
		closedTrade(-200),
	}
	m := ComputeMetrics(100000, curveOf(100000, 100600), trades, nil)

	if m.TotalTrades != 3 || m.WinningTrades != 2 || m.LosingTrades != 1 {
		t.Errorf("trade counts = %d/%d/%d", m.TotalTrades, m.WinningTrades, m.LosingTrades)
	}
	if math.Abs(m.WinRate-2.0/3.0) > 1e-9 {
		t.Errorf("win rate = %v", m.WinRate)
	}
	if math.Abs(m.ProfitFactor-4.0) > 1e-9 {
		t.Errorf("profit factor = %v, want 4", m.ProfitFactor)
	}
	if m.AvgWin != 400 || m.AvgLoss != -200 {
		t.Errorf("avg win/loss = %v/%v", m.AvgWin, m.AvgLoss)
	}
	if m.LargestWin != 500 || m.LargestLoss != -200 {
		t.Errorf("largest win/loss = %v/%v", m.LargestWin, m.LargestLoss)
	}
}

func TestComputeMetrics_ProfitFactorInfiniteWithoutLosses(t *testing.T) {
	m := ComputeMetrics(100000, curveOf(100000, 100500), []portfolio.Trade{closedTrade(500)}, nil)
	if !math.IsInf(m.ProfitFactor, 1) {
		t.Errorf("profit factor = %v, want +Inf", m.ProfitFactor)
	}

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"profit_factor":null`) {
		t.Errorf("infinite profit factor not rendered as null: %s", data)
	}
}

func TestComputeMetrics_TotalAndAnnualReturn(t *testing.T) {
	m := ComputeMetrics(100000, curveOf(100000, 100500, 101000), nil, nil)

	if math.Abs(m.TotalReturn-0.01) > 1e-9 {
		t.Errorf("total return = %v, want 0.01", m.TotalReturn)
	}
	wantAnnual := math.Pow(1.01, 252.0/3.0) - 1
	if math.Abs(m.AnnualReturn-wantAnnual) > 1e-9 {
		t.Errorf("annual return = %v, want %v", m.AnnualReturn, wantAnnual)
	}
}

func TestComputeMetrics_SharpeZeroOnFlatCurve(t *testing.T) {
	m := ComputeMetrics(100000, curveOf(100000, 100000, 100000), nil, nil)
	if m.Volatility != 0 || m.SharpeRatio != 0 {
		t.Errorf("flat curve: volatility=%v sharpe=%v", m.Volatility, m.SharpeRatio)
	}
}

func TestComputeMetrics_Benchmark(t *testing.T) {
	bench := []core.Bar{
		{Symbol: "SPY", Close: 400},
		{Symbol: "SPY", Close: 410},
	}
	m := ComputeMetrics(100000, curveOf(100000, 105000), nil, bench)

	if math.Abs(m.BenchmarkReturn-0.025) > 1e-9 {
		t.Errorf("benchmark return = %v, want 0.025", m.BenchmarkReturn)
	}
	if math.Abs(m.Alpha-(0.05-0.025)) > 1e-9 {
		t.Errorf("alpha = %v, want 0.025", m.Alpha)
	}
	if m.Beta != 1.0 {
		t.Errorf("beta = %v, want 1.0", m.Beta)
	}
}

func TestComputeMetrics_NoBenchmarkGivesZeroRelatives(t *testing.T) {
	m := ComputeMetrics(100000, curveOf(100000, 105000), nil, nil)
	if m.BenchmarkReturn != 0 || m.Alpha != 0 {
		t.Errorf("benchmark return = %v, alpha = %v, want zeros", m.BenchmarkReturn, m.Alpha)
	}
}

func TestComputeMetrics_Degraded(t *testing.T) {
	cases := []struct {
		name    string
		capital float64
		curve   []EquityPoint
	}{
		{"empty curve", 100000, nil},
		{"zero capital", 0, curveOf(100000, 101000)},
		{"negative capital", -1, curveOf(100000, 101000)},
		{"non-positive equity", 100000, curveOf(100000, 0, 101000)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := ComputeMetrics(tc.capital, tc.curve, nil, nil)
			if !m.Degraded {
				t.Error("expected degraded metrics")
			}
			if m.TotalReturn != 0 || m.SharpeRatio != 0 || m.MaxDrawdown != 0 {
				t.Errorf("degraded metrics not zeroed: %+v", m)
			}
		})
	}
}

func TestComputeMetrics_Idempotent(t *testing.T) {
	curve := curveOf(100000, 100500, 99800, 101200)
	trades := []portfolio.Trade{closedTrade(700), closedTrade(-150)}
	bench := []core.Bar{{Close: 400}, {Close: 404}}

	first := ComputeMetrics(100000, curve, trades, bench)
	second := ComputeMetrics(100000, curve, trades, bench)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("metrics not idempotent:\nfirst  %+v\nsecond %+v", first, second)
	}
}

func TestSampleStdev(t *testing.T) {
	if got := sampleStdev([]float64{1}); got != 0 {
		t.Errorf("single sample stdev = %v, want 0", got)
	}
	got := sampleStdev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	want := math.Sqrt(32.0 / 7.0)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("stdev = %v, want %v", got, want)
	}
}
