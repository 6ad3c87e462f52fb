package backtest

import (
	"math"

	"github.com/quantfold/backtestd/internal/core"
	"github.com/quantfold/backtestd/internal/portfolio"
)

// tradingDaysPerYear is the annualization convention for daily samples.
const tradingDaysPerYear = 252

// riskFreeRate is the annual risk-free rate used in the Sharpe ratio.
const riskFreeRate = 0.02

// ComputeMetrics derives the performance summary from a finished equity
// curve and trade log. It is pure: calling it again on the same inputs
// yields the same result. An empty curve or non-positive initial capital
// produces a Degraded zero record rather than an error, so a run's
// results stay readable even when the statistics are meaningless.
func ComputeMetrics(initialCapital float64, curve []EquityPoint, trades []portfolio.Trade, benchmark []core.Bar) Metrics {
	if len(curve) == 0 || initialCapital <= 0 {
		return Metrics{Degraded: true}
	}

	final := curve[len(curve)-1].Equity
	totalReturn := final/initialCapital - 1

	days := float64(len(curve))
	annualReturn := math.Pow(1+totalReturn, tradingDaysPerYear/days) - 1

	returns, ok := dailyReturns(curve)
	if !ok {
		return Metrics{Degraded: true}
	}

	volatility := sampleStdev(returns) * math.Sqrt(tradingDaysPerYear)

	sharpe := 0.0
	if volatility > 0 {
		sharpe = (annualReturn - riskFreeRate) / volatility
	}

	m := Metrics{
		TotalReturn:  totalReturn,
		AnnualReturn: annualReturn,
		Volatility:   volatility,
		SharpeRatio:  sharpe,
		MaxDrawdown:  maxDrawdown(curve),
		Beta:         1.0,
	}
	tradeStats(&m, trades)

	if len(benchmark) >= 2 {
		first := benchmark[0].Close
		last := benchmark[len(benchmark)-1].Close
		if first > 0 {
			m.BenchmarkReturn = last/first - 1
			m.Alpha = totalReturn - m.BenchmarkReturn
		}
	}
	return m
}

// dailyReturns converts the equity curve to day-over-day returns. The
// first day has no prior sample and contributes a zero return. A
// non-positive equity value makes the series undefined.
func dailyReturns(curve []EquityPoint) ([]float64, bool) {
	returns := make([]float64, len(curve))
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev <= 0 {
			return nil, false
		}
		returns[i] = curve[i].Equity/prev - 1
	}
	return returns, true
}

// sampleStdev is the n-1 standard deviation; zero for fewer than two samples.
func sampleStdev(xs []float64) float64 {
	n := float64(len(xs))
	if n < 2 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / n

	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	return math.Sqrt(sq / (n - 1))
}

// maxDrawdown is the largest peak-to-trough decline, as a non-positive
// fraction of the running peak.
func maxDrawdown(curve []EquityPoint) float64 {
	peak := curve[0].Equity
	worst := 0.0
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			dd := (p.Equity - peak) / peak
			if dd < worst {
				worst = dd
			}
		}
	}
	return worst
}

// tradeStats fills the fields derived from closed trades. Open positions
// at the end of the run have no realized PnL and are excluded.
func tradeStats(m *Metrics, trades []portfolio.Trade) {
	var wins, losses []float64
	var grossWin, grossLoss float64

	for _, t := range trades {
		if !t.IsClosed() {
			continue
		}
		m.TotalTrades++
		switch {
		case t.PnL > 0:
			wins = append(wins, t.PnL)
			grossWin += t.PnL
			if t.PnL > m.LargestWin {
				m.LargestWin = t.PnL
			}
		case t.PnL < 0:
			losses = append(losses, t.PnL)
			grossLoss += -t.PnL
			if t.PnL < m.LargestLoss {
				m.LargestLoss = t.PnL
			}
		}
	}

	m.WinningTrades = len(wins)
	m.LosingTrades = len(losses)

	if m.TotalTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)
	}
	if len(wins) > 0 {
		m.AvgWin = grossWin / float64(len(wins))
	}
	if len(losses) > 0 {
		m.AvgLoss = -grossLoss / float64(len(losses))
	}

	switch {
	case grossLoss > 0:
		m.ProfitFactor = grossWin / grossLoss
	case grossWin > 0:
		m.ProfitFactor = math.Inf(1)
	default:
		m.ProfitFactor = 0
	}
}
