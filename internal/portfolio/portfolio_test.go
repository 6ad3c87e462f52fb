package portfolio

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/backtestd/internal/core"
)

var testDay = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func TestExecute_RoundTrip(t *testing.T) {
	// Initial capital 100000, no slippage or commission.
	p := New(100000, 0, 0)

	buy, err := p.Execute("TEST", core.SideBuy, 100, 100, testDay, "entry")
	require.NoError(t, err)
	assert.Equal(t, 90000.0, p.Cash())
	assert.Equal(t, int64(100), p.Position("TEST"))
	assert.False(t, buy.IsClosed())
	assert.Equal(t, 100.0, buy.EntryPrice)

	sell, err := p.Execute("TEST", core.SideSell, 100, 110, testDay.AddDate(0, 0, 5), "exit")
	require.NoError(t, err)
	assert.Equal(t, 101000.0, p.Cash())
	assert.Equal(t, int64(0), p.Position("TEST"))
	require.True(t, sell.IsClosed())
	assert.Equal(t, 1000.0, sell.PnL)
	assert.Equal(t, 101000.0, p.TotalValue())
}

func TestExecute_SellCarriesTrueEntry(t *testing.T) {
	p := New(100000, 0, 0)

	_, err := p.Execute("TEST", core.SideBuy, 100, 100, testDay, "")
	require.NoError(t, err)

	exitDay := testDay.AddDate(0, 0, 10)
	sell, err := p.Execute("TEST", core.SideSell, 100, 110, exitDay, "")
	require.NoError(t, err)

	// Entry reflects when and at what average cost the position was opened,
	// not the sell date.
	assert.Equal(t, testDay, sell.EntryDate)
	assert.Equal(t, 100.0, sell.EntryPrice)
	assert.Equal(t, exitDay, *sell.ExitDate)
}

func TestExecute_WeightedAverageCost(t *testing.T) {
	p := New(100000, 0, 0)

	_, err := p.Execute("TEST", core.SideBuy, 100, 100, testDay, "")
	require.NoError(t, err)
	_, err = p.Execute("TEST", core.SideBuy, 100, 120, testDay.AddDate(0, 0, 1), "")
	require.NoError(t, err)

	// avg cost = (100*100 + 100*120) / 200 = 110
	sell, err := p.Execute("TEST", core.SideSell, 200, 115, testDay.AddDate(0, 0, 2), "")
	require.NoError(t, err)
	assert.Equal(t, 110.0, sell.EntryPrice)
	assert.InDelta(t, (115.0-110.0)*200, sell.PnL, 1e-9)
}

func TestExecute_RejectedInsufficientFunds(t *testing.T) {
	// Initial capital 100, buying 10 units at 50 costs 500.
	p := New(100, 0, 0)

	_, err := p.Execute("TEST", core.SideBuy, 10, 50, testDay, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInsufficientCash))
	assert.True(t, errors.Is(err, core.ErrTradeRejected))

	// No state mutation on rejection.
	assert.Equal(t, 100.0, p.Cash())
	assert.Equal(t, int64(0), p.Position("TEST"))
}

func TestExecute_RejectedOversell(t *testing.T) {
	p := New(100000, 0, 0)

	_, err := p.Execute("TEST", core.SideSell, 10, 100, testDay, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInsufficientPosition))
	assert.True(t, errors.Is(err, core.ErrTradeRejected))
	assert.Equal(t, 100000.0, p.Cash())
	assert.Equal(t, int64(0), p.Position("TEST"))
}

func TestExecute_RejectedPartialOversell(t *testing.T) {
	p := New(100000, 0, 0)

	_, err := p.Execute("TEST", core.SideBuy, 50, 100, testDay, "")
	require.NoError(t, err)

	_, err = p.Execute("TEST", core.SideSell, 51, 100, testDay, "")
	assert.True(t, errors.Is(err, core.ErrInsufficientPosition))
	assert.Equal(t, int64(50), p.Position("TEST"))
}

func TestExecute_SlippageAndCommission(t *testing.T) {
	p := New(100000, 0.001, 0.0005)

	buy, err := p.Execute("TEST", core.SideBuy, 100, 100, testDay, "")
	require.NoError(t, err)

	execPrice := 100 * 1.0005
	tradeValue := 100 * execPrice
	commission := tradeValue * 0.001
	assert.InDelta(t, execPrice, buy.EntryPrice, 1e-9)
	assert.InDelta(t, commission, buy.Commission, 1e-9)
	assert.InDelta(t, 100000-tradeValue-commission, p.Cash(), 1e-9)

	sell, err := p.Execute("TEST", core.SideSell, 100, 100, testDay, "")
	require.NoError(t, err)
	assert.InDelta(t, 100*0.9995, sell.ExitPrice, 1e-9)
	// Round trip at flat price loses slippage and commission both ways.
	assert.Less(t, p.Cash(), 100000.0)
}

func TestExecute_RejectsBadInput(t *testing.T) {
	p := New(100000, 0, 0)

	_, err := p.Execute("TEST", core.SideBuy, 0, 100, testDay, "")
	assert.True(t, errors.Is(err, core.ErrTradeRejected))

	_, err = p.Execute("TEST", core.SideBuy, 10, -5, testDay, "")
	assert.True(t, errors.Is(err, core.ErrTradeRejected))

	_, err = p.Execute("TEST", "SHORT", 10, 100, testDay, "")
	assert.True(t, errors.Is(err, core.ErrTradeRejected))
}

func TestUpdatePrices_Revalues(t *testing.T) {
	p := New(100000, 0, 0)

	_, err := p.Execute("TEST", core.SideBuy, 100, 100, testDay, "")
	require.NoError(t, err)

	p.UpdatePrices(testDay, map[string]float64{"TEST": 105})
	assert.Equal(t, 10500.0, p.PositionsValue())
	assert.Equal(t, p.Cash()+p.PositionsValue(), p.TotalValue())

	// Symbols missing from the update keep their last known price.
	p.UpdatePrices(testDay.AddDate(0, 0, 1), map[string]float64{"OTHER": 1})
	assert.Equal(t, 10500.0, p.PositionsValue())
}

func TestEquityIdentity_AfterEveryOperation(t *testing.T) {
	p := New(100000, 0.001, 0.0005)

	check := func() {
		assert.InDelta(t, p.Cash()+p.PositionsValue(), p.TotalValue(), 1e-6)
	}

	p.UpdatePrices(testDay, map[string]float64{"A": 100, "B": 50})
	check()
	p.Execute("A", core.SideBuy, 100, 100, testDay, "")
	check()
	p.Execute("B", core.SideBuy, 200, 50, testDay, "")
	check()
	p.UpdatePrices(testDay.AddDate(0, 0, 1), map[string]float64{"A": 110, "B": 45})
	check()
	p.Execute("A", core.SideSell, 100, 110, testDay.AddDate(0, 0, 1), "")
	check()
}

// Randomized sequences must never drive cash negative or positions below
// zero; rejected trades must leave state untouched.
func TestExecute_RandomizedInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	p := New(10000, 0.001, 0.0005)

	for i := 0; i < 5000; i++ {
		symbol := []string{"A", "B", "C"}[rng.Intn(3)]
		side := core.SideBuy
		if rng.Intn(2) == 1 {
			side = core.SideSell
		}
		qty := int64(rng.Intn(50) + 1)
		price := 1 + rng.Float64()*200

		cashBefore := p.Cash()
		posBefore := p.Position(symbol)

		_, err := p.Execute(symbol, side, qty, price, testDay.AddDate(0, 0, i), "fuzz")
		if err != nil {
			require.Equal(t, cashBefore, p.Cash(), "rejected trade mutated cash")
			require.Equal(t, posBefore, p.Position(symbol), "rejected trade mutated position")
		}

		require.GreaterOrEqual(t, p.Cash(), 0.0, "cash went negative at step %d", i)
		require.GreaterOrEqual(t, p.Position(symbol), int64(0), "position went negative at step %d", i)
		require.InDelta(t, p.Cash()+p.PositionsValue(), p.TotalValue(), 1e-6)
	}
}

// Cash conservation: final cash equals initial cash minus buy outlays plus
// sell proceeds, net of commissions.
func TestExecute_CashConservation(t *testing.T) {
	p := New(100000, 0.002, 0.001)

	var outlays, proceeds float64
	record := func(tr *Trade, err error) {
		if err != nil {
			return
		}
		if tr.Side == core.SideBuy {
			outlays += float64(tr.Quantity)*tr.EntryPrice + tr.Commission
		} else {
			proceeds += float64(tr.Quantity)*tr.ExitPrice - tr.Commission
		}
	}

	record(p.Execute("A", core.SideBuy, 100, 50, testDay, ""))
	record(p.Execute("B", core.SideBuy, 30, 120, testDay, ""))
	record(p.Execute("A", core.SideSell, 60, 55, testDay, ""))
	record(p.Execute("B", core.SideSell, 30, 118, testDay, ""))
	record(p.Execute("A", core.SideSell, 40, 52, testDay, ""))

	want := 100000 - outlays + proceeds
	if math.Abs(p.Cash()-want) > 1e-6 {
		t.Errorf("cash = %f, want %f", p.Cash(), want)
	}
}
