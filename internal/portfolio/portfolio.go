// Package portfolio simulates cash and position bookkeeping for backtests.
package portfolio

import (
	"fmt"
	"time"

	"github.com/quantfold/backtestd/internal/core"
)

// Portfolio tracks cash, positions, and valuation as simulated trades are
// applied. It models slippage as a fractional adverse price adjustment and
// commission as a fraction of trade notional. Short selling is not modeled:
// a SELL never exceeds the held quantity, and a BUY never exceeds available
// cash. Not safe for concurrent use; one Portfolio serves one run.
type Portfolio struct {
	initialCapital float64
	cash           float64
	commissionRate float64
	slippageRate   float64

	positions map[string]int64     // symbol -> held quantity
	avgCost   map[string]float64   // symbol -> weighted average cost per unit
	openedAt  map[string]time.Time // symbol -> date the position was first opened
	prices    map[string]float64   // symbol -> latest known price

	positionsValue float64
	totalValue     float64
}

// New creates a portfolio with the given starting cash and cost model.
func New(initialCapital, commissionRate, slippageRate float64) *Portfolio {
	return &Portfolio{
		initialCapital: initialCapital,
		cash:           initialCapital,
		commissionRate: commissionRate,
		slippageRate:   slippageRate,
		positions:      make(map[string]int64),
		avgCost:        make(map[string]float64),
		openedAt:       make(map[string]time.Time),
		prices:         make(map[string]float64),
		totalValue:     initialCapital,
	}
}

// Cash returns the current cash balance.
func (p *Portfolio) Cash() float64 { return p.cash }

// TotalValue returns cash plus mark-to-market value of open positions.
func (p *Portfolio) TotalValue() float64 { return p.totalValue }

// PositionsValue returns the mark-to-market value of open positions.
func (p *Portfolio) PositionsValue() float64 { return p.positionsValue }

// Position returns the held quantity for a symbol, zero if none.
func (p *Portfolio) Position(symbol string) int64 { return p.positions[symbol] }

// UpdatePrices merges new prices into the latest-known-price map and
// revalues the portfolio. Symbols absent from the map keep their last
// known price.
func (p *Portfolio) UpdatePrices(date time.Time, prices map[string]float64) {
	for symbol, price := range prices {
		p.prices[symbol] = price
	}

	p.positionsValue = 0
	for symbol, qty := range p.positions {
		p.positionsValue += float64(qty) * p.prices[symbol]
	}
	p.totalValue = p.cash + p.positionsValue
}

// Execute applies one fill. The execution price is the quoted price
// adjusted by slippage (worse for the trader), and commission is charged
// on the adjusted notional. A constraint violation returns an error
// matching core.ErrTradeRejected and leaves all state untouched.
func (p *Portfolio) Execute(symbol string, side core.Side, quantity int64, price float64, date time.Time, reason string) (*Trade, error) {
	if quantity <= 0 || price <= 0 {
		return nil, core.WrapError(core.ErrTradeRejected,
			fmt.Errorf("quantity %d at price %.4f", quantity, price))
	}

	switch side {
	case core.SideBuy:
		return p.executeBuy(symbol, quantity, price, date, reason)
	case core.SideSell:
		return p.executeSell(symbol, quantity, price, date, reason)
	default:
		return nil, core.WrapError(core.ErrTradeRejected, fmt.Errorf("unknown side %q", side))
	}
}

func (p *Portfolio) executeBuy(symbol string, quantity int64, price float64, date time.Time, reason string) (*Trade, error) {
	execPrice := price * (1 + p.slippageRate)
	tradeValue := float64(quantity) * execPrice
	commission := tradeValue * p.commissionRate
	totalCost := tradeValue + commission

	if p.cash < totalCost {
		// Chained under TRADE_REJECTED so callers can match either code.
		return nil, core.WrapError(core.ErrTradeRejected,
			core.WrapError(core.ErrInsufficientCash,
				fmt.Errorf("need %.2f, have %.2f", totalCost, p.cash)))
	}

	held := p.positions[symbol]
	if held == 0 {
		p.openedAt[symbol] = date
	}

	// Weighted average cost across lots, as a broker would report it.
	totalBasis := float64(held)*p.avgCost[symbol] + tradeValue
	p.positions[symbol] = held + quantity
	p.avgCost[symbol] = totalBasis / float64(held+quantity)

	p.cash -= totalCost
	p.revalue(symbol, execPrice)

	return &Trade{
		Symbol:     symbol,
		Side:       core.SideBuy,
		Quantity:   quantity,
		EntryDate:  date,
		EntryPrice: execPrice,
		Commission: commission,
		Reason:     reason,
	}, nil
}

func (p *Portfolio) executeSell(symbol string, quantity int64, price float64, date time.Time, reason string) (*Trade, error) {
	held := p.positions[symbol]
	if held < quantity {
		return nil, core.WrapError(core.ErrTradeRejected,
			core.WrapError(core.ErrInsufficientPosition,
				fmt.Errorf("selling %d, holding %d", quantity, held)))
	}

	execPrice := price * (1 - p.slippageRate)
	tradeValue := float64(quantity) * execPrice
	commission := tradeValue * p.commissionRate

	avgCost := p.avgCost[symbol]
	entryDate := p.openedAt[symbol]
	pnl := (execPrice-avgCost)*float64(quantity) - commission

	p.cash += tradeValue - commission
	p.positions[symbol] = held - quantity
	if p.positions[symbol] == 0 {
		delete(p.positions, symbol)
		delete(p.avgCost, symbol)
		delete(p.openedAt, symbol)
	}
	p.revalue(symbol, execPrice)

	exitDate := date
	return &Trade{
		Symbol:     symbol,
		Side:       core.SideSell,
		Quantity:   quantity,
		EntryDate:  entryDate,
		EntryPrice: avgCost,
		ExitDate:   &exitDate,
		ExitPrice:  execPrice,
		PnL:        pnl,
		Commission: commission,
		Reason:     reason,
	}, nil
}

// revalue folds a fill price into the price map and recomputes totals.
func (p *Portfolio) revalue(symbol string, fillPrice float64) {
	p.prices[symbol] = fillPrice

	p.positionsValue = 0
	for sym, qty := range p.positions {
		p.positionsValue += float64(qty) * p.prices[sym]
	}
	p.totalValue = p.cash + p.positionsValue
}
