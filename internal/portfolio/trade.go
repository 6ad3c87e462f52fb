package portfolio

import (
	"time"

	"github.com/quantfold/backtestd/internal/core"
)

// Trade represents a single executed fill. A BUY opens or adds to a
// position and has no exit fields. A SELL realizes P&L against the
// position's average cost: its entry fields describe the position being
// reduced (date first opened, average cost), its exit fields the fill.
// Trades are immutable once returned by Execute.
type Trade struct {
	Symbol     string     `json:"symbol"`
	Side       core.Side  `json:"side"`
	Quantity   int64      `json:"quantity"`
	EntryDate  time.Time  `json:"entry_date"`
	EntryPrice float64    `json:"entry_price"`
	ExitDate   *time.Time `json:"exit_date,omitempty"`
	ExitPrice  float64    `json:"exit_price,omitempty"`
	PnL        float64    `json:"pnl"`
	Commission float64    `json:"commission"`
	Reason     string     `json:"reason,omitempty"`
}

// IsClosed returns true if the trade has an exit
func (t Trade) IsClosed() bool {
	return t.ExitDate != nil
}

// IsWin returns true if the trade realized a profit
func (t Trade) IsWin() bool {
	return t.IsClosed() && t.PnL > 0
}
