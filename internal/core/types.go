package core

import "time"

// Side represents the direction of a trade
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Bar represents one daily OHLCV candle
type Bar struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// IsValid checks if the bar has required fields
func (b Bar) IsValid() bool {
	return b.Symbol != "" && b.Close > 0 && !b.Date.IsZero()
}

// Signal represents a trading instruction produced by a strategy
type Signal struct {
	Symbol   string  `json:"symbol"`
	Side     Side    `json:"side"`
	Quantity int64   `json:"quantity"`
	Price    float64 `json:"price"`
	Reason   string  `json:"reason"`
	Strategy string  `json:"strategy,omitempty"`
}

// Closes extracts the close prices from a bar series, in order
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
