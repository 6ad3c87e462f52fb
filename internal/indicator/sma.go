// Package indicator provides the price-series math used by strategies.
package indicator

// warmup sums the first period prices. Callers must check the length.
func warmup(prices []float64, period int) float64 {
	var sum float64
	for _, p := range prices[:period] {
		sum += p
	}
	return sum
}

// SMA returns the simple moving average series. The result has
// len(prices)-period+1 values, one per full window, oldest first.
func SMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return []float64{}
	}

	out := make([]float64, 0, len(prices)-period+1)
	sum := warmup(prices, period)
	out = append(out, sum/float64(period))

	for i := period; i < len(prices); i++ {
		sum += prices[i] - prices[i-period]
		out = append(out, sum/float64(period))
	}
	return out
}

// LatestSMA returns only the most recent full-window average. Strategies
// that decide off the current bar use this instead of the whole series.
func LatestSMA(prices []float64, period int) (float64, bool) {
	if period <= 0 || len(prices) < period {
		return 0, false
	}
	return warmup(prices[len(prices)-period:], period) / float64(period), true
}

// EMA returns the exponential moving average series, seeded with the SMA
// of the first window. Same shape as SMA.
func EMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return []float64{}
	}

	out := make([]float64, 0, len(prices)-period+1)
	k := 2.0 / float64(period+1)

	ema := warmup(prices, period) / float64(period)
	out = append(out, ema)

	for i := period; i < len(prices); i++ {
		ema += (prices[i] - ema) * k
		out = append(out, ema)
	}
	return out
}
