package history

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/quantfold/backtestd/internal/core"
)

// Static serves bar series from memory. Used in tests and for replaying
// canned fixtures through the full engine without network access.
type Static struct {
	bars map[string][]core.Bar

	// FetchCount tracks upstream calls per symbol, for cache assertions.
	FetchCount map[string]int
}

// NewStatic creates an empty static provider.
func NewStatic() *Static {
	return &Static{
		bars:       make(map[string][]core.Bar),
		FetchCount: make(map[string]int),
	}
}

// Add registers bars for a symbol. Bars are stored sorted by date with
// dates normalized to UTC days.
func (s *Static) Add(symbol string, bars []core.Bar) {
	normalized := make([]core.Bar, len(bars))
	for i, b := range bars {
		b.Symbol = symbol
		b.Date = Day(b.Date)
		normalized[i] = b
	}
	sort.Slice(normalized, func(i, j int) bool {
		return normalized[i].Date.Before(normalized[j].Date)
	})
	s.bars[symbol] = normalized
}

// Name returns the provider identifier.
func (s *Static) Name() string {
	return "static"
}

// Fetch returns the registered bars within [start, end].
func (s *Static) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]core.Bar, error) {
	s.FetchCount[symbol]++

	all, ok := s.bars[symbol]
	if !ok {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("symbol %s", symbol))
	}

	startDay, endDay := Day(start), Day(end)
	var out []core.Bar
	for _, b := range all {
		if b.Date.Before(startDay) || b.Date.After(endDay) {
			continue
		}
		out = append(out, b)
	}
	if len(out) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("symbol %s in range", symbol))
	}
	return out, nil
}
