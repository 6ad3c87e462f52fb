package history

import (
	"context"
	"fmt"
	"time"

	"github.com/quantfold/backtestd/internal/core"
)

// Cache memoizes series fetched from an upstream provider for the lifetime
// of the instance, keyed by (symbol, start, end). It has no eviction and is
// NOT safe for concurrent use: one Cache serves exactly one backtest run,
// which fetches sequentially at the start of the run.
type Cache struct {
	upstream Provider
	series   map[string][]core.Bar
}

// NewCache wraps an upstream provider with per-run memoization.
func NewCache(upstream Provider) *Cache {
	return &Cache{
		upstream: upstream,
		series:   make(map[string][]core.Bar),
	}
}

// Name returns the upstream provider name.
func (c *Cache) Name() string {
	return c.upstream.Name()
}

// Fetch returns the cached series for the key, fetching from upstream on a
// miss. Upstream errors are not cached; a later call retries.
func (c *Cache) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]core.Bar, error) {
	key := cacheKey(symbol, start, end)
	if bars, ok := c.series[key]; ok {
		return bars, nil
	}

	bars, err := c.upstream.Fetch(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("symbol %s", symbol))
	}

	c.series[key] = bars
	return bars, nil
}

// Len returns the number of cached series.
func (c *Cache) Len() int {
	return len(c.series)
}

func cacheKey(symbol string, start, end time.Time) string {
	return fmt.Sprintf("%s_%s_%s", symbol, start.Format("2006-01-02"), end.Format("2006-01-02"))
}
