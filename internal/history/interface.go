// Package history provides historical daily price series for backtests.
package history

import (
	"context"
	"time"

	"github.com/quantfold/backtestd/internal/core"
)

// Provider defines the interface for fetching daily bar series.
// Implementations return bars ordered by date ascending; an empty or
// missing series yields an error matching core.ErrNoData.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, symbol string, start, end time.Time) ([]core.Bar, error)
}

// Day truncates a timestamp to its UTC calendar day. All bar dates are
// normalized through this so calendar union and per-day lookups agree
// across providers.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
