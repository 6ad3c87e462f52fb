// Package alpaca fetches daily bars from the Alpaca market-data API.
package alpaca

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"github.com/quantfold/backtestd/internal/core"
	"github.com/quantfold/backtestd/internal/history"
)

// Compile-time interface check.
var _ history.Provider = (*Provider)(nil)

// Config holds Alpaca API credentials.
type Config struct {
	APIKey    string
	APISecret string
	BaseURL   string // optional data API override
	Feed      string // optional, e.g. "iex" or "sip"
}

// Provider implements history.Provider via the Alpaca market-data API.
type Provider struct {
	client *marketdata.Client
	feed   string
}

// New creates a new Alpaca provider with the given credentials.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("alpaca api key/secret"))
	}

	opts := marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.BaseURL != "" {
		opts.BaseURL = cfg.BaseURL
	}

	return &Provider{
		client: marketdata.NewClient(opts),
		feed:   cfg.Feed,
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "alpaca"
}

// Fetch downloads daily bars for [start, end].
func (p *Provider) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]core.Bar, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	req := marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end,
	}
	if p.feed != "" {
		req.Feed = marketdata.Feed(p.feed)
	}

	alpacaBars, err := p.client.GetBars(symbol, req)
	if err != nil {
		return nil, core.WrapError(core.ErrProviderFailed, fmt.Errorf("GetBars %s: %w", symbol, err))
	}
	if len(alpacaBars) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("symbol %s", symbol))
	}

	bars := make([]core.Bar, 0, len(alpacaBars))
	for _, ab := range alpacaBars {
		bars = append(bars, core.Bar{
			Symbol: symbol,
			Date:   history.Day(ab.Timestamp),
			Open:   ab.Open,
			High:   ab.High,
			Low:    ab.Low,
			Close:  ab.Close,
			Volume: int64(ab.Volume),
		})
	}
	return bars, nil
}
