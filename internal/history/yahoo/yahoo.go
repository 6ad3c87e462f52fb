// Package yahoo fetches daily bars from the Yahoo Finance chart API.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/quantfold/backtestd/internal/core"
	"github.com/quantfold/backtestd/internal/history"
)

const baseURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// validSymbol matches stock symbols like AAPL, MSFT, SPY, 0700.HK
var validSymbol = regexp.MustCompile(`^[A-Za-z0-9\-]{1,10}(\.[A-Za-z]{1,4})?$`)

// validateSymbol checks if a symbol has valid format
func validateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if !validSymbol.MatchString(symbol) {
		return fmt.Errorf("invalid symbol format: %s", symbol)
	}
	return nil
}

// Provider implements history.Provider against Yahoo Finance.
type Provider struct {
	client *http.Client
}

// New creates a new Yahoo provider.
func New() *Provider {
	return &Provider{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "yahoo"
}

// Fetch downloads daily bars for [start, end].
func (p *Provider) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]core.Bar, error) {
	if err := validateSymbol(symbol); err != nil {
		return nil, core.WrapError(core.ErrProviderFailed, err)
	}

	url := fmt.Sprintf("%s/%s?interval=1d&period1=%d&period2=%d",
		baseURL, symbol, start.Unix(), end.Unix())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, core.WrapError(core.ErrProviderFailed, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, core.WrapError(core.ErrProviderFailed, fmt.Errorf("fetching history: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, core.WrapError(core.ErrProviderFailed, fmt.Errorf("unexpected status: %d", resp.StatusCode))
	}

	var result chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, core.WrapError(core.ErrProviderFailed, fmt.Errorf("decoding response: %w", err))
	}

	return decodeBars(symbol, &result)
}

// decodeBars converts a chart response into a bar series, skipping bars
// with missing quote fields the way the upstream API emits them.
func decodeBars(symbol string, result *chartResponse) ([]core.Bar, error) {
	if result.Chart.Error != nil {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("yahoo error: %s", result.Chart.Error.Description))
	}
	if len(result.Chart.Result) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no data for symbol: %s", symbol))
	}

	r := result.Chart.Result[0]
	if len(r.Indicators.Quote) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no quotes for symbol: %s", symbol))
	}
	quotes := r.Indicators.Quote[0]

	bars := make([]core.Bar, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		o, h, l, c, v, ok := quotes.at(i)
		if !ok {
			continue // Skip missing data
		}
		bars = append(bars, core.Bar{
			Symbol: symbol,
			Date:   history.Day(time.Unix(int64(ts), 0)),
			Open:   o,
			High:   h,
			Low:    l,
			Close:  c,
			Volume: v,
		})
	}

	if len(bars) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("empty series for symbol: %s", symbol))
	}
	return bars, nil
}

// Yahoo API response types
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Timestamp  []int      `json:"timestamp"`
	Indicators indicators `json:"indicators"`
}

type indicators struct {
	Quote []quoteIndicator `json:"quote"`
}

type quoteIndicator struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*int     `json:"volume"`
}

// at returns the i'th OHLCV tuple. ok is false when any of the five
// arrays is short or carries null at i; the API nulls fields
// independently (volume in particular, on FX and index symbols).
func (q quoteIndicator) at(i int) (o, h, l, c float64, v int64, ok bool) {
	if i >= len(q.Open) || i >= len(q.High) || i >= len(q.Low) ||
		i >= len(q.Close) || i >= len(q.Volume) {
		return 0, 0, 0, 0, 0, false
	}
	if q.Open[i] == nil || q.High[i] == nil || q.Low[i] == nil ||
		q.Close[i] == nil || q.Volume[i] == nil {
		return 0, 0, 0, 0, 0, false
	}
	return *q.Open[i], *q.High[i], *q.Low[i], *q.Close[i], int64(*q.Volume[i]), true
}
