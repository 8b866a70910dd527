// Package marketdata defines the upstream price sources: a historical series
// fetcher, an asset fundamentals fetcher, and a live trade stream.
package marketdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/model"
)

// ErrFetch is matched by every upstream fetch failure (see FetchError).
var ErrFetch = errors.New("market data fetch failed")

// FetchError describes a failed upstream request. errors.Is(err, ErrFetch)
// holds for every FetchError.
type FetchError struct {
	Source string // e.g. "market", "fundamentals"
	Status int    // HTTP status, 0 when the request never completed
	Err    error  // transport or decode error, may be nil
}

func (e *FetchError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("%s fetch failed: status %d", e.Source, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s fetch failed: %v", e.Source, e.Err)
	}
	return e.Source + " fetch failed"
}

func (e *FetchError) Is(target error) bool { return target == ErrFetch }
func (e *FetchError) Unwrap() error        { return e.Err }

// HistoryFetcher loads the historical close series.
type HistoryFetcher interface {
	// FetchSeries returns the closes for the last days in vsCurrency, oldest first.
	FetchSeries(ctx context.Context, days int, vsCurrency string) (model.Series, error)
}

// FundamentalsFetcher loads the asset overview.
type FundamentalsFetcher interface {
	FetchFundamentals(ctx context.Context, vsCurrency string) (Fundamentals, error)
}

// TickStream pushes live trade prints until ctx is cancelled.
type TickStream interface {
	Run(ctx context.Context, out chan<- model.Tick) error
}

// Fundamentals is a point-in-time overview of the tracked asset.
type Fundamentals struct {
	Name           string  `json:"name"`
	Symbol         string  `json:"symbol"`
	Currency       string  `json:"currency"`
	Price          float64 `json:"price"`
	MarketCap      float64 `json:"market_cap"`
	Volume24h      float64 `json:"volume_24h"`
	PriceChange24h float64 `json:"price_change_24h"`
	Circulating    float64 `json:"circulating_supply"`
	TotalSupply    float64 `json:"total_supply"`
}
