package model

import (
	"fmt"
	"math"
	"time"
)

// PricePoint is a single close observation for the tracked asset.
type PricePoint struct {
	Time  time.Time `json:"time"`
	Close float64   `json:"close"`
}

// Series is an ordered sequence of price points, oldest first.
// Timestamps are expected to be non-decreasing; this is not validated.
type Series []PricePoint

// Closes returns the close prices in series order.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Close
	}
	return out
}

// Last returns the most recent point and false if the series is empty.
func (s Series) Last() (PricePoint, bool) {
	if len(s) == 0 {
		return PricePoint{}, false
	}
	return s[len(s)-1], true
}

// LastClose returns the most recent close, or 0 and false when empty.
func (s Series) LastClose() (float64, bool) {
	p, ok := s.Last()
	return p.Close, ok
}

// WithLiveTick returns a copy of the series whose last close is replaced by price.
// A live tick never appends a point. An empty series is returned unchanged.
func (s Series) WithLiveTick(price float64) Series {
	if len(s) == 0 {
		return s
	}
	out := make(Series, len(s))
	copy(out, s)
	out[len(out)-1].Close = price
	return out
}

// Sanitize drops points whose close is NaN or infinite.
// Callers run it at the ingestion boundary; the analytics assume finite input.
func (s Series) Sanitize() Series {
	out := make(Series, 0, len(s))
	for _, p := range s {
		if math.IsNaN(p.Close) || math.IsInf(p.Close, 0) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// SeriesKey names a cached series by coin, quote currency and range,
// e.g. "ripple:usd:30d".
func SeriesKey(coin, vsCurrency string, days int) string {
	return fmt.Sprintf("%s:%s:%dd", coin, vsCurrency, days)
}
