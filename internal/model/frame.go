package model

import "time"

// FrameRow holds the derived indicator values for one series index.
// A nil field means the indicator has not warmed up at that index.
type FrameRow struct {
	Time      time.Time `json:"time"`
	Close     float64   `json:"close"`
	SMA20     *float64  `json:"sma20"`
	SMA50     *float64  `json:"sma50"`
	RSI       *float64  `json:"rsi"`
	MACD      *float64  `json:"macd"`
	Signal    *float64  `json:"signal"`
	Histogram *float64  `json:"hist"`
}

// IndicatorFrame is aligned 1:1 with the Series it was built from.
type IndicatorFrame []FrameRow

// LastRSI returns the oscillator value at the last index.
func (f IndicatorFrame) LastRSI() (float64, bool) {
	if len(f) == 0 || f[len(f)-1].RSI == nil {
		return 0, false
	}
	return *f[len(f)-1].RSI, true
}

// HistogramAt returns the histogram value at index i (negative i counts from the end).
func (f IndicatorFrame) HistogramAt(i int) (float64, bool) {
	if i < 0 {
		i += len(f)
	}
	if i < 0 || i >= len(f) || f[i].Histogram == nil {
		return 0, false
	}
	return *f[i].Histogram, true
}
