package indicator

import "github.com/andreyvoland980-afk/xrp-analysis-spa/internal/model"

// Periods used for the indicator frame.
const (
	FastMAPeriod = 20
	SlowMAPeriod = 50
	RSIPeriod    = 14
)

// Set is the full indicator output for one close series.
type Set struct {
	SMA20 []float64
	SMA50 []float64
	RSI   []float64
	MACD  MACD
}

// Compute derives every frame indicator from closes.
func Compute(closes []float64) Set {
	return Set{
		SMA20: MovingAverage(closes, FastMAPeriod),
		SMA50: MovingAverage(closes, SlowMAPeriod),
		RSI:   Oscillator(closes, RSIPeriod),
		MACD:  ConvergenceDivergence(closes, MACDFast, MACDSlow, MACDSignal),
	}
}

// BuildFrame computes the indicator set for s and aligns it one row per point.
func BuildFrame(s model.Series) model.IndicatorFrame {
	return FrameFrom(s, Compute(s.Closes()))
}

// FrameFrom aligns an already computed set with the series it came from.
func FrameFrom(s model.Series, set Set) model.IndicatorFrame {
	frame := make(model.IndicatorFrame, len(s))
	for i, p := range s {
		frame[i] = model.FrameRow{
			Time:      p.Time,
			Close:     p.Close,
			SMA20:     ptr(set.SMA20[i]),
			SMA50:     ptr(set.SMA50[i]),
			RSI:       ptr(set.RSI[i]),
			MACD:      ptr(set.MACD.Line[i]),
			Signal:    ptr(set.MACD.Signal[i]),
			Histogram: ptr(set.MACD.Histogram[i]),
		}
	}
	return frame
}

func ptr(v float64) *float64 {
	if !Defined(v) {
		return nil
	}
	return &v
}
