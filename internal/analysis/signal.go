package analysis

import (
	"math"

	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/indicator"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/model"
)

// MinSignalPoints is the series length required before a side is chosen.
const MinSignalPoints = 60

// EdgeThreshold is the probability a side needs before it is traded.
const EdgeThreshold = 0.55

const (
	longEntryBuffer  = 1.0005
	longStopFactor   = 0.992
	longTargetFactor = 1.015

	shortEntryBuffer  = 0.9995
	shortStopFactor   = 1.008
	shortTargetFactor = 0.985
)

// Signal reasons.
const (
	ReasonInsufficientData = "insufficient data"
	ReasonLongBreakout     = "up bias + breakout of nearest resistance"
	ReasonShortBreakdown   = "down bias + breakdown of nearest support"
	ReasonNoEdge           = "no edge above 55%"
)

// GenerateSignal derives the discrete trade recommendation for s.
func GenerateSignal(s model.Series) model.Signal {
	closes := s.Closes()
	prob, _ := direction(closes, indicator.Compute(closes))
	return signal(closes, prob)
}

func signal(closes []float64, prob model.Probability) model.Signal {
	if len(closes) < MinSignalPoints {
		return model.Signal{
			Side:     model.SideNeutral,
			LongPct:  50,
			ShortPct: 50,
			Reason:   ReasonInsufficientData,
		}
	}

	last := closes[len(closes)-1]
	above, below := Nearest(levels(closes, SignalLevelWindow, DefaultLevelTolerance), last)

	sig := model.Signal{
		LongPct:  percent(prob.Up),
		ShortPct: percent(prob.Down),
	}

	switch {
	case prob.Up > EdgeThreshold:
		entry := last
		if above != nil {
			entry = *above * longEntryBuffer
		}
		sl := entry * longStopFactor
		if below != nil {
			sl = math.Min(*below, sl)
		}
		sig.Side = model.SideLong
		sig.Entry = model.Float(entry)
		sig.StopLoss = model.Float(sl)
		sig.TakeProfit = model.Float(entry * longTargetFactor)
		sig.Reason = ReasonLongBreakout

	case prob.Down > EdgeThreshold:
		entry := last
		if below != nil {
			entry = *below * shortEntryBuffer
		}
		sl := entry * shortStopFactor
		if above != nil {
			sl = math.Max(*above, sl)
		}
		sig.Side = model.SideShort
		sig.Entry = model.Float(entry)
		sig.StopLoss = model.Float(sl)
		sig.TakeProfit = model.Float(entry * shortTargetFactor)
		sig.Reason = ReasonShortBreakdown

	default:
		sig.Side = model.SideNeutral
		sig.Reason = ReasonNoEdge
	}
	return sig
}

func percent(p float64) int {
	return int(math.Round(p * 100))
}
