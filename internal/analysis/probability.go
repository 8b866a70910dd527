package analysis

import (
	"math"

	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/indicator"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/model"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/stats"
)

// MinDirectionPoints is the number of closes required before the
// probability model leaves its neutral default.
const MinDirectionPoints = 60

const (
	histogramWindow = 30

	rsiWeight      = 0.45
	trendWeight    = 0.35
	momentumWeight = 0.20

	logisticSlope = 3.0
)

// Direction estimates the probability of the next move being up or down.
// Fewer than MinDirectionPoints closes yield model.NeutralProbability.
func Direction(closes []float64) model.Probability {
	p, _ := direction(closes, indicator.Compute(closes))
	return p
}

// DirectionComponents is Direction plus the individual drivers of the score.
func DirectionComponents(closes []float64) (model.Probability, model.Components) {
	return direction(closes, indicator.Compute(closes))
}

func direction(closes []float64, set indicator.Set) (model.Probability, model.Components) {
	if len(closes) < MinDirectionPoints {
		return model.NeutralProbability, model.Components{}
	}
	last := closes[len(closes)-1]

	rsiLast, ok := indicator.Last(set.RSI)
	if !ok {
		rsiLast = 50
	}
	rsiTilt := (rsiLast - 50) / 50

	sma20, ok := indicator.Last(set.SMA20)
	if !ok {
		sma20 = last
	}
	sma50, ok := indicator.Last(set.SMA50)
	if !ok {
		sma50 = last
	}
	divisor := sma50
	if divisor == 0 {
		divisor = 1
	}
	maTrend := ((sma20 - sma50) / divisor) * 0.5

	hist := set.MACD.Histogram
	histLast, ok := indicator.Last(hist)
	if !ok {
		histLast = 0
	}
	window := indicator.Finite(stats.Tail(hist, histogramWindow))
	momentum := math.Tanh(stats.ZScore(histLast, window) / 2)

	score := rsiWeight*rsiTilt + trendWeight*maTrend + momentumWeight*momentum
	up := 1 / (1 + math.Exp(-logisticSlope*score))

	return model.Probability{Up: up, Down: 1 - up, Score: score},
		model.Components{RSITilt: rsiTilt, MATrend: maTrend, Momentum: momentum}
}
