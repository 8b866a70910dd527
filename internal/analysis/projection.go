package analysis

import (
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/indicator"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/model"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/stats"
)

const (
	// MinProjectionPoints is the number of closes below which no move is projected.
	MinProjectionPoints = 30

	volatilityWindow = 24
	projectionDamp   = 0.8
)

// Project estimates the expected fractional move over the next bar and the
// resulting target price.
func Project(closes []float64) model.Projection {
	prob, _ := direction(closes, indicator.Compute(closes))
	return project(closes, prob)
}

func project(closes []float64, prob model.Probability) model.Projection {
	if len(closes) < MinProjectionPoints {
		last := 0.0
		if len(closes) > 0 {
			last = closes[len(closes)-1]
		}
		return model.Projection{Pct: 0, Target: last, Prob: prob}
	}

	sigma := stats.StdDev(stats.Tail(stats.Returns(closes), volatilityWindow))
	pct := (prob.Up - prob.Down) * sigma * projectionDamp
	last := closes[len(closes)-1]
	return model.Projection{Pct: pct, Target: last * (1 + pct), Prob: prob}
}
