// Package analysis turns a price series into the directional estimate,
// support/resistance levels, one-bar projection and trade signal.
//
// Every function here is pure: it reads only its arguments and returns a new
// value. Callers serialize updates and pass in an immutable snapshot.
package analysis

import (
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/indicator"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/model"
)

// Evaluate runs the full pipeline over s in one pass. Indicators are computed
// once and shared by every stage. The result carries the last point's time.
func Evaluate(s model.Series) model.Evaluation {
	closes := s.Closes()
	set := indicator.Compute(closes)

	prob, comps := direction(closes, set)

	ev := model.Evaluation{
		Points:      len(s),
		Frame:       indicator.FrameFrom(s, set),
		Probability: prob,
		Components:  comps,
		Levels:      levels(closes, SignalLevelWindow, DefaultLevelTolerance),
		Projection:  project(closes, prob),
		Signal:      signal(closes, prob),
	}
	if last, ok := s.Last(); ok {
		ev.At = last.Time
		ev.LastClose = last.Close
	}
	if ev.Levels == nil {
		ev.Levels = []model.Level{}
	}
	return ev
}
