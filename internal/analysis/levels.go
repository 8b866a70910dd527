package analysis

import (
	"math"
	"sort"

	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/model"
)

// Level detection defaults.
const (
	DefaultLevelWindow    = 5
	SignalLevelWindow     = 6
	DefaultLevelTolerance = 0.004

	maxLevels = 8
)

// Levels clusters local extrema of the series into support/resistance levels.
//
// A point qualifies when its close equals the max or min of the closes in
// [i-window, i+window]. It joins the first existing level whose price lies
// within tolerance*close of it; the level keeps the price of its first member.
// Levels are returned by hits, highest first, at most 8. A series shorter
// than 2*window+1 has no levels.
func Levels(s model.Series, window int, tolerance float64) []model.Level {
	return levels(s.Closes(), window, tolerance)
}

func levels(closes []float64, window int, tolerance float64) []model.Level {
	if window < 0 || len(closes) < window*2+1 {
		return nil
	}

	var out []model.Level
	for i := window; i < len(closes)-window; i++ {
		c := closes[i]
		hi, lo := extremes(closes[i-window : i+window+1])
		if c != hi && c != lo {
			continue
		}

		tol := c * tolerance
		merged := false
		for j := range out {
			if math.Abs(out[j].Price-c) <= tol {
				out[j].Hits++
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, model.Level{Price: c, Hits: 1})
		}
	}

	sort.SliceStable(out, func(a, b int) bool { return out[a].Hits > out[b].Hits })
	if len(out) > maxLevels {
		out = out[:maxLevels]
	}
	return out
}

func extremes(seg []float64) (hi, lo float64) {
	hi, lo = math.Inf(-1), math.Inf(1)
	for _, v := range seg {
		if v > hi {
			hi = v
		}
		if v < lo {
			lo = v
		}
	}
	return hi, lo
}

// Nearest returns the closest level price strictly above and strictly below
// price. Either is nil when no level lies on that side.
func Nearest(levels []model.Level, price float64) (above, below *float64) {
	for _, l := range levels {
		p := l.Price
		switch {
		case p > price && (above == nil || p < *above):
			above = model.Float(p)
		case p < price && (below == nil || p > *below):
			below = model.Float(p)
		}
	}
	return above, below
}

// Classify labels a level relative to the last close.
func Classify(l model.Level, lastClose float64) model.LevelKind {
	if l.Price < lastClose {
		return model.LevelSupport
	}
	return model.LevelResistance
}

// Crossings returns the levels the close moved through going from prev to
// curr. Moving up crosses levels in (prev, curr]; moving down crosses levels
// in [curr, prev).
func Crossings(levels []model.Level, prev, curr float64) []model.LevelCross {
	if prev == curr {
		return nil
	}
	var out []model.LevelCross
	for _, l := range levels {
		switch {
		case prev < l.Price && l.Price <= curr:
			out = append(out, model.LevelCross{Level: l, Direction: model.CrossUp, Price: curr})
		case curr <= l.Price && l.Price < prev:
			out = append(out, model.LevelCross{Level: l, Direction: model.CrossDown, Price: curr})
		}
	}
	return out
}
