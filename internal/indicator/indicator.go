// Package indicator provides technical indicator calculations over close prices.
//
// Each indicator exists in two forms: a streaming type implementing Indicator,
// fed one close at a time, and a batch function returning a slice aligned 1:1
// with its input. Indices where an indicator has not warmed up hold NaN
// (see Defined); a missing value is never reported as zero.
package indicator

import "math"

// Indicator is the interface for the streaming indicators.
type Indicator interface {
	// Update feeds the next close and recalculates.
	Update(price float64)

	// Value returns the current value. Only meaningful when Ready is true.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool

	// Reset clears all state for reuse.
	Reset()
}

// Defined reports whether v holds an indicator value (is not the absent marker).
func Defined(v float64) bool { return !math.IsNaN(v) }

// Last returns the final element of values and whether it is defined.
func Last(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	v := values[len(values)-1]
	return v, Defined(v)
}

// Finite returns the defined, finite elements of values in order.
func Finite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// run feeds every value through ind and records Value() where Ready, NaN elsewhere.
func run(ind Indicator, values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		ind.Update(v)
		if ind.Ready() {
			out[i] = ind.Value()
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// absent returns a slice of n NaN values.
func absent(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
