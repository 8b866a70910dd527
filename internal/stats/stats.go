// Package stats provides the small set of descriptive statistics used by the
// analysis pipeline: mean, population standard deviation, and z-score.
package stats

import "math"

// Mean returns the arithmetic mean of values.
// The divisor is floored at 1 so an empty slice yields 0.
func Mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	n := len(values)
	if n == 0 {
		n = 1
	}
	return sum / float64(n)
}

// StdDev returns the population standard deviation of values (0 when empty).
func StdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := Mean(values)
	sq := make([]float64, len(values))
	for i, v := range values {
		d := v - m
		sq[i] = d * d
	}
	return math.Sqrt(Mean(sq))
}

// ZScore returns how many standard deviations value lies from the window mean.
// A flat or empty window has no spread; the score is 0 in that case.
func ZScore(value float64, window []float64) float64 {
	s := StdDev(window)
	if s == 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		return 0
	}
	return (value - Mean(window)) / s
}

// Returns computes simple period-over-period returns. The result has
// len(values)-1 entries. A zero previous value yields a zero return.
func Returns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		prev := values[i-1]
		if prev == 0 {
			continue
		}
		out[i-1] = (values[i] - prev) / prev
	}
	return out
}

// Tail returns the last n elements of values (all of them if n >= len).
func Tail(values []float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n >= len(values) {
		return values
	}
	return values[len(values)-n:]
}
