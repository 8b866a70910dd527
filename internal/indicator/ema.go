package indicator

// EMA calculates Exponential Moving Average seeded with the first price.
// It is defined from the first update onward.
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
}

// NewEMA creates a new EMA indicator with the given period.
func NewEMA(period int) *EMA {
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMA) Update(price float64) {
	e.count++
	if e.count == 1 {
		e.current = price
		return
	}
	e.current = (price-e.current)*e.multiplier + e.current
}

func (e *EMA) Value() float64 { return e.current }
func (e *EMA) Ready() bool    { return e.count > 0 }

// Reset clears the EMA state for reuse.
func (e *EMA) Reset() {
	e.current = 0
	e.count = 0
}

// ExponentialAverage returns the EMA of values, k = 2/(period+1), seeded with
// the first raw value. Every index is defined.
func ExponentialAverage(values []float64, period int) []float64 {
	if period <= 0 {
		return absent(len(values))
	}
	return run(NewEMA(period), values)
}
