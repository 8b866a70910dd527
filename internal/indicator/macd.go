package indicator

// MACD is the convergence/divergence triple, each slice aligned with the input.
type MACD struct {
	Line      []float64
	Signal    []float64
	Histogram []float64
}

// Standard MACD periods.
const (
	MACDFast   = 12
	MACDSlow   = 26
	MACDSignal = 9
)

// ConvergenceDivergence computes line = EMA(fast) - EMA(slow), signal = EMA of
// the line, and histogram = line - signal. All three are defined at every index.
func ConvergenceDivergence(closes []float64, fast, slow, signal int) MACD {
	emaFast := ExponentialAverage(closes, fast)
	emaSlow := ExponentialAverage(closes, slow)

	line := make([]float64, len(closes))
	for i := range closes {
		line[i] = emaFast[i] - emaSlow[i]
	}
	sig := ExponentialAverage(line, signal)

	hist := make([]float64, len(closes))
	for i := range line {
		hist[i] = line[i] - sig[i]
	}
	return MACD{Line: line, Signal: sig, Histogram: hist}
}
