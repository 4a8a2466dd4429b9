package indicator

// MACDResult holds the latest MACD line, signal line and histogram values,
// rounded to 5 decimals.
type MACDResult struct {
	Line      float64 `json:"macd_line"`
	Signal    float64 `json:"signal_line"`
	Histogram float64 `json:"histogram"`
}

// minMACDPoints is the slow EMA period; with fewer closes the MACD line is
// all seed noise, so the zero struct is returned instead.
const minMACDPoints = 26

// MACD computes Moving Average Convergence Divergence from closing prices:
// macd = EMA12 − EMA26 (as full series), signal = EMA9 of the macd series,
// histogram = macd − signal. Returns the zero struct when len(closes) < 26.
func MACD(closes []float64) MACDResult {
	if len(closes) < minMACDPoints {
		return MACDResult{}
	}

	ema12 := EMASeries(closes, 12)
	ema26 := EMASeries(closes, 26)

	macdLine := make([]float64, len(closes))
	for i := range closes {
		macdLine[i] = ema12[i] - ema26[i]
	}
	signalLine := EMASeries(macdLine, 9)

	last := len(closes) - 1
	return MACDResult{
		Line:      round5(macdLine[last]),
		Signal:    round5(signalLine[last]),
		Histogram: round5(macdLine[last] - signalLine[last]),
	}
}
