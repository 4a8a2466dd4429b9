package indicator

import "math"

// ATR computes the Average True Range: true range per bar is
// max(high−low, |high−prevClose|, |low−prevClose|), ATR is the mean of the
// last period true ranges. Series must be parallel and oldest-first.
// Returns 0 when there are fewer than period+1 bars (period true ranges).
func ATR(highs, lows, closes []float64, period int) float64 {
	n := len(highs)
	if period <= 0 || n < period+1 || len(lows) != n || len(closes) != n {
		return 0
	}

	trs := trueRanges(highs, lows, closes)
	sum := 0.0
	for _, tr := range trs[len(trs)-period:] {
		sum += tr
	}
	return sum / float64(period)
}

// trueRanges returns the per-bar true range series, one element per bar
// after the first.
func trueRanges(highs, lows, closes []float64) []float64 {
	trs := make([]float64, 0, len(highs)-1)
	for i := 1; i < len(highs); i++ {
		tr := math.Max(highs[i]-lows[i],
			math.Max(math.Abs(highs[i]-closes[i-1]), math.Abs(lows[i]-closes[i-1])))
		trs = append(trs, tr)
	}
	return trs
}
