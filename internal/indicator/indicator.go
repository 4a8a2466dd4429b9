// Package indicator provides technical indicator calculations over ordered
// price/volume series (oldest-first slices).
//
// All functions are pure: the only state is the window the caller passes in.
// When a series is shorter than the requested lookback they return 0 (or the
// documented zero-valued struct) rather than an error — callers treat that
// as "insufficient history".
package indicator

import "math"

// MA returns the arithmetic mean of the last period values.
// Returns 0 when len(values) < period.
func MA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// EMA returns the final value of the exponential moving average recurrence
// over the whole series: seed = values[0], k = 2/(period+1),
// ema[i] = values[i]*k + ema[i-1]*(1-k).
// Returns 0 when len(values) < period.
func EMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	k := 2.0 / float64(period+1)
	ema := values[0]
	for _, v := range values[1:] {
		ema = v*k + ema*(1-k)
	}
	return ema
}

// EMASeries returns the full EMA recurrence array for the series. The result
// has the same length as values; element i is the EMA after consuming
// values[0..i]. Needed by MACD and ADX, which smooth derived series.
// Returns nil for an empty input.
func EMASeries(values []float64, period int) []float64 {
	if len(values) == 0 {
		return nil
	}
	k := 2.0 / float64(period+1)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

// round5 rounds to 5 decimal places, the precision stored for MACD values.
func round5(v float64) float64 {
	return math.Round(v*1e5) / 1e5
}
