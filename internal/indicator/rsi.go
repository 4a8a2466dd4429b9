package indicator

// RSI computes the Relative Strength Index using Wilder's smoothing: the
// initial average gain/loss is a simple mean of the first period deltas,
// then avg = (avg*(period-1) + current) / period over the remaining deltas.
// RSI = 100 − 100/(1+avgGain/avgLoss); returns 100 when avgLoss is 0.
// Returns 0 when there are fewer than period+1 prices (period deltas).
func RSI(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period+1 {
		return 0
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := prices[i] - prices[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	p := float64(period)
	for i := period + 1; i < len(prices); i++ {
		delta := prices[i] - prices[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
