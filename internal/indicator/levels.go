package indicator

import (
	"math"

	"cryptotracker/internal/model"
)

// Fibonacci returns retracement levels between a recent high and low.
func Fibonacci(high, low float64) model.FibLevels {
	diff := high - low
	return model.FibLevels{
		Level0:   high,
		Level382: high - diff*0.382,
		Level50:  high - diff*0.5,
		Level618: high - diff*0.618,
		Level100: low,
	}
}

// EntryScore rates how attractive the current price is as an entry within
// the recent high/low range, 0-100. Weighted blend: 50% proximity to the
// recent low, 40% proximity to the major Fibonacci retracement levels,
// 10% distance below the recent high.
func EntryScore(price, recentHigh, recentLow float64, fib model.FibLevels) float64 {
	rng := recentHigh - recentLow
	if rng == 0 {
		if price == recentHigh {
			return 100
		}
		return 0
	}

	lowProximity := clamp(100 * (1 - (price-recentLow)/rng))

	fibScore := 0.0
	for _, lw := range []struct {
		level  float64
		weight float64
	}{
		{fib.Level618, 60},
		{fib.Level50, 40},
		{fib.Level382, 20},
	} {
		proportion := math.Abs(price-lw.level) / rng
		fibScore += math.Max(0, lw.weight*(1-proportion))
	}

	highProximity := clamp(100 * (recentHigh - price) / rng)

	return math.Round((0.5*lowProximity+0.4*fibScore+0.1*highProximity)*100) / 100
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
