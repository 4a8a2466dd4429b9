package indicator

import "math"

// ADXResult holds the Average Directional Index and directional indicators.
type ADXResult struct {
	ADX     float64 `json:"adx"`
	PlusDI  float64 `json:"+di"`
	MinusDI float64 `json:"-di"`
}

// ADX computes trend strength from directional movement. Per bar:
// +DM = max(high−prevHigh, 0) when the up-move exceeds the down-move, else 0
// (symmetric for −DM), TR as in ATR. TR/+DM/−DM are smoothed with the EMA
// series helper over period, +DI/−DI = smoothed DM / smoothed TR × 100,
// DX = |+DI−−DI| / (+DI+−DI) × 100 per bar, and ADX is the smoothed DX.
// Returns the zero struct when there are fewer than period+1 bars.
func ADX(highs, lows, closes []float64, period int) ADXResult {
	n := len(highs)
	if period <= 0 || n < period+1 || len(lows) != n || len(closes) != n {
		return ADXResult{}
	}

	trs := trueRanges(highs, lows, closes)
	plusDM := make([]float64, len(trs))
	minusDM := make([]float64, len(trs))
	for i := 1; i < n; i++ {
		upMove := highs[i] - highs[i-1]
		downMove := lows[i-1] - lows[i]
		if upMove > downMove && upMove > 0 {
			plusDM[i-1] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i-1] = downMove
		}
	}

	smTR := EMASeries(trs, period)
	smPlus := EMASeries(plusDM, period)
	smMinus := EMASeries(minusDM, period)

	dx := make([]float64, len(trs))
	var plusDI, minusDI float64
	for i := range trs {
		if smTR[i] == 0 {
			continue
		}
		plusDI = smPlus[i] / smTR[i] * 100
		minusDI = smMinus[i] / smTR[i] * 100
		if sum := plusDI + minusDI; sum != 0 {
			dx[i] = math.Abs(plusDI-minusDI) / sum * 100
		}
	}

	adx := EMASeries(dx, period)
	return ADXResult{
		ADX:     adx[len(adx)-1],
		PlusDI:  plusDI,
		MinusDI: minusDI,
	}
}
