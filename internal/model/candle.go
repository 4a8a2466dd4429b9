package model

import (
	"encoding/json"
	"time"
)

// Candle represents one OHLCV observation for a (symbol, timeframe, ts)
// triple. TS is the bucket open time (UTC). The Metrics blob is the indicator
// snapshot computed when this candle was last upserted.
type Candle struct {
	Symbol      string    `json:"symbol"`
	Timeframe   Timeframe `json:"timeframe"`
	TS          time.Time `json:"ts"` // bucket open time (UTC)
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Volume      float64   `json:"volume"`
	LatestPrice float64   `json:"latest_price"` // always == Close
	PriceChange float64   `json:"price_change"` // % vs previous candle close
	Metrics     Metrics   `json:"metrics"`
}

// Key returns "symbol|timeframe", the unit of write serialization in the
// ingestion pipeline.
func (c *Candle) Key() string {
	return c.Symbol + "|" + string(c.Timeframe)
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Amplitude returns the high-low span as a percentage of the low.
// Returns 0 when low is 0 to avoid division by zero.
func (c *Candle) Amplitude() float64 {
	if c.Low == 0 {
		return 0
	}
	return (c.High - c.Low) / c.Low * 100
}

// Green reports whether the candle closed above its open.
func (c *Candle) Green() bool {
	return c.Close > c.Open
}

// Metrics is the indicator snapshot attached to a candle. It is written
// together with the OHLCV row in a single upsert and treated as immutable
// history once the candle's bucket has passed.
type Metrics struct {
	ATR           float64 `json:"atr"`
	MACDLine      float64 `json:"macd_line"`
	SignalLine    float64 `json:"signal_line"`
	Histogram     float64 `json:"histogram"`
	PrevHistogram float64 `json:"previous_histogram"`
	RSI           float64 `json:"rsi"`
	ADX           float64 `json:"adx"`
	PlusDI        float64 `json:"plus_di"`
	MinusDI       float64 `json:"minus_di"`

	// Rolling volume MAs and price EMAs over the seed window.
	VolumeMA15 float64 `json:"vma_15"`
	VolumeMA25 float64 `json:"vma_25"`
	VolumeMA50 float64 `json:"vma_50"`
	PriceEMA15 float64 `json:"price_ema_15"`
	PriceEMA25 float64 `json:"price_ema_25"`
	PriceEMA50 float64 `json:"price_ema_50"`

	// Support/resistance context carried forward bar to bar.
	RecentHigh float64   `json:"recent_high"`
	RecentLow  float64   `json:"recent_low"`
	Fibonacci  FibLevels `json:"fibonacci_levels"`
	EntryScore float64   `json:"entry_score"`
}

// FibLevels holds Fibonacci retracement levels between a recent high and low.
type FibLevels struct {
	Level0   float64 `json:"level_0"` // recent high
	Level382 float64 `json:"level_38_2"`
	Level50  float64 `json:"level_50"`
	Level618 float64 `json:"level_61_8"`
	Level100 float64 `json:"level_100"` // recent low
}
