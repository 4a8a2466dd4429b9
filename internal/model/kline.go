package model

import "time"

// KlineEvent is one bar observation delivered by the feed, either from the
// WebSocket stream or from a REST batch fetch. The pipeline does not care
// which transport produced it.
type KlineEvent struct {
	Symbol    string    `json:"symbol"` // pair form, e.g. "BTC/USDT"
	Timeframe Timeframe `json:"timeframe"`
	OpenTime  time.Time `json:"open_time"` // bucket open (UTC)
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Closed    bool      `json:"closed"` // true once the bar's bucket has ended
}

// Key returns "symbol|timeframe", matching Candle.Key.
func (k *KlineEvent) Key() string {
	return k.Symbol + "|" + string(k.Timeframe)
}
